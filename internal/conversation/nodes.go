// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/northbound/rag-core/internal/llm"
	"github.com/northbound/rag-core/internal/logger"
	"github.com/northbound/rag-core/internal/query"
)

// intentPatterns classifies the user's latest message into one of the
// understanding node's recognized intents. Order matters: patterns are
// tried top to bottom and the first match wins, so more specific intents
// (goodbye, clarification) are listed ahead of the catch-all question
// pattern.
var intentPatterns = []struct {
	intent  string
	pattern *regexp.Regexp
}{
	{"goodbye", regexp.MustCompile(`(?i)^\s*(bye|goodbye|see you|farewell|that'?s all|thanks,?\s*bye)\b`)},
	{"greeting", regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good (morning|afternoon|evening))\b`)},
	{"help", regexp.MustCompile(`(?i)\b(help|what can you do|how does this work)\b`)},
	{"clarification", regexp.MustCompile(`(?i)\b(what do you mean|i don'?t understand|can you clarify|confused)\b`)},
	{"comparison", regexp.MustCompile(`(?i)\b(compare|versus|vs\.?|difference between)\b`)},
	{"explanation", regexp.MustCompile(`(?i)\b(why|how does|explain|what causes)\b`)},
	{"follow_up", regexp.MustCompile(`(?i)^\s*(and|also|what about|additionally)\b`)},
	{"question", regexp.MustCompile(`(?i)\?\s*$|^\s*(what|who|when|where|which|how many|how much)\b`)},
}

// contextualPhrasePattern catches anaphoric references ("these", "them",
// "that one") that only make sense relative to the preceding turn.
var contextualPhrasePattern = regexp.MustCompile(`(?i)\b(these|those|them|it|that one|this one|the (first|second|last) one)\b`)

// anaphoricPrefixPattern catches messages that *open* with a follow-up
// phrase ("tell me more", "for floor 3", "those ones"), which are
// contextual regardless of how many words follow.
var anaphoricPrefixPattern = regexp.MustCompile(`(?i)^\s*(tell me more|more about|what about|how about|for\s+(floor|building|room|level|those|these)|those|these)\b`)

var aboutTopicPattern = regexp.MustCompile(`(?i)\babout\s+([a-z0-9][a-z0-9 _-]{1,40})`)

// Nodes holds the collaborators every conversation-graph node needs:
// the query engine for retrieval, an optional LLM for generation, and
// the context, validation, and conflict-resolution gates.
type Nodes struct {
	engine     query.Engine
	llmClient  llm.Client
	context    *ContextManager
	validator  *ResponseValidator
	resolver   *ConflictResolver
	log        *logger.Logger
}

// NewNodes wires the node set. llmClient may be nil: every node that
// would otherwise call it degrades to a templated or extractive
// response instead.
func NewNodes(engine query.Engine, llmClient llm.Client) *Nodes {
	return &Nodes{
		engine:    engine,
		llmClient: llmClient,
		context:   NewContextManager(2000),
		validator: NewResponseValidator(),
		resolver:  NewConflictResolver(),
		log:       logger.GetDefault(),
	}
}

// Greet handles the greeting phase: it runs only on a thread's very
// first turn and always hands control to understanding next.
func (n *Nodes) Greet(state *State) {
	state.GeneratedResponse = n.greetingResponse(state)
	state.Phase = PhaseUnderstanding
}

func (n *Nodes) greetingResponse(state *State) string {
	greetings := []string{
		"Hello! How can I help you today?",
		"Hi there! What would you like to know?",
		"Greetings! I'm here to assist you with any questions you might have.",
		"Hello! Feel free to ask me anything you'd like to know about.",
	}
	return greetings[state.TurnCount%len(greetings)]
}

// UnderstandIntent classifies the latest user message, detects whether
// it is a contextual (anaphoric) follow-up, and builds the processed
// query that search will use.
func (n *Nodes) UnderstandIntent(state *State, userMessage string) {
	state.OriginalQuery = userMessage
	state.UserIntent = classifyIntent(userMessage)
	state.IsContextual = n.isContextualQuery(userMessage, state)

	if state.IsContextual {
		state.ProcessedQuery = n.buildContextualQuery(userMessage, state)
	} else {
		state.ProcessedQuery = userMessage
	}
	for _, ent := range extractEntities(userMessage) {
		state.AddTopicEntity(ent)
	}
	state.QueryKeywords = extractKeywords(userMessage)
	state.ConfidenceScore = 0.8
	state.Phase = PhaseUnderstanding
}

func classifyIntent(message string) string {
	for _, p := range intentPatterns {
		if p.pattern.MatchString(message) {
			return p.intent
		}
	}
	return "search"
}

// isContextualQuery flags queries that open with a follow-up phrase,
// contain an anaphoric reference, or are short enough that they only
// make sense against prior history, deciding whether to rewrite the
// query before searching.
func (n *Nodes) isContextualQuery(message string, state *State) bool {
	if len(state.Messages) == 0 {
		return false
	}
	if anaphoricPrefixPattern.MatchString(message) {
		return true
	}
	if contextualPhrasePattern.MatchString(message) {
		return true
	}
	words := strings.Fields(message)
	return len(words) <= 4
}

// buildContextualQuery enhances a short/anaphoric query with topic
// entities harvested from recent turns, falling back to the raw message
// when nothing useful has been tracked yet. An entity the message
// already names is not appended a second time.
func (n *Nodes) buildContextualQuery(message string, state *State) string {
	lower := strings.ToLower(message)
	var extra []string
	for i := len(state.TopicEntities) - 1; i >= 0; i-- {
		ent := state.TopicEntities[i]
		if !strings.Contains(lower, strings.ToLower(ent)) {
			extra = append(extra, ent)
		}
	}
	if len(extra) > 0 {
		return strings.TrimSpace(message + " " + strings.Join(extra, " "))
	}
	if state.CurrentTopic != "" && !strings.Contains(lower, strings.ToLower(state.CurrentTopic)) {
		return strings.TrimSpace(message + " " + state.CurrentTopic)
	}
	return message
}

func extractKeywords(text string) []string {
	seen := keywordSet(text)
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	return out
}

// SearchKnowledge runs the four-strategy search cascade for every query,
// stopping at the first strategy that returns results, then resolves
// conflicts across whichever attempts were made.
func (n *Nodes) SearchKnowledge(ctx context.Context, state *State) error {
	state.Phase = PhaseSearching

	strategies := n.searchStrategies(state)
	var attempts []SearchAttempt
	for _, strat := range strategies {
		if strat.query == "" {
			continue
		}
		result, err := n.engine.ProcessQuery(ctx, strat.query, 5, n.queryContext(state))
		if err != nil {
			state.RecordError("search:"+strat.name, err.Error())
			continue
		}
		results := resultToSearchResults(result)
		attempts = append(attempts, SearchAttempt{Strategy: strat.name, Results: results})
		if len(results) > 0 {
			break
		}
	}

	resolved := n.resolver.Resolve(attempts, state)
	state.SearchResults = resolved
	state.RelevantSources = make([]map[string]any, 0, len(resolved))
	for _, r := range resolved {
		state.RelevantSources = append(state.RelevantSources, r.Metadata)
	}
	if len(resolved) > 0 {
		for i, r := range resolved {
			if i >= 3 {
				break
			}
			for _, ent := range extractEntities(r.Content) {
				state.AddTopicEntity(ent)
			}
		}
		state.AddTopic(deriveTopic(state))
	}
	return nil
}

func (n *Nodes) queryContext(state *State) map[string]any {
	if state.CurrentTopic == "" {
		return nil
	}
	return map[string]any{"topic": state.CurrentTopic}
}

type namedQuery struct {
	name  string
	query string
}

// searchStrategies enumerates the cascade in priority order: the
// context-enhanced query, the original unmodified query, the topic
// extracted from an "about X" phrase, and finally each tracked topic
// entity, most recent first.
func (n *Nodes) searchStrategies(state *State) []namedQuery {
	strategies := []namedQuery{
		{"enhanced_query", state.ProcessedQuery},
		{"original_query", state.OriginalQuery},
	}
	if m := aboutTopicPattern.FindStringSubmatch(state.OriginalQuery); len(m) == 2 {
		strategies = append(strategies, namedQuery{"about_topic", strings.TrimSpace(m[1])})
	}
	for i := len(state.TopicEntities) - 1; i >= 0; i-- {
		strategies = append(strategies, namedQuery{"topic_entity", state.TopicEntities[i]})
	}
	return strategies
}

func resultToSearchResults(r *query.Result) []SearchResult {
	if r == nil {
		return nil
	}
	out := make([]SearchResult, 0, len(r.Sources))
	for _, src := range r.Sources {
		content, _ := src["text"].(string)
		source, _ := src["doc_path"].(string)
		if source == "" {
			source, _ = src["filename"].(string)
		}
		score := 0.0
		if sim, ok := src["similarity"].(float32); ok {
			score = float64(sim)
		}
		out = append(out, SearchResult{
			Content:  content,
			Score:    score,
			Source:   source,
			Metadata: src,
		})
	}
	return out
}

// deriveTopic names what this turn was about. A concrete entity from
// the query ("Building A", "Cisco 9120") beats an "about X" phrase,
// which beats the word-prefix fallback: a follow-up enhanced with
// "What access points does" retrieves nothing, one enhanced with
// "Building A" retrieves the right documents.
func deriveTopic(state *State) string {
	if ents := extractEntities(state.ProcessedQuery); len(ents) > 0 {
		return ents[0]
	}
	if len(state.TopicEntities) > 0 {
		return state.TopicEntities[len(state.TopicEntities)-1]
	}
	if m := aboutTopicPattern.FindStringSubmatch(state.OriginalQuery); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	words := strings.Fields(state.ProcessedQuery)
	if len(words) == 0 {
		return ""
	}
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " ")
}

// GenerateResponse produces the turn's reply: a templated response for
// goodbye/greeting/help intents, otherwise a context-assembled answer
// from the query engine's search results, then validated.
func (n *Nodes) GenerateResponse(ctx context.Context, state *State) {
	state.Phase = PhaseResponding

	switch state.UserIntent {
	case "goodbye":
		state.GeneratedResponse = n.farewellResponse(state)
		state.Phase = PhaseEnding
		return
	case "greeting":
		state.GeneratedResponse = n.greetingResponse(state)
		return
	case "help":
		state.GeneratedResponse = helpResponse()
		return
	}

	if len(state.SearchResults) == 0 {
		state.GeneratedResponse = n.generalResponse(state)
		return
	}

	contextText, quality := n.context.BuildDynamicContext(state, "response")
	state.ContextQuality = quality

	response, method := n.respondFromContext(ctx, state, contextText)
	state.GeneratedResponse = response
	state.ResponseConfidence = averageSourceScore(state.SearchResults)

	passed, confidence, errs := n.validator.Validate(response, state, state.RelevantSources)
	state.ResponseValidated = passed
	state.ValidationErrors = errs
	if !passed {
		state.RetryCount++
		n.log.Warnf("conversation: response validation failed (method=%s confidence=%.2f): %v", method, confidence, errs)
	}

	state.SuggestedQuestions = n.followUpQuestions(state)
	state.RelatedTopics = extractRelatedTopics(state)
}

func (n *Nodes) respondFromContext(ctx context.Context, state *State, contextText string) (string, string) {
	if n.llmClient == nil {
		return extractiveFromResults(state.SearchResults), "extractive"
	}
	prompt := fmt.Sprintf(
		"Answer the question using only the context below. If the context does not contain the answer, say so.\n\nContext:\n%s\n\nQuestion: %s\nAnswer:",
		contextText, state.OriginalQuery,
	)
	text, err := n.llmClient.Generate(ctx, prompt, 500, 0.3)
	if err != nil {
		n.log.Warnf("conversation: llm generate failed, falling back to extractive: %v", err)
		return extractiveFromResults(state.SearchResults), "extractive_fallback"
	}
	return strings.TrimSpace(text), "llm"
}

func extractiveFromResults(results []SearchResult) string {
	if len(results) == 0 {
		return "I couldn't find anything relevant to that."
	}
	content := results[0].Content
	if len(content) > 500 {
		content = content[:500] + "..."
	}
	return content
}

func averageSourceScore(results []SearchResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var total float64
	for _, r := range results {
		total += r.Score
	}
	return total / float64(len(results))
}

func (n *Nodes) farewellResponse(state *State) string {
	farewells := []string{
		"Goodbye! It was great talking with you.",
		"Thank you for the conversation! Have a wonderful day!",
		"Farewell! Feel free to come back anytime you have questions.",
		"Goodbye! I hope I was able to help you today.",
	}
	return farewells[state.TurnCount%len(farewells)]
}

func helpResponse() string {
	return "I'm here to help you with various tasks! I can:\n" +
		"- Answer questions about topics in my knowledge base\n" +
		"- Help you find specific information\n" +
		"- Provide explanations and clarifications\n\n" +
		"Just ask me anything you'd like to know, and I'll do my best to help."
}

func (n *Nodes) generalResponse(state *State) string {
	if state.OriginalQuery == "" {
		return "I'd be happy to help! Could you tell me what you'd like to know about?"
	}
	return fmt.Sprintf(
		"I understand you're asking about %q. I don't have specific information on this topic right now — could you provide more detail so I can help further?",
		state.OriginalQuery,
	)
}

// HandleClarification produces a clarifying question when the engine
// could not confidently resolve the user's intent or search returned
// nothing usable.
func (n *Nodes) HandleClarification(state *State) {
	state.Phase = PhaseClarifying
	state.RequiresClarification = true
	state.GeneratedResponse = fmt.Sprintf(
		"I want to make sure I understand — could you clarify what you mean by %q?",
		state.OriginalQuery,
	)
}

// followUpQuestions offers a small set of generic next questions when no
// LLM is configured, or asks the LLM for focused ones grounded in the
// current search results.
func (n *Nodes) followUpQuestions(state *State) []string {
	if n.llmClient == nil || len(state.SearchResults) == 0 {
		return fallbackFollowUps(state)
	}
	contextInfo := summarizeForSuggestions(state.SearchResults)
	prompt := fmt.Sprintf(
		"Based on the user's question and the information found, list 3 short follow-up questions as a simple dash list.\n\nQuestion: %s\n\nInformation:\n%s",
		state.OriginalQuery, contextInfo,
	)
	response, err := n.llmClient.Generate(context.Background(), prompt, 200, 0.7)
	if err != nil {
		n.log.Warnf("conversation: follow-up question generation failed: %v", err)
		return fallbackFollowUps(state)
	}
	questions := parseDashList(response)
	if len(questions) == 0 {
		return fallbackFollowUps(state)
	}
	return questions
}

func fallbackFollowUps(state *State) []string {
	if state.CurrentTopic == "" {
		return []string{"What else would you like to know?"}
	}
	return []string{
		fmt.Sprintf("Can you tell me more about %s?", state.CurrentTopic),
		fmt.Sprintf("What else is related to %s?", state.CurrentTopic),
	}
}

func summarizeForSuggestions(results []SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i >= 3 {
			break
		}
		content := r.Content
		if len(content) > 300 {
			content = content[:300]
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}

var dashLinePattern = regexp.MustCompile(`(?m)^\s*[-*]\s*(.+)$`)

func parseDashList(text string) []string {
	matches := dashLinePattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		q := strings.TrimSpace(m[1])
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}

var (
	buildingPattern = regexp.MustCompile(`(?i)building\s+([a-z0-9]+)`)
	ciscoPattern    = regexp.MustCompile(`(?i)cisco\s+(\w+)`)
	floorPattern    = regexp.MustCompile(`(?i)floor\s+([0-9]+)`)
)

// extractEntities pulls domain entities (building IDs, equipment names,
// floor numbers) out of free text in canonical form. These are what the
// topic tracker remembers and what contextual follow-ups get enriched
// with.
func extractEntities(text string) []string {
	var entities []string
	seen := make(map[string]bool)
	add := func(e string) {
		if e != "" && !seen[e] {
			seen[e] = true
			entities = append(entities, e)
		}
	}

	for _, m := range buildingPattern.FindAllStringSubmatch(text, -1) {
		add("Building " + strings.ToUpper(m[1]))
	}
	for _, m := range ciscoPattern.FindAllStringSubmatch(text, -1) {
		w := strings.ToLower(m[1])
		if w != "access" && w != "point" && w != "points" {
			add("Cisco " + m[1])
		}
	}
	for _, m := range floorPattern.FindAllStringSubmatch(text, -1) {
		add("Floor " + m[1])
	}
	return entities
}

// extractRelatedTopics mines the top search results and the current
// query for domain entities worth surfacing as "related topics" in the
// response metadata.
func extractRelatedTopics(state *State) []string {
	var topics []string
	seen := make(map[string]bool)
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			topics = append(topics, t)
		}
	}

	for i, r := range state.SearchResults {
		if i >= 3 {
			break
		}
		for _, ent := range extractEntities(r.Content) {
			add(ent)
		}
		content := strings.ToLower(r.Content)
		if strings.Contains(content, "incident") {
			add("Incidents")
		}
		if strings.Contains(content, "employee") {
			add("Employee Records")
		}
	}
	return topics
}

// CheckConversationEnd applies the hard stop conditions and the
// caller-selected Mode to decide whether this thread terminates or
// returns to understanding, ready for the next external turn.
func (n *Nodes) CheckConversationEnd(state *State, mode Mode) {
	if state.ShouldEnd() {
		state.Phase = PhaseEnding
		return
	}
	if mode == ModeAPISingleTurn {
		state.Phase = PhaseEnding
		return
	}
	state.Phase = PhaseUnderstanding
}
