// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package filterstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/northbound/rag-core/internal/llm"
	"github.com/northbound/rag-core/internal/logger"
)

// TaggingJob asks an LLM to tag one stored chunk's content.
type TaggingJob struct {
	VectorID string
	Content  string
}

// TaggerPool is an optional LLM-backed enrichment worker pool: it reads
// chunk content, asks an llm.Client for topical tags, and writes them back
// onto the chunk's payload via Store.UpdateMetadata, usable by any
// ingestion path.
type TaggerPool struct {
	store       *Store
	llmClient   llm.Client
	jobQueue    chan TaggingJob
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	log         *logger.Logger
}

// NewTaggerPool creates a tagging pool that writes tags back to store. A
// nil llmClient is permitted: jobs fall back to keyword-based tagging.
func NewTaggerPool(store *Store, llmClient llm.Client, workerCount int) *TaggerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaggerPool{
		store:       store,
		llmClient:   llmClient,
		jobQueue:    make(chan TaggingJob, 100),
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		log:         logger.GetDefault(),
	}
}

func (p *TaggerPool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	p.log.Printf("filterstore: started %d tagging workers", p.workerCount)
}

func (p *TaggerPool) Stop() {
	p.cancel()
	close(p.jobQueue)
}

// Enqueue submits a job without blocking; a full queue drops the job and
// logs rather than stall the caller.
func (p *TaggerPool) Enqueue(job TaggingJob) {
	select {
	case p.jobQueue <- job:
	default:
		p.log.Warnf("filterstore: tagging queue full, dropping job for %s", job.VectorID)
	}
}

func (p *TaggerPool) worker(id int) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.processJob(job)
		}
	}
}

func (p *TaggerPool) processJob(job TaggingJob) {
	snippet := job.Content
	if len(snippet) > 2000 {
		snippet = snippet[:2000]
	}

	tags := p.tagsFor(snippet)
	if len(tags) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.store.UpdateMetadata(ctx, job.VectorID, map[string]any{"tags": tags}); err != nil {
		p.log.Errorf("filterstore: failed to write tags for %s: %v", job.VectorID, err)
	}
}

func (p *TaggerPool) tagsFor(content string) []string {
	if p.llmClient == nil {
		return fallbackTags(content)
	}

	prompt := "Analyze this document and return a JSON array of up to 5 relevant tags (e.g., \"legal\", \"invoice\", \"urgent\", \"proposal\"). Return ONLY the JSON array, no other text.\n\nDocument content:\n" + content
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	answer, err := p.llmClient.Generate(ctx, prompt, 100, 0.1)
	if err != nil {
		p.log.Warnf("filterstore: llm tagging unavailable, using fallback: %v", err)
		return fallbackTags(content)
	}

	answer = strings.TrimSpace(answer)
	answer = strings.TrimPrefix(answer, "```json")
	answer = strings.TrimPrefix(answer, "```")
	answer = strings.TrimSuffix(answer, "```")
	answer = strings.TrimSpace(answer)

	var tags []string
	if err := json.Unmarshal([]byte(answer), &tags); err != nil {
		p.log.Warnf("filterstore: failed to parse llm tag response, using fallback: %v", err)
		return fallbackTags(content)
	}
	if len(tags) > 5 {
		tags = tags[:5]
	}
	return tags
}

// fallbackTags applies simple keyword matching when no LLM is configured.
func fallbackTags(content string) []string {
	lower := strings.ToLower(content)
	var tags []string
	if strings.Contains(lower, "legal") || strings.Contains(lower, "contract") {
		tags = append(tags, "legal")
	}
	if strings.Contains(lower, "invoice") || strings.Contains(lower, "billing") || strings.Contains(lower, "payment") {
		tags = append(tags, "finance")
	}
	if strings.Contains(lower, "urgent") || strings.Contains(lower, "asap") {
		tags = append(tags, "urgent")
	}
	if strings.Contains(lower, "proposal") || strings.Contains(lower, "quote") {
		tags = append(tags, "proposal")
	}
	if strings.Contains(lower, "confidential") || strings.Contains(lower, "secret") {
		tags = append(tags, "confidential")
	}
	return tags
}
