// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package filterstore

import (
	"regexp"
	"strings"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"
)

// incidentIDPattern matches the ServiceNow-style INC\d{6} ticket convention.
var incidentIDPattern = regexp.MustCompile(`INC\d{6}`)

// docTypeKeywords classifies free text by plain keyword matching against
// the lower-cased text, not a model call, because this is enrichment
// applied to every write and has to stay cheap.
var docTypeKeywords = []struct {
	docType  string
	keywords []string
}{
	{"incident", []string{"incident", "outage", "down", "sev1", "sev2"}},
	{"change", []string{"change request", "deployment", "rollout", "cutover"}},
	{"problem", []string{"root cause", "problem record", "rca"}},
	{"request", []string{"service request", "please provide", "requesting access"}},
	{"task", []string{"todo", "action item", "task:"}},
}

// enrichPayload derives doc_type, has_incident, and incident_ids from the
// record's text on every write. Existing values are never overwritten.
func enrichPayload(meta map[string]any) {
	text, _ := meta["text"].(string)
	if text == "" {
		return
	}
	if _, ok := meta["doc_type"]; !ok {
		meta["doc_type"] = classifyDocType(text)
	}

	ids := incidentIDPattern.FindAllString(text, -1)
	if _, ok := meta["has_incident"]; !ok {
		meta["has_incident"] = len(ids) > 0
	}
	if len(ids) > 0 {
		if _, ok := meta["incident_ids"]; !ok {
			meta["incident_ids"] = dedupeStrings(ids)
		}
	}
}

func classifyDocType(text string) string {
	lower := strings.ToLower(text)
	for _, group := range docTypeKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.docType
			}
		}
	}
	return "other"
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// toQdrantPayload converts a flat metadata map into Qdrant's payload
// value representation.
func toQdrantPayload(meta map[string]any) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(meta))
	for k, v := range meta {
		if val := toQdrantValue(v); val != nil {
			out[k] = val
		}
	}
	return out
}

func toQdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case time.Time:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val.UTC().Format(time.RFC3339Nano)}}
	case []string:
		values := make([]*qdrant.Value, len(val))
		for i, s := range val {
			values[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	default:
		return nil
	}
}

// fromQdrantPayload converts a Qdrant payload map back into a flat
// metadata map, the mirror of toQdrantPayload.
func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_ListValue:
		out := make([]any, len(kind.ListValue.Values))
		for i, item := range kind.ListValue.Values {
			out[i] = fromQdrantValue(item)
		}
		return out
	default:
		return nil
	}
}
