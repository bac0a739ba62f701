// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package filterstore

import (
	"reflect"
	"testing"
)

func TestEnrichPayloadClassifiesDocType(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"incident keyword", "Major outage in the east datacenter, SEV1 declared", "incident"},
		{"change keyword", "Change request CR-1042: rollout of the new gateway", "change"},
		{"problem keyword", "Root cause analysis for last week's packet loss", "problem"},
		{"request keyword", "Requesting access to the billing dashboard", "request"},
		{"task keyword", "Action item: rotate the staging certificates", "task"},
		{"no keyword", "Quarterly newsletter for the facilities team", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := map[string]any{"text": tt.text}
			enrichPayload(meta)
			if meta["doc_type"] != tt.want {
				t.Errorf("doc_type = %v, want %v", meta["doc_type"], tt.want)
			}
		})
	}
}

func TestEnrichPayloadExtractsIncidentIDs(t *testing.T) {
	meta := map[string]any{
		"text": "INC030001 was reopened after INC030002; see also INC030001.",
	}
	enrichPayload(meta)

	if meta["has_incident"] != true {
		t.Errorf("has_incident = %v, want true", meta["has_incident"])
	}
	want := []string{"INC030001", "INC030002"}
	if got, _ := meta["incident_ids"].([]string); !reflect.DeepEqual(got, want) {
		t.Errorf("incident_ids = %v, want %v", got, want)
	}
}

func TestEnrichPayloadNoIncidents(t *testing.T) {
	meta := map[string]any{"text": "no ticket references here, INC12 is too short"}
	enrichPayload(meta)

	if meta["has_incident"] != false {
		t.Errorf("has_incident = %v, want false", meta["has_incident"])
	}
	if _, present := meta["incident_ids"]; present {
		t.Error("incident_ids set despite no matches")
	}
}

func TestEnrichPayloadKeepsExistingValues(t *testing.T) {
	meta := map[string]any{
		"text":     "outage in progress, INC030009",
		"doc_type": "change",
	}
	enrichPayload(meta)

	if meta["doc_type"] != "change" {
		t.Errorf("existing doc_type overwritten: %v", meta["doc_type"])
	}
}

func TestQdrantPayloadRoundTrip(t *testing.T) {
	meta := map[string]any{
		"text":        "hello",
		"chunk_index": int64(3),
		"deleted":     false,
		"score":       0.75,
		"tags":        []string{"network", "building-a"},
	}

	back := fromQdrantPayload(toQdrantPayload(meta))

	if back["text"] != "hello" {
		t.Errorf("text = %v", back["text"])
	}
	if back["chunk_index"] != int64(3) {
		t.Errorf("chunk_index = %v (%T)", back["chunk_index"], back["chunk_index"])
	}
	if back["deleted"] != false {
		t.Errorf("deleted = %v", back["deleted"])
	}
	if back["score"] != 0.75 {
		t.Errorf("score = %v", back["score"])
	}
	tags, ok := back["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "network" {
		t.Errorf("tags = %v", back["tags"])
	}
}

func TestToQdrantValueDropsUnsupportedTypes(t *testing.T) {
	meta := map[string]any{
		"text":   "x",
		"weird":  struct{ A int }{1},
	}
	payload := toQdrantPayload(meta)
	if _, present := payload["weird"]; present {
		t.Error("unsupported value type survived conversion")
	}
	if _, present := payload["text"]; !present {
		t.Error("supported value dropped")
	}
}
