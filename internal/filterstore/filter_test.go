// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package filterstore

import (
	"testing"

	qdrant "github.com/qdrant/go-client/qdrant"
)

func TestToQdrantFilterNilAndEmpty(t *testing.T) {
	if toQdrantFilter(nil) != nil {
		t.Error("nil filter should convert to nil")
	}
	if toQdrantFilter(&Filter{}) != nil {
		t.Error("empty filter should convert to nil")
	}
}

func TestToQdrantFilterAndsConstraints(t *testing.T) {
	gte := 10.0
	f := &Filter{Constraints: []Constraint{
		Eq("doc_type", "incident"),
		AnyOf("source_type", "pdf", "docx"),
		Range("chunk_size", &gte, nil),
		TextContains("text", "outage"),
	}}

	qf := toQdrantFilter(f)
	if qf == nil {
		t.Fatal("filter converted to nil")
	}
	if len(qf.Must) != 4 {
		t.Fatalf("must conditions = %d, want 4", len(qf.Must))
	}

	eq := qf.Must[0].GetField()
	if eq.Key != "doc_type" || eq.Match.GetKeyword() != "incident" {
		t.Errorf("equality condition = %+v", eq)
	}

	anyOf := qf.Must[1].GetField()
	kws := anyOf.Match.GetKeywords()
	if kws == nil || len(kws.Strings) != 2 {
		t.Errorf("any-of condition = %+v", anyOf)
	}

	rng := qf.Must[2].GetField()
	if rng.Range == nil || rng.Range.Gte == nil || *rng.Range.Gte != 10.0 || rng.Range.Lte != nil {
		t.Errorf("range condition = %+v", rng)
	}

	contains := qf.Must[3].GetField()
	if contains.Match.GetText() != "outage" {
		t.Errorf("text-contains condition = %+v", contains)
	}
}

func TestMatchValueTypes(t *testing.T) {
	if matchValue("s").GetKeyword() != "s" {
		t.Error("string match")
	}
	if matchValue(true).GetBoolean() != true {
		t.Error("bool match")
	}
	if matchValue(7).GetInteger() != 7 {
		t.Error("int match")
	}
	if matchValue(int64(9)).GetInteger() != 9 {
		t.Error("int64 match")
	}
	if matchValue(3.14) != nil {
		t.Error("unsupported type should yield nil match")
	}
}

func TestToQdrantConditionSkipsEmptyConstraint(t *testing.T) {
	f := &Filter{Constraints: []Constraint{{Field: "orphan"}}}
	if qf := toQdrantFilter(f); qf != nil {
		t.Errorf("filter of empty constraints should be nil, got %+v", qf)
	}
	var _ *qdrant.Filter = toQdrantFilter(nil)
}
