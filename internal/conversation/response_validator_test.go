// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package conversation

import "testing"

func TestValidate_PassesForGroundedResponse(t *testing.T) {
	v := NewResponseValidator()
	state := NewState("t1")
	state.ProcessedQuery = "how many redundant uplinks does the network have"
	sources := []map[string]any{
		{"content": "The network has three redundant uplinks for automatic failover between data centers."},
	}
	passed, confidence, errs := v.Validate(
		"The network has three redundant uplinks for automatic failover.",
		state, sources,
	)
	if !passed {
		t.Fatalf("expected response to pass validation, errors: %v (confidence %.2f)", errs, confidence)
	}
}

func TestValidate_FailsOnEmptyResponse(t *testing.T) {
	v := NewResponseValidator()
	state := NewState("t1")
	passed, _, errs := v.Validate("", state, nil)
	if passed {
		t.Fatal("expected empty response to fail validation")
	}
	if len(errs) == 0 {
		t.Fatal("expected at least one validation error for empty response")
	}
}

func TestValidate_FailsOnIrrelevantResponse(t *testing.T) {
	v := NewResponseValidator()
	state := NewState("t1")
	state.ProcessedQuery = "what is the capital of the network security policy document"
	sources := []map[string]any{
		{"content": "Bananas are a good source of potassium and grow in tropical climates."},
	}
	passed, _, _ := v.Validate(
		"Bananas are a good source of potassium and grow in tropical climates.",
		state, sources,
	)
	if passed {
		t.Fatal("expected response unrelated to the query to fail relevance check")
	}
}

func TestCheckCompleteness_FlagsTooShort(t *testing.T) {
	v := NewResponseValidator()
	res := v.checkCompleteness("ok", &State{})
	if res.passed {
		t.Fatal("expected a one-word response to fail completeness")
	}
}
