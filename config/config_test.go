package config

import (
	"testing"
)

func TestApplyDefaultsAndValidate(t *testing.T) {
	cfg := &EngineConfig{}
	if err := ApplyDefaultsAndValidate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected default port=8080, got %d", cfg.Port)
	}
	if cfg.Fallback != FallbackUnmatchedRequest {
		t.Errorf("expected default fallback=unmatched-request, got %v", cfg.Fallback)
	}
	if cfg.Admin == nil || cfg.Admin.Path != "/__admin" {
		t.Errorf("expected default admin path, got %+v", cfg.Admin)
	}
}

func TestValidateRuleDef_NoMatcher(t *testing.T) {
	r := &RuleDef{Steps: []StepDef{{Type: "simple", Status: 200}}}
	err := ValidateRuleDef(r)
	if err == nil {
		t.Fatal("expected error for rule with no matchers")
	}
	ve, ok := err.(*ValidationError)
	if !ok || ve.Kind != "no-matcher" {
		t.Errorf("expected no-matcher validation error, got %v", err)
	}
}

func TestValidateRuleDef_NoStep(t *testing.T) {
	r := &RuleDef{Matchers: []MatcherDef{{Type: "wildcard"}}}
	err := ValidateRuleDef(r)
	ve, ok := err.(*ValidationError)
	if !ok || ve.Kind != "no-step" {
		t.Errorf("expected no-step validation error, got %v", err)
	}
}

func TestValidateRuleDef_FinalStepNotLast(t *testing.T) {
	r := &RuleDef{
		Matchers: []MatcherDef{{Type: "wildcard"}},
		Steps: []StepDef{
			{Type: "simple", Status: 200},
			{Type: "delay", DelayMs: 10},
		},
	}
	err := ValidateRuleDef(r)
	ve, ok := err.(*ValidationError)
	if !ok || ve.Kind != "final-step-not-last" {
		t.Errorf("expected final-step-not-last validation error, got %v", err)
	}
}

func TestValidateRuleDef_Success(t *testing.T) {
	r := &RuleDef{
		Matchers: []MatcherDef{{Type: "method", Method: "GET"}},
		Steps: []StepDef{
			{Type: "delay", DelayMs: 5},
			{Type: "simple", Status: 200, Data: "teapot"},
		},
		CompletionChecker: &CompletionDef{Type: "twice"},
	}
	if err := ValidateRuleDef(r); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidateRuleDef_InvalidHost(t *testing.T) {
	r := &RuleDef{
		Matchers: []MatcherDef{{Type: "host", Host: "bad/host?query"}},
		Steps:    []StepDef{{Type: "simple", Status: 200}},
	}
	err := ValidateRuleDef(r)
	ve, ok := err.(*ValidationError)
	if !ok || ve.Kind != "validation" {
		t.Errorf("expected validation error for invalid host, got %v", err)
	}
}

func TestValidateRuleDef_TransformExclusivity(t *testing.T) {
	r := &RuleDef{
		Matchers: []MatcherDef{{Type: "wildcard"}},
		Steps: []StepDef{
			{
				Type: "passthrough",
				PassThrough: &PassThroughDef{
					TransformRequest:        &TransformDef{ReplaceMethod: "POST"},
					BeforeRequestCallbackID: "cb1",
				},
			},
		},
	}
	err := ValidateRuleDef(r)
	ve, ok := err.(*ValidationError)
	if !ok || ve.Kind != "validation" {
		t.Errorf("expected validation error for exclusive transform+callback, got %v", err)
	}
}
