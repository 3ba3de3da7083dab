package config

import (
	"encoding/json"
	"testing"
)

func TestOptions_TypedAccess(t *testing.T) {
	t.Parallel()

	o := Options{
		"comma":       ";",
		"has_header":  true,
		"sample_size": float64(250), // encoding/json decodes numbers as float64
		"labels":      map[string]any{"env": "dev", "n": float64(1)},
	}

	if got := o.String("comma", ","); got != ";" {
		t.Errorf("String = %q, want ;", got)
	}
	if got := o.String("missing", "fallback"); got != "fallback" {
		t.Errorf("String missing = %q, want fallback", got)
	}
	if !o.Bool("has_header", false) {
		t.Errorf("Bool has_header = false, want true")
	}
	if got := o.Int("sample_size", 0); got != 250 {
		t.Errorf("Int = %d, want 250", got)
	}
	if got := o.Rune("comma", ','); got != ';' {
		t.Errorf("Rune = %q, want ;", got)
	}
	if got := o.Rune("missing", '\t'); got != '\t' {
		t.Errorf("Rune missing = %q, want tab", got)
	}
	m := o.StringMap("labels")
	if m["env"] != "dev" {
		t.Errorf("StringMap env = %q, want dev", m["env"])
	}
	if _, ok := m["n"]; ok {
		t.Errorf("StringMap should drop non-string values")
	}
}

func TestOptions_DecodeNullAsEmpty(t *testing.T) {
	t.Parallel()

	var p Parser
	if err := json.Unmarshal([]byte(`{"kind":"csv","options":null}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Options == nil {
		t.Fatalf("Options is nil, want empty map")
	}
	if got := p.Options.Bool("has_header", true); !got {
		t.Errorf("default lookup on empty Options = %v, want true", got)
	}
}
