package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("RULE_STORE", "")
	t.Setenv("TRIAGE_SLOTS", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "5000" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.RuleStore != "file" {
		t.Fatalf("expected file rule store by default, got %s", cfg.RuleStore)
	}
	if cfg.LLMProvider != "openai" {
		t.Fatalf("expected openai provider by default, got %s", cfg.LLMProvider)
	}
	if len(cfg.Slots) != 3 || cfg.Slots[0] != "type" || cfg.Slots[2] != "department" {
		t.Fatalf("unexpected default slots %v", cfg.Slots)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("expected permissive CORS default, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.LLMTimeout != 60*time.Second {
		t.Fatalf("expected default llm timeout, got %s", cfg.LLMTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("RULE_STORE", " Redis ")
	t.Setenv("TRIAGE_SLOTS", "type, location ,, practice_area")
	t.Setenv("TRIAGE_ORG_NAME", "Globex")
	t.Setenv("LLM_TEMPERATURE", "0.7")
	t.Setenv("LLM_TIMEOUT", "15s")
	t.Setenv("SESSION_TTL", "72h")
	t.Setenv("HANDOFF_EMAIL_ENABLED", "true")
	t.Setenv("CHAT_RATE_LIMIT_BURST", "3")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.RuleStore != "redis" {
		t.Fatalf("expected normalized rule store, got %q", cfg.RuleStore)
	}
	if len(cfg.Slots) != 3 || cfg.Slots[2] != "practice_area" {
		t.Fatalf("unexpected slots %v", cfg.Slots)
	}
	if cfg.OrgName != "Globex" {
		t.Fatalf("expected org override, got %s", cfg.OrgName)
	}
	if cfg.LLMTemperature != 0.7 {
		t.Fatalf("expected temperature override, got %v", cfg.LLMTemperature)
	}
	if cfg.LLMTimeout != 15*time.Second {
		t.Fatalf("expected timeout override, got %s", cfg.LLMTimeout)
	}
	if cfg.SessionTTL != 72*time.Hour {
		t.Fatalf("expected session ttl override, got %s", cfg.SessionTTL)
	}
	if !cfg.HandoffEmailEnabled {
		t.Fatalf("expected handoff email enabled")
	}
	if cfg.ChatRateLimitBurst != 3 {
		t.Fatalf("expected burst override, got %d", cfg.ChatRateLimitBurst)
	}
}

func TestInvalidNumbersFallBackToDefaults(t *testing.T) {
	t.Setenv("LLM_MAX_TOKENS", "lots")
	t.Setenv("LLM_TIMEOUT", "soon")
	cfg := Load()
	if cfg.LLMMaxTokens != 512 {
		t.Fatalf("expected default max tokens, got %d", cfg.LLMMaxTokens)
	}
	if cfg.LLMTimeout != 60*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.LLMTimeout)
	}
}
