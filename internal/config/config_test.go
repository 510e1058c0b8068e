package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DECISION_TIMEOUT", "MAX_SELECTION_RETRIES", "RULES_FILE"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8009" {
		t.Errorf("expected default port 8009, got %s", cfg.Port)
	}
	if cfg.DecisionTimeout != 2*time.Minute {
		t.Errorf("expected 2m decision timeout, got %v", cfg.DecisionTimeout)
	}
	if cfg.MaxSelectionRetries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.MaxSelectionRetries)
	}
	if cfg.RulesFile != "" {
		t.Errorf("expected no rules file, got %q", cfg.RulesFile)
	}
}

func TestLoadOverrides(t *testing.T) {
	tests := []struct {
		name        string
		timeout     string
		retries     string
		wantTimeout time.Duration
		wantRetries int
	}{
		{"valid", "45s", "5", 45 * time.Second, 5},
		{"zero retries", "1m", "0", time.Minute, 0},
		{"garbage falls back", "soon", "many", 2 * time.Minute, 3},
		{"negative falls back", "-5s", "-1", 2 * time.Minute, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DECISION_TIMEOUT", tt.timeout)
			t.Setenv("MAX_SELECTION_RETRIES", tt.retries)
			cfg := Load()
			if cfg.DecisionTimeout != tt.wantTimeout {
				t.Errorf("timeout: expected %v, got %v", tt.wantTimeout, cfg.DecisionTimeout)
			}
			if cfg.MaxSelectionRetries != tt.wantRetries {
				t.Errorf("retries: expected %d, got %d", tt.wantRetries, cfg.MaxSelectionRetries)
			}
		})
	}
}
