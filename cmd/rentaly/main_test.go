package main

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSetConfigValue(t *testing.T) {
	cfg := &Config{}

	if err := setConfigValue(cfg, "default.base_url", "https://api.example.com"); err != nil {
		t.Fatalf("base_url: %v", err)
	}
	if err := setConfigValue(cfg, "default.role", "agent"); err != nil {
		t.Fatalf("role: %v", err)
	}
	if err := setConfigValue(cfg, "auth.token", "tok"); err != nil {
		t.Fatalf("token: %v", err)
	}
	if err := setConfigValue(cfg, "realtime.max_reconnect_attempts", "8"); err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if err := setConfigValue(cfg, "realtime.typing_expiry", "4s"); err != nil {
		t.Fatalf("typing_expiry: %v", err)
	}

	if cfg.Default.BaseURL != "https://api.example.com" || cfg.Default.Role != "agent" {
		t.Errorf("default section = %+v", cfg.Default)
	}
	if cfg.Auth.Token != "tok" {
		t.Errorf("token = %q", cfg.Auth.Token)
	}
	if cfg.Realtime.MaxReconnectAttempts != 8 || cfg.Realtime.TypingExpiry != "4s" {
		t.Errorf("realtime section = %+v", cfg.Realtime)
	}
}

func TestSetConfigValueRejects(t *testing.T) {
	cases := map[string]string{
		"nodot":                           "x",
		"default.unknown":                 "x",
		"default.role":                    "owner",
		"realtime.max_reconnect_attempts": "many",
		"realtime.notification_duration":  "soon",
		"other.field":                     "x",
	}
	for key, value := range cases {
		if err := setConfigValue(&Config{}, key, value); err == nil {
			t.Errorf("setConfigValue(%q, %q) succeeded, want error", key, value)
		}
	}
}

func TestConfigRoundTrip(t *testing.T) {
	t.Setenv("RENTALY_CONFIG_DIR", t.TempDir())

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	cfg.Auth.Token = "abc"
	cfg.Realtime.NotificationDuration = "5s"
	if err := saveConfig(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := loadConfig()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Auth.Token != "abc" || got.Realtime.NotificationDuration != "5s" {
		t.Errorf("reloaded config = %+v", got)
	}
}

func TestTokenStatus(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sign := func(exp time.Time) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()})
		s, err := tok.SignedString([]byte("secret"))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	if got := tokenStatus("", now); got != "(not set)" {
		t.Errorf("empty = %q", got)
	}
	if got := tokenStatus("opaque-session-token", now); !strings.HasSuffix(got, "(opaque)") {
		t.Errorf("opaque = %q", got)
	}
	if got := tokenStatus(sign(now.Add(time.Hour)), now); !strings.Contains(got, "valid") {
		t.Errorf("fresh = %q", got)
	}
	if got := tokenStatus(sign(now.Add(-time.Hour)), now); !strings.Contains(got, "EXPIRED") {
		t.Errorf("expired = %q", got)
	}
}

func TestEffectiveSettings(t *testing.T) {
	cfg := &Config{
		Default:  ConfigDefault{Role: "agent"},
		Auth:     ConfigAuth{Token: "eyJhbGciOiJIUzI1NiJ9.payload.signature"},
		Realtime: ConfigRealtime{MaxReconnectAttempts: -1, NotificationDuration: "8s", TypingExpiry: "later"},
	}

	got := make(map[string]setting)
	for _, s := range effectiveSettings(cfg) {
		got[s.Key] = s
	}

	want := map[string][2]string{
		"default.base_url":                {"http://localhost:5000", "default"},
		"default.role":                    {"agent", "file"},
		"realtime.max_reconnect_attempts": {"disabled", "file"},
		"realtime.notification_duration":  {"8s", "file"},
	}
	for key, w := range want {
		if s := got[key]; s.Value != w[0] || s.Source != w[1] {
			t.Errorf("%s = %+v, want %v", key, s, w)
		}
	}
	if s := got["realtime.typing_expiry"]; s.Value != "3s" || !strings.HasPrefix(s.Source, "default (ignored") {
		t.Errorf("typing_expiry = %+v", s)
	}
	if s := got["auth.token"]; strings.Contains(s.Value, "payload") {
		t.Errorf("token not masked: %q", s.Value)
	}

	defaults := effectiveSettings(&Config{})
	for _, s := range defaults {
		if s.Key == "realtime.max_reconnect_attempts" && (s.Value != "5" || s.Source != "default") {
			t.Errorf("default attempts = %+v", s)
		}
		if s.Key == "auth.token" && s.Value != "(not set)" {
			t.Errorf("empty token = %+v", s)
		}
	}
}
