package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/bank-forwarder/internal/domain"
)

const sample = `
interval: 15m
target_chat: "-100123"
accounts:
  sistar-movs:
    type: sistarbanc_movements
    credentials_env: SIS_CREDENTIALS
    card_number: "1234"
  itau-usd:
    type: itau_bank_account
    credentials_env: ITAU_CREDENTIALS
    id: 23fe
    currency: USD
  itau-card:
    type: itau_card_authorizations
    credentials_env: ITAU_CREDENTIALS
    id: card-hash
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := cfg.PollInterval(); got != 15*time.Minute {
		t.Errorf("PollInterval() = %v, want 15m", got)
	}
	if cfg.TargetChat != "-100123" {
		t.Errorf("TargetChat = %q", cfg.TargetChat)
	}
	// Defaults survive for keys the file omits.
	if cfg.Cache.Backend != BackendFile || cfg.Cache.Dir != "cache" {
		t.Errorf("Cache = %+v, want file backend in cache/", cfg.Cache)
	}
	if cfg.AuthAlertAfter != 3 || cfg.TelegramTokenEnv != "TG_TOKEN" {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	want := []domain.Stream{
		{Name: "sistar-movs", Kind: domain.KindSistarbancMovement, CredentialsEnv: "SIS_CREDENTIALS", CardNumber: "1234"},
		{Name: "itau-usd", Kind: domain.KindItauAccountMovement, CredentialsEnv: "ITAU_CREDENTIALS", AccountID: "23fe", Currency: "USD"},
		{Name: "itau-card", Kind: domain.KindItauCardAuthorization, CredentialsEnv: "ITAU_CREDENTIALS", AccountID: "card-hash"},
	}
	if diff := cmp.Diff(want, cfg.Streams()); diff != "" {
		t.Errorf("Streams() mismatch (-want +got):\n%s", diff)
	}

	s, ok := cfg.Stream("itau-usd")
	if !ok || s.AccountID != "23fe" {
		t.Errorf("Stream(itau-usd) = %+v, %v", s, ok)
	}
	if _, ok := cfg.Stream("nope"); ok {
		t.Error("Stream(nope) found")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad interval",
			yaml:    "interval: soon\ntarget_chat: x\naccounts: {a: {type: sistarbanc_movements, credentials_env: X}}",
			wantErr: "invalid duration",
		},
		{
			name:    "missing chat",
			yaml:    "accounts: {a: {type: sistarbanc_movements, credentials_env: X}}",
			wantErr: "target_chat is required",
		},
		{
			name:    "no accounts",
			yaml:    "target_chat: x",
			wantErr: "at least one account",
		},
		{
			name:    "unknown type",
			yaml:    "target_chat: x\naccounts: {a: {type: santander, credentials_env: X}}",
			wantErr: `unknown type "santander"`,
		},
		{
			name:    "itau without id",
			yaml:    "target_chat: x\naccounts: {a: {type: itau_bank_account, credentials_env: X, currency: USD}}",
			wantErr: "accounts.a: id is required",
		},
		{
			name:    "bad stream key",
			yaml:    "target_chat: x\naccounts: {\"a/b\": {type: sistarbanc_movements, credentials_env: X}}",
			wantErr: "name may only contain",
		},
		{
			name:    "missing credentials",
			yaml:    "target_chat: x\naccounts: {a: {type: sistarbanc_movements}}",
			wantErr: "credentials_env is required",
		},
		{
			name:    "unknown backend",
			yaml:    "target_chat: x\ncache: {backend: s3}\naccounts: {a: {type: sistarbanc_movements, credentials_env: X}}",
			wantErr: `unknown backend "s3"`,
		},
		{
			name:    "gcs without bucket",
			yaml:    "target_chat: x\ncache: {backend: gcs}\naccounts: {a: {type: sistarbanc_movements, credentials_env: X}}",
			wantErr: "cache.bucket is required",
		},
		{
			name:    "git audit on bolt",
			yaml:    "target_chat: x\naudit: {git: true}\ncache: {backend: bolt}\naccounts: {a: {type: sistarbanc_movements, credentials_env: X}}",
			wantErr: "audit.git requires",
		},
		{
			name:    "accounts not a mapping",
			yaml:    "target_chat: x\naccounts: [a, b]",
			wantErr: "accounts must be a mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Accounts) != 3 {
		t.Errorf("got %d accounts, want 3", len(cfg.Accounts))
	}

	t.Setenv(EnvVar, path)
	if _, err := Load(""); err != nil {
		t.Errorf("Load(\"\") with %s set: %v", EnvVar, err)
	}
}

func TestLoad_Missing(t *testing.T) {
	t.Setenv(EnvVar, "")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), EnvVar) {
		t.Errorf("Load(\"\") error = %v, want mention of %s", err, EnvVar)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Error("Load(absent) error = nil")
	}
}
