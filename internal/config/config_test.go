package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCLIOverridesDefaults(t *testing.T) {
	cfg, err := Load([]string{"puerto=4333", "hilos=4"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 4333 || cfg.Shards != 4 {
		t.Fatalf("expected overrides applied, got %+v", cfg)
	}
	if cfg.Address != "127.0.0.1" {
		t.Fatalf("expected default address preserved, got %q", cfg.Address)
	}
}

func TestLoadMergesConfigFileThenCLIWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shardmq.conf")
	if err := os.WriteFile(path, []byte("direccion=0.0.0.0\npuerto=4222\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load([]string{"config=" + path, "puerto=5555"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != "0.0.0.0" {
		t.Fatalf("expected file value for direccion, got %q", cfg.Address)
	}
	if cfg.Port != 5555 {
		t.Fatalf("expected CLI puerto to win over file, got %d", cfg.Port)
	}
}

func TestLoadRejectsMalformedArgument(t *testing.T) {
	if _, err := Load([]string{"not-a-kv-pair"}); err == nil {
		t.Fatal("expected error for malformed argument")
	}
}

func TestLoadAccountsParsesEscapedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.csv")
	content := "1,admin,1234\n2,bob,pass\\,word\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write accounts file: %v", err)
	}

	accounts, err := LoadAccounts(path)
	if err != nil {
		t.Fatalf("LoadAccounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].User != "admin" || accounts[0].Pass != "1234" {
		t.Fatalf("unexpected first account: %+v", accounts[0])
	}
	if accounts[1].Pass != "pass,word" {
		t.Fatalf("expected escaped comma unescaped in password, got %q", accounts[1].Pass)
	}
}

func TestAuthenticatorChecksUserAndPass(t *testing.T) {
	auth := Authenticator([]Account{{ID: "1", User: "admin", Pass: "1234"}})
	if !auth("admin", "1234") {
		t.Fatal("expected correct credentials to authenticate")
	}
	if auth("admin", "wrong") {
		t.Fatal("expected wrong password to fail")
	}
	if auth("nobody", "1234") {
		t.Fatal("expected unknown user to fail")
	}
}
