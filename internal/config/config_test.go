package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MONGOURI", "mongodb://localhost:27017")
	t.Setenv("MPESA_CONSUMER_KEY", "key")
	t.Setenv("MPESA_CONSUMER_SECRET", "secret")
	t.Setenv("MPESA_PASSKEY", "passkey")
	t.Setenv("MPESA_CALLBACK_URL", "https://example.com/api/mpesa/callback")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected port '8080', got '%s'", cfg.Port)
	}
	if cfg.StoreDriver != DriverMongo {
		t.Errorf("Expected store driver '%s', got '%s'", DriverMongo, cfg.StoreDriver)
	}
	if cfg.Mpesa.ShortCode != "174379" {
		t.Errorf("Expected shortcode '174379', got '%s'", cfg.Mpesa.ShortCode)
	}
	if cfg.Mpesa.TransactionType != "CustomerPayBillOnline" {
		t.Errorf("Expected transaction type 'CustomerPayBillOnline', got '%s'", cfg.Mpesa.TransactionType)
	}
	if cfg.Mpesa.ClientTimeout != 30*time.Second {
		t.Errorf("Expected client timeout 30s, got %s", cfg.Mpesa.ClientTimeout)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"no mongo uri", "MONGOURI"},
		{"no passkey", "MPESA_PASSKEY"},
		{"no callback url", "MPESA_CALLBACK_URL"},
		{"no consumer key", "MPESA_CONSUMER_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := Load("")
			if err == nil {
				t.Fatalf("Expected error when %s is empty", tt.unset)
			}
			if !strings.Contains(err.Error(), tt.unset) {
				t.Errorf("Expected error to mention %s, got %v", tt.unset, err)
			}
		})
	}
}

func TestLoadPostgresDriver(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORE_DRIVER", "Postgres")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("Expected DATABASE_URL error, got %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/mpesa")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StoreDriver != DriverPostgres {
		t.Errorf("Expected driver '%s', got '%s'", DriverPostgres, cfg.StoreDriver)
	}
}

func TestLoadUnknownDriver(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORE_DRIVER", "redis")

	if _, err := Load(""); err == nil {
		t.Fatal("Expected error for unknown store driver")
	}
}

func TestLoadYAMLFileEnvWins(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "PORT: \"7070\"\nMPESA_SHORTCODE: \"600000\"\nMPESA_BASE_URL: \"https://api.safaricom.co.ke/\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected env port '9090' to win, got '%s'", cfg.Port)
	}
	if cfg.Mpesa.ShortCode != "600000" {
		t.Errorf("Expected shortcode from file '600000', got '%s'", cfg.Mpesa.ShortCode)
	}
	if cfg.Mpesa.BaseURL != "https://api.safaricom.co.ke" {
		t.Errorf("Expected trailing slash trimmed, got '%s'", cfg.Mpesa.BaseURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	setRequiredEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestLocation(t *testing.T) {
	m := Mpesa{Timezone: "UTC"}
	loc, err := m.Location()
	if err != nil {
		t.Fatalf("Location failed: %v", err)
	}
	if loc != time.UTC {
		t.Errorf("Expected UTC, got %v", loc)
	}

	m.Timezone = "Not/AZone"
	if _, err := m.Location(); err == nil {
		t.Error("Expected error for invalid timezone")
	}
}
