package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	valid := Default()

	tests := []struct {
		name        string
		mutate      func(c *Config)
		wantErr     bool
		errorString string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "memory backend", mutate: func(c *Config) { c.DataBackend = BackendMemory; c.DatabaseURL = "" }},
		{
			name:        "invalid port - non-numeric",
			mutate:      func(c *Config) { c.Port = "abc" },
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name:        "invalid port - out of range",
			mutate:      func(c *Config) { c.Port = "70000" },
			wantErr:     true,
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name:        "invalid data backend",
			mutate:      func(c *Config) { c.DataBackend = "sheets" },
			wantErr:     true,
			errorString: "invalid data backend 'sheets'",
		},
		{
			name:        "postgres without url",
			mutate:      func(c *Config) { c.DatabaseURL = "" },
			wantErr:     true,
			errorString: "DATABASE_URL is required",
		},
		{
			name:        "sqlite without path",
			mutate:      func(c *Config) { c.DataBackend = BackendSQLite; c.SQLiteDBPath = "" },
			wantErr:     true,
			errorString: "SQLite database path cannot be empty",
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.LogLevel = "loud" },
			wantErr:     true,
			errorString: "invalid log level 'loud'",
		},
		{
			name:        "zero connect attempts",
			mutate:      func(c *Config) { c.DBConnectAttempts = 0 },
			wantErr:     true,
			errorString: "invalid db connect attempts 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errorString) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errorString)
			}
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Port = "x"
	cfg.DataBackend = "nope"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid port") || !strings.Contains(err.Error(), "invalid data backend") {
		t.Errorf("error = %q", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_BACKEND", " SQLite ")
	t.Setenv("SQLITE_DB_PATH", "/tmp/ledger.db")
	t.Setenv("DB_CONNECT_ATTEMPTS", "3")
	t.Setenv("DB_CONNECT_DELAY", "250ms")
	t.Setenv("LOG_JSON", "true")
	t.Setenv("AUTO_CLEANUP", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9090" || cfg.DataBackend != BackendSQLite || cfg.SQLiteDBPath != "/tmp/ledger.db" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DBConnectAttempts != 3 || cfg.DBConnectDelay != 250*time.Millisecond {
		t.Errorf("retry settings = %d, %v", cfg.DBConnectAttempts, cfg.DBConnectDelay)
	}
	if !cfg.LogJSON || cfg.AutoCleanup {
		t.Errorf("bools = json %v cleanup %v", cfg.LogJSON, cfg.AutoCleanup)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("unset value lost its default: %d", cfg.MaxUploadBytes)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("CORS_ORIGINS=https://a.example, https://b.example\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv only fills unset variables and does not restore them.
	t.Setenv("CORS_ORIGINS", "")
	os.Unsetenv("CORS_ORIGINS")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://a.example", "https://b.example"}
	if got := cfg.AllowedOrigins(); !slices.Equal(got, want) {
		t.Errorf("origins = %v, want %v", got, want)
	}
}

func TestLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		c := Config{LogLevel: in}
		if got := c.Level(); got != want {
			t.Errorf("Level(%q) = %v, want %v", in, got, want)
		}
	}
}
