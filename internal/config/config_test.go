package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	// Never pick up a developer's .env by accident.
	args = append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	return Load(fs)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t)
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}
	if cfg.Database != "recall.db" || cfg.HTTP.Addr != ":8080" || cfg.Sync.ReposDir != "repos" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Scheduler.MinEase != 1.3 || cfg.Scheduler.MaxInterval != 0 || cfg.Scheduler.MasteryThreshold != 3 {
		t.Errorf("Unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
	if cfg.Reminder.Every != 0 || cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
}

func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "recall.yaml")
	yamlContent := `
database: from-file.db
http:
  addr: ":9000"
scheduler:
  max_interval: 180
reminder:
  every: 1h
log:
  level: debug
`
	if err := os.WriteFile(yamlPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte("RECALL_OPENAI__MODEL=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("RECALL_OPENAI__MODEL") })

	t.Setenv("RECALL_HTTP__ADDR", ":9100")
	t.Setenv("RECALL_SCHEDULER__MASTERY_THRESHOLD", "5")
	t.Setenv("RECALL_LOG__LEVEL", "warn")

	cfg, err := load(t, "--config", yamlPath, "--env-file", envPath, "--log-level", "error")
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"file over default", cfg.Database, "from-file.db"},
		{"file only", cfg.Scheduler.MaxInterval, 180},
		{"file duration", cfg.Reminder.Every, time.Hour},
		{"env over file", cfg.HTTP.Addr, ":9100"},
		{"env over default", cfg.Scheduler.MasteryThreshold, 5},
		{"dotenv", cfg.OpenAI.Model, "from-dotenv"},
		{"flag over env", cfg.Log.Level, "error"},
		{"untouched default", cfg.Sync.ReposDir, "repos"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"ease below floor", []string{"--min-ease", "1.1"}, "MinEase"},
		{"negative interval", []string{"--max-interval", "-1"}, "MaxInterval"},
		{"bad log level", []string{"--log-level", "loud"}, "Level"},
		{"bad timezone", []string{"--timezone", "Mars/Olympus"}, "Timezone"},
		{"empty database", []string{"--db", ""}, "Database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected a validation error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	if _, err := load(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing config file")
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{Timezone: "Europe/Dublin"}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location() returned an unexpected error: %v", err)
	}
	if loc.String() != "Europe/Dublin" {
		t.Errorf("Unexpected location %s", loc)
	}

	cfg.Timezone = ""
	if loc, _ := cfg.Location(); loc != time.Local {
		t.Errorf("Expected time.Local, got %s", loc)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := Log{Level: "warn", Format: "json"}.NewLogger(&buf)
	log.Info("hidden")
	log.Warn("shown", "deck_id", "abc")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"deck_id":"abc"`) {
		t.Errorf("Expected a JSON record, got %s", out)
	}
}
