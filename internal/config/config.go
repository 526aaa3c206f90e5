// Package config loads settings from flag defaults, an optional YAML file, a
// .env file, RECALL_ environment variables and explicitly set flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "RECALL_"

type Config struct {
	Database  string    `koanf:"database" validate:"required"`
	Timezone  string    `koanf:"timezone" validate:"omitempty,timezone"`
	Scheduler Scheduler `koanf:"scheduler"`
	HTTP      HTTP      `koanf:"http"`
	Sync      Sync      `koanf:"sync"`
	Reminder  Reminder  `koanf:"reminder"`
	OpenAI    OpenAI    `koanf:"openai"`
	Log       Log       `koanf:"log"`
}

type Scheduler struct {
	MinEase          float64 `koanf:"min_ease" validate:"gte=1.3"`
	MaxInterval      int     `koanf:"max_interval" validate:"gte=0"`
	MasteryThreshold int     `koanf:"mastery_threshold" validate:"gte=1"`
}

type HTTP struct {
	Addr string `koanf:"addr" validate:"required"`
}

type Sync struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

type Reminder struct {
	// Every is the reminder period; zero disables reminders.
	Every time.Duration `koanf:"every" validate:"gte=0"`
}

type OpenAI struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
	Model   string `koanf:"model" validate:"required"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// flagKeys maps command-line flag names to configuration keys. Flags not
// listed here are not configuration.
var flagKeys = map[string]string{
	"db":                "database",
	"timezone":          "timezone",
	"min-ease":          "scheduler.min_ease",
	"max-interval":      "scheduler.max_interval",
	"mastery-threshold": "scheduler.mastery_threshold",
	"addr":              "http.addr",
	"repos-dir":         "sync.repos_dir",
	"remind-every":      "reminder.every",
	"openai-base-url":   "openai.base_url",
	"openai-model":      "openai.model",
	"log-level":         "log.level",
	"log-format":        "log.format",
}

// RegisterFlags adds the configuration flags and their defaults to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("env-file", ".env", "Path to a .env file; ignored when missing")
	flags.String("db", "recall.db", "Path to the SQLite database file")
	flags.String("timezone", "", "IANA time zone for streak days (default: local)")
	flags.Float64("min-ease", 1.3, "Lowest ease factor a card can reach")
	flags.Int("max-interval", 0, "Longest review interval in days (0: unbounded)")
	flags.Int("mastery-threshold", 3, "Repetitions after which a card counts as mastered")
	flags.String("addr", ":8080", "HTTP listen address")
	flags.String("repos-dir", "repos", "Directory for git deck checkouts")
	flags.Duration("remind-every", 0, "Due-card reminder period (0: disabled)")
	flags.String("openai-base-url", "", "OpenAI-compatible API base URL")
	flags.String("openai-model", "gpt-4o-mini", "Model used for card generation")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
}

// Load builds the configuration. flags must have been set up by
// RegisterFlags and parsed.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	fromFlags := func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}

	if err := k.Load(posflag.ProviderWithFlag(flags, ".", nil, fromFlags), nil); err != nil {
		return nil, fmt.Errorf("failed to load flag defaults: %w", err)
	}

	if path, _ := flags.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if envFile, _ := flags.GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Explicit flags win over everything loaded so far.
	if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, fromFlags), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps RECALL_SCHEDULER__MAX_INTERVAL to scheduler.max_interval.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, f := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", f.Namespace(), f.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location resolves the configured time zone, defaulting to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// NewLogger builds the slog logger described by the log settings.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
