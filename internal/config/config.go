package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBaseURL     = "http://localhost:8080/api/v1"
	DefaultAvatarMaxBytes = 512 * 1024
	DefaultLogsDir        = "logs"
)

// StorageConfig selects where the client keeps its session state
type StorageConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=memory sqlite postgres"`
	// Path is the SQLite database file
	Path string `yaml:"path" validate:"required_if=Driver sqlite"`
	// DSN is the Postgres connection string
	DSN          string        `yaml:"dsn" validate:"required_if=Driver postgres"`
	PollInterval time.Duration `yaml:"pollInterval" validate:"gte=0"`
}

// NotificationsConfig configures the notification poller
type NotificationsConfig struct {
	PollInterval time.Duration `yaml:"pollInterval" validate:"gte=0"`
}

// SearchConfig configures volunteer search and location autocompletion
type SearchConfig struct {
	Debounce       time.Duration `yaml:"debounce" validate:"gte=0"`
	MaxSuggestions int           `yaml:"maxSuggestions" validate:"gte=0,lte=50"`
}

// CalendarConfig configures the calendar entries produced on enrollment
type CalendarConfig struct {
	DefaultDurationHours float64 `yaml:"defaultDurationHours" validate:"gte=0"`
	// ReminderRRule is offered as a recurring reminder when an activity is full
	ReminderRRule string `yaml:"reminderRRule,omitempty"`
	// OutputDir receives .ics files. Empty disables the file sink.
	OutputDir string `yaml:"outputDir,omitempty"`
}

// DefaultDuration returns the configured event duration
func (c CalendarConfig) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultDurationHours * float64(time.Hour))
}

// GoogleConfig enables the optional Google integrations
type GoogleConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CalendarID      string `yaml:"calendarID,omitempty"`
	HistorySheetID  string `yaml:"historySheetID,omitempty"`
	InviteRecipient string `yaml:"inviteRecipient,omitempty" validate:"omitempty,email"`
}

// Config represents the application configuration
type Config struct {
	APIBaseURL     string              `yaml:"apiBaseURL" validate:"required,url"`
	RequestTimeout time.Duration       `yaml:"requestTimeout" validate:"gte=0"`
	AvatarMaxBytes int64               `yaml:"avatarMaxBytes" validate:"gte=0"`
	Storage        StorageConfig       `yaml:"storage"`
	Notifications  NotificationsConfig `yaml:"notifications"`
	Search         SearchConfig        `yaml:"search"`
	Calendar       CalendarConfig      `yaml:"calendar"`
	Google         GoogleConfig        `yaml:"google"`
	LogsDir        string              `yaml:"logsDir"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns the configuration used when no file sets a value
func Default() *Config {
	return &Config{
		APIBaseURL:     DefaultAPIBaseURL,
		AvatarMaxBytes: DefaultAvatarMaxBytes,
		Storage: StorageConfig{
			Driver:       "sqlite",
			PollInterval: time.Second,
		},
		Notifications: NotificationsConfig{PollInterval: 15 * time.Second},
		Search: SearchConfig{
			Debounce:       250 * time.Millisecond,
			MaxSuggestions: 6,
		},
		Calendar: CalendarConfig{
			DefaultDurationHours: 2,
			ReminderRRule:        "FREQ=DAILY",
		},
		LogsDir: DefaultLogsDir,
	}
}

// LoadWithEnv loads and validates the configuration for an environment.
// For example, env="test" will look for "volunteer_config.test.yaml". A
// missing file is not an error: defaults and environment variables apply.
func LoadWithEnv(env string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()
	configPath, err := findConfigFile(env)
	if err == nil {
		if err := readInto(configPath, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := readInto(path, cfg); err != nil {
		return nil, err
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func finish(cfg *Config) error {
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.Path == "" {
		path, err := defaultStatePath()
		if err != nil {
			return err
		}
		cfg.Storage.Path = path
	}
	return Validate(cfg)
}

// Validate validates the configuration struct and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Calendar.ReminderRRule != "" {
		if _, err := rrule.StrToRRule(cfg.Calendar.ReminderRRule); err != nil {
			return fmt.Errorf("invalid rrule in calendar.reminderRRule: %w", err)
		}
	}

	if cfg.Google.Enabled && cfg.Google.CalendarID == "" && cfg.Google.HistorySheetID == "" && cfg.Google.InviteRecipient == "" {
		return fmt.Errorf("config validation failed: google is enabled but no calendarID, historySheetID or inviteRecipient is set")
	}

	return nil
}

// applyEnv overrides file values with VOLUNTEER_* environment variables
func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"VOLUNTEER_API_BASE_URL":   &cfg.APIBaseURL,
		"VOLUNTEER_STORAGE_DRIVER": &cfg.Storage.Driver,
		"VOLUNTEER_STORAGE_PATH":   &cfg.Storage.Path,
		"VOLUNTEER_STORAGE_DSN":    &cfg.Storage.DSN,
		"VOLUNTEER_LOGS_DIR":       &cfg.LogsDir,
		"VOLUNTEER_CALENDAR_DIR":   &cfg.Calendar.OutputDir,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"VOLUNTEER_REQUEST_TIMEOUT":   &cfg.RequestTimeout,
		"VOLUNTEER_NOTIFICATION_POLL": &cfg.Notifications.PollInterval,
		"VOLUNTEER_STORAGE_POLL":      &cfg.Storage.PollInterval,
		"VOLUNTEER_SEARCH_DEBOUNCE":   &cfg.Search.Debounce,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration in %s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv("VOLUNTEER_GOOGLE_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean in VOLUNTEER_GOOGLE_ENABLED: %w", err)
		}
		cfg.Google.Enabled = enabled
	}
	return nil
}

// findConfigFile searches for volunteer_config.<env>.yaml in current directory and home directory
func findConfigFile(env string) (string, error) {
	configFileName := "volunteer_config.yaml"
	if env != "" {
		configFileName = "volunteer_config." + env + ".yaml"
	}

	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file not found in current directory or home directory")
}

func defaultStatePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".volunteer-portal", "state.db"), nil
}
