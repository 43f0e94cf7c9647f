package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string

	OwnerHeader string
	DevOwnerID  string

	DBType     string
	DBDSN      string
	SQLitePath string
	DataFile   string

	PomodoroMaxMinutes     int
	PomodoroDefaultMinutes int

	RestThresholdMinutes int
	DeadlineHorizon      time.Duration
	DeadlineWindow       time.Duration
	RestWindow           time.Duration
	Location             *time.Location

	HourlyInterval time.Duration
	DailyInterval  time.Duration
}

var (
	cfg  *Config
	once sync.Once
)

// Load reads the process configuration once, loading .env first if present.
func Load() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		c, err := FromEnv()
		if err != nil {
			panic("Invalid config: " + err.Error())
		}
		cfg = c
	})
	return cfg
}

// FromEnv builds a Config from the current environment without caching it.
func FromEnv() (*Config, error) {
	c := &Config{
		Env:         getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8088"),
		OwnerHeader: getEnv("OWNER_HEADER", "X-Owner-ID"),
		DevOwnerID:  os.Getenv("DEV_OWNER_ID"),
		DBType:      getEnv("STORAGE_BACKEND", "file"),
		DBDSN:       getEnv("POSTGRES_DSN", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "data/focustracker.db"),
		DataFile:    getEnv("DATA_FILE", "data/focustracker.json"),
	}

	var errs []error
	c.PomodoroMaxMinutes = getInt("POMODORO_MAX_MINUTES", 120, &errs)
	c.PomodoroDefaultMinutes = getInt("POMODORO_DEFAULT_MINUTES", 25, &errs)
	c.RestThresholdMinutes = getInt("REST_THRESHOLD_MINUTES", 50, &errs)
	c.DeadlineHorizon = getDuration("DEADLINE_HORIZON", 24*time.Hour, &errs)
	c.DeadlineWindow = getDuration("DEADLINE_WINDOW", 24*time.Hour, &errs)
	c.RestWindow = getDuration("REST_WINDOW", time.Hour, &errs)
	c.HourlyInterval = getDuration("SCAN_HOURLY_INTERVAL", time.Hour, &errs)
	c.DailyInterval = getDuration("SCAN_DAILY_INTERVAL", 24*time.Hour, &errs)

	loc, err := time.LoadLocation(getEnv("REMINDER_TZ", "Local"))
	if err != nil {
		errs = append(errs, fmt.Errorf("REMINDER_TZ: %w", err))
	}
	c.Location = loc

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.DBType {
	case "postgres":
		if c.DBDSN == "" {
			return errors.New("POSTGRES_DSN is required when STORAGE_BACKEND=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORAGE_BACKEND=sqlite")
		}
	case "file":
		if c.DataFile == "" {
			return errors.New("file storage requires DATA_FILE to be set")
		}
	default:
		return errors.New("STORAGE_BACKEND must be one of: file, postgres, sqlite")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	if c.DevOwnerID != "" && c.Env != "development" {
		return errors.New("DEV_OWNER_ID is only allowed when APP_ENV=development")
	}
	if c.PomodoroMaxMinutes < 1 {
		return errors.New("POMODORO_MAX_MINUTES must be positive")
	}
	if c.PomodoroDefaultMinutes < 1 || c.PomodoroDefaultMinutes > c.PomodoroMaxMinutes {
		return errors.New("POMODORO_DEFAULT_MINUTES must be within 1..POMODORO_MAX_MINUTES")
	}
	if c.RestThresholdMinutes < 1 {
		return errors.New("REST_THRESHOLD_MINUTES must be positive")
	}
	for name, d := range map[string]time.Duration{
		"DEADLINE_HORIZON":     c.DeadlineHorizon,
		"DEADLINE_WINDOW":      c.DeadlineWindow,
		"REST_WINDOW":          c.RestWindow,
		"SCAN_HOURLY_INTERVAL": c.HourlyInterval,
		"SCAN_DAILY_INTERVAL":  c.DailyInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
