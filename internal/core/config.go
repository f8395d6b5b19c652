package core

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jo-hoe/carddraw/internal/backend/database"
	"gopkg.in/yaml.v3"
)

const (
	// MaxGroups bounds the number of groups a draw may be split into.
	MaxGroups = 10

	defaultPort           = 8080
	defaultQuota          = 1
	defaultAdvanceDelay   = 1500 * time.Millisecond
	defaultThumbnailWidth = 240
	defaultStartupTimeout = 30 * time.Second
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
	// StartupTimeout bounds how long startup waits for the store to answer.
	StartupTimeout time.Duration `yaml:"startupTimeout"`
}

type Selection struct {
	// Quota is how often a single image may be drawn (1 or 2).
	Quota int `yaml:"quota"`
	// ResetPolicy is either "delete" or "clear".
	ResetPolicy database.ResetPolicy `yaml:"resetPolicy"`
	// AdvanceDelay is how long a finished group stays active before the draw
	// moves on, leaving the client time to reveal the last image.
	AdvanceDelay time.Duration `yaml:"advanceDelay"`
	// Groups is the initial number of groups.
	Groups int `yaml:"groups"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServiceConfig struct {
	Port           int       `yaml:"port"`
	Database       Database  `yaml:"database"`
	Selection      Selection `yaml:"selection"`
	Logging        Logging   `yaml:"logging"`
	ThumbnailWidth int       `yaml:"thumbnailWidth"`
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, fills in defaults and validates the result.
func ParseConfig(data []byte) (*ServiceConfig, error) {
	// Zero is a valid advance delay, so its default is set before decoding
	// and only an absent key keeps it.
	config := ServiceConfig{Selection: Selection{AdvanceDelay: defaultAdvanceDelay}}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Database.Type == "" {
		c.Database.Type = database.TypeMemory
	}
	if c.Database.StartupTimeout == 0 {
		c.Database.StartupTimeout = defaultStartupTimeout
	}
	if c.Selection.Quota == 0 {
		c.Selection.Quota = defaultQuota
	}
	if c.Selection.ResetPolicy == "" {
		c.Selection.ResetPolicy = database.ResetDelete
	}
	if c.Selection.Groups == 0 {
		c.Selection.Groups = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.ThumbnailWidth == 0 {
		c.ThumbnailWidth = defaultThumbnailWidth
	}
}

// Validate ensures all configuration values are usable
func (c *ServiceConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.Database.Type {
	case database.TypeMemory:
	case database.TypeSQLite, database.TypePostgres, database.TypeRedis:
		if c.Database.ConnectionString == "" {
			return fmt.Errorf("database type %s requires a connectionString", c.Database.Type)
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Selection.Quota < 1 || c.Selection.Quota > 2 {
		return fmt.Errorf("selection quota must be 1 or 2, got %d", c.Selection.Quota)
	}
	if !c.Selection.ResetPolicy.Valid() {
		return fmt.Errorf("unsupported reset policy: %s", c.Selection.ResetPolicy)
	}
	if c.Selection.AdvanceDelay < 0 {
		return fmt.Errorf("advance delay must not be negative, got %s", c.Selection.AdvanceDelay)
	}
	if c.Selection.Groups < 1 || c.Selection.Groups > MaxGroups {
		return fmt.Errorf("groups must be between 1 and %d, got %d", MaxGroups, c.Selection.Groups)
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("unsupported log format: %s", c.Logging.Format)
	}
	if c.ThumbnailWidth < 1 || c.ThumbnailWidth > MaxThumbnailWidth {
		return fmt.Errorf("thumbnailWidth must be between 1 and %d, got %d", MaxThumbnailWidth, c.ThumbnailWidth)
	}
	return nil
}

func (l Logging) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return level, fmt.Errorf("unsupported log level %q: %w", l.Level, err)
	}
	return level, nil
}

// NewLogger builds the process logger described by the logging section.
func (l Logging) NewLogger() *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
