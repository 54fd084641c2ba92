package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// JWT configuration
	JWT JWTConfig `mapstructure:"jwt"`

	// Scheduling configuration
	Scheduling SchedulingConfig `mapstructure:"scheduling"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

// SlotConfig is one named hospital time-of-day window. Order matters: a
// slots-strategy order selects entries by bit position in its mask.
type SlotConfig struct {
	Code  string `mapstructure:"code"`
	Label string `mapstructure:"label"`
	Time  string `mapstructure:"time"` // "15:04"
}

// SchedulingConfig holds the order-to-task scheduling configuration
type SchedulingConfig struct {
	// Slots is the ordered hospital time-slot dictionary
	Slots []SlotConfig `mapstructure:"slots"`

	// OverdueToleranceMin maps task category to the minutes past the
	// planned start after which a pending task counts as overdue
	OverdueToleranceMin map[string]int `mapstructure:"overdue_tolerance_min"`

	// OverdueSweepSpec is the cron spec for the overdue-detection sweep
	OverdueSweepSpec string `mapstructure:"overdue_sweep_spec"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/careflow")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Override with environment variables
	overrideWithEnv(&config)

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "careflow")
	viper.SetDefault("database.user", "careflow")
	viper.SetDefault("database.ssl_mode", "require")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// JWT defaults
	viper.SetDefault("jwt.issuer", "careflow-orders")
	viper.SetDefault("jwt.audience", "careflow-staff")

	// Hospital time-slot dictionary defaults
	viper.SetDefault("scheduling.slots", []map[string]interface{}{
		{"code": "pre_breakfast", "label": "Before breakfast", "time": "07:00"},
		{"code": "post_breakfast", "label": "After breakfast", "time": "09:00"},
		{"code": "pre_lunch", "label": "Before lunch", "time": "11:00"},
		{"code": "post_lunch", "label": "After lunch", "time": "13:00"},
		{"code": "pre_dinner", "label": "Before dinner", "time": "17:00"},
		{"code": "post_dinner", "label": "After dinner", "time": "19:00"},
		{"code": "bedtime", "label": "Bedtime", "time": "21:00"},
	})

	// Overdue tolerance defaults, minutes per task category
	viper.SetDefault("scheduling.overdue_tolerance_min", map[string]int{
		"immediate":              15,
		"duration":               30,
		"result_pending":         60,
		"data_collection":        30,
		"verification":           120,
		"application_with_print": 60,
		"discharge_confirmation": 60,
	})
	viper.SetDefault("scheduling.overdue_sweep_spec", "@every 5m")

	// Logging defaults
	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if jwtSecret := os.Getenv("JWT_SECRET_KEY"); jwtSecret != "" {
		config.JWT.SecretKey = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the loaded configuration
func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if len(config.Scheduling.Slots) == 0 {
		return fmt.Errorf("scheduling.slots must not be empty")
	}

	if len(config.Scheduling.Slots) > 32 {
		return fmt.Errorf("scheduling.slots exceeds the 32 positions addressable by a slot mask")
	}

	for _, slot := range config.Scheduling.Slots {
		if slot.Code == "" {
			return fmt.Errorf("scheduling slot with empty code")
		}
		if _, err := parseClock(slot.Time); err != nil {
			return fmt.Errorf("scheduling slot %s: %w", slot.Code, err)
		}
	}

	return nil
}

// parseClock validates an "HH:MM" clock time
func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in clock time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in clock time %q", s)
	}
	return h*60 + m, nil
}
