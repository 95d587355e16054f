package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	CORSOrigins []string

	BackendURL     string
	BackendTimeout time.Duration
	BackendRetries int

	DatabaseURL   string
	RedisURL      string
	NATSURL       string
	EventsChannel string
	JWTSecret     string
	AuthRoles     []string

	ReportCacheTTL     time.Duration
	DefaultThreshold   float64
	LandscapeThreshold int

	SettleMode    string
	SettleDelay   time.Duration
	PollInterval  time.Duration
	PollAttempts  int
	RunTimeout    time.Duration
	RateLimitMax  int
	RateLimitSpan time.Duration

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	UploadMaxSizeMB int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RENDUS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Rendus API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.cors_origins", "*")
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("backend.retries", 1)
	v.SetDefault("database.url", "sqlite://rendus.db")
	v.SetDefault("events.channel", "rendus")
	v.SetDefault("auth.roles", "teacher,admin")
	v.SetDefault("report.cache_ttl", "30s")
	v.SetDefault("report.default_threshold", 75)
	v.SetDefault("report.landscape_threshold", 8)
	v.SetDefault("processing.settle_mode", "delay")
	v.SetDefault("processing.settle_delay", "1s")
	v.SetDefault("processing.poll_interval", "1s")
	v.SetDefault("processing.poll_attempts", 10)
	v.SetDefault("processing.run_timeout", "2m")
	v.SetDefault("ratelimit.max", 30)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("cloudinary.folder", "rendus/reports")
	v.SetDefault("upload.max_size_mb", 50)

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"backend.timeout",
		"report.cache_ttl",
		"processing.settle_delay",
		"processing.poll_interval",
		"processing.run_timeout",
		"ratelimit.window",
	} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed < 0 {
			return Config{}, fmt.Errorf("invalid %s: must not be negative", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		CORSOrigins:            splitList(v.GetString("app.cors_origins")),
		BackendURL:             strings.TrimSpace(v.GetString("backend.url")),
		BackendTimeout:         durations["backend.timeout"],
		BackendRetries:         v.GetInt("backend.retries"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventsChannel:          v.GetString("events.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		AuthRoles:              splitList(v.GetString("auth.roles")),
		ReportCacheTTL:         durations["report.cache_ttl"],
		DefaultThreshold:       v.GetFloat64("report.default_threshold"),
		LandscapeThreshold:     v.GetInt("report.landscape_threshold"),
		SettleMode:             strings.ToLower(strings.TrimSpace(v.GetString("processing.settle_mode"))),
		SettleDelay:            durations["processing.settle_delay"],
		PollInterval:           durations["processing.poll_interval"],
		PollAttempts:           v.GetInt("processing.poll_attempts"),
		RunTimeout:             durations["processing.run_timeout"],
		RateLimitMax:           v.GetInt("ratelimit.max"),
		RateLimitSpan:          durations["ratelimit.window"],
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
	}

	if cfg.BackendURL == "" {
		return Config{}, fmt.Errorf("backend url must be provided")
	}

	if cfg.DefaultThreshold < 0 || cfg.DefaultThreshold > 100 {
		return Config{}, fmt.Errorf("report default threshold must be a percentage between 0 and 100")
	}

	switch cfg.SettleMode {
	case "delay", "poll":
	default:
		return Config{}, fmt.Errorf("unknown processing settle mode %q", cfg.SettleMode)
	}

	if cfg.LandscapeThreshold <= 0 {
		cfg.LandscapeThreshold = 8
	}

	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 10
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 50
	}

	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
