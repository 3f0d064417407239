package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"camward/pkg/validation"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Stream struct {
		URL    string `yaml:"url"`
		Camera struct {
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Channel  int    `yaml:"channel"`
			Subtype  int    `yaml:"subtype"` // 0 = main stream, 1 = sub stream
		} `yaml:"camera"`
		Transport         string        `yaml:"transport"`
		ConnectTimeout    time.Duration `yaml:"connect_timeout"`
		ReconnectAttempts int           `yaml:"reconnect_attempts"`
		ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
		FrameRate         int           `yaml:"frame_rate"`
		JPEGQuality       int           `yaml:"jpeg_quality"`
		ScratchRetention  int           `yaml:"scratch_retention"`
		PollInterval      time.Duration `yaml:"poll_interval"`
		SettleDelay       time.Duration `yaml:"settle_delay"`
		FreshnessWindow   time.Duration `yaml:"freshness_window"`
		MinFrameBytes     int64         `yaml:"min_frame_bytes"`
	} `yaml:"stream"`

	Recording struct {
		OutputDir      string        `yaml:"output_dir"`
		Extension      string        `yaml:"extension"`
		VideoCodec     string        `yaml:"video_codec"`
		Preset         string        `yaml:"preset"`
		CRF            int           `yaml:"crf"`
		Scale          string        `yaml:"scale"` // optional WxH transform
		RotateSize     int64         `yaml:"rotate_size_bytes"`
		PollInterval   time.Duration `yaml:"poll_interval"`
		RestartBackoff time.Duration `yaml:"restart_backoff"`
		RetentionAge   time.Duration `yaml:"retention_age"` // 0 disables the sweeper
		SweepInterval  time.Duration `yaml:"sweep_interval"`
	} `yaml:"recording"`

	Health struct {
		Tick           time.Duration `yaml:"tick"`
		WarnTimeout    time.Duration `yaml:"warn_timeout"`
		RestartTimeout time.Duration `yaml:"restart_timeout"`
		WarnEvery      time.Duration `yaml:"warn_every"`
		StatsInterval  time.Duration `yaml:"stats_interval"`
	} `yaml:"health"`

	Shutdown struct {
		GracefulWait  time.Duration `yaml:"graceful_wait"`
		TerminateWait time.Duration `yaml:"terminate_wait"`
		KillWait      time.Duration `yaml:"kill_wait"`
	} `yaml:"shutdown"`

	Transcoder struct {
		Binary   string `yaml:"binary"`
		LogLevel string `yaml:"loglevel"`
	} `yaml:"transcoder"`

	Signal struct {
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
		SendBuffer   int           `yaml:"send_buffer"`
	} `yaml:"signal"`

	Auth struct {
		Enabled   bool          `yaml:"enabled"`
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
		Username  string        `yaml:"username"`
		Password  string        `yaml:"password"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
	} `yaml:"rate_limiting"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		HealthEnabled     bool `yaml:"health_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// ResolveStreamURL returns the configured stream URL, assembling the
// Amcrest-style form from the camera block when no literal URL is set.
func (c *Config) ResolveStreamURL() string {
	if c.Stream.URL != "" {
		return c.Stream.URL
	}
	if c.Stream.Camera.Host == "" {
		return ""
	}
	return fmt.Sprintf("rtsp://%s:%s@%s:%d/cam/realmonitor?channel=%d&subtype=%d",
		c.Stream.Camera.Username, c.Stream.Camera.Password,
		c.Stream.Camera.Host, c.Stream.Camera.Port,
		c.Stream.Camera.Channel, c.Stream.Camera.Subtype)
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Stream
	if err := validation.ValidateStreamURL(c.ResolveStreamURL()); err != nil {
		return fmt.Errorf("stream.url: %w", err)
	}
	if err := validation.ValidateTransport(c.Stream.Transport); err != nil {
		return fmt.Errorf("stream.transport: %w", err)
	}
	if err := validation.ValidateFrameRate(c.Stream.FrameRate); err != nil {
		return fmt.Errorf("stream.frame_rate: %w", err)
	}
	if err := validation.ValidateJPEGQuality(c.Stream.JPEGQuality); err != nil {
		return fmt.Errorf("stream.jpeg_quality: %w", err)
	}
	if c.Stream.ScratchRetention < 1 {
		return fmt.Errorf("stream.scratch_retention must be >= 1")
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("stream.poll_interval must be > 0")
	}
	if c.Stream.SettleDelay < 0 {
		return fmt.Errorf("stream.settle_delay must be >= 0")
	}
	if c.Stream.FreshnessWindow <= 0 {
		return fmt.Errorf("stream.freshness_window must be > 0")
	}
	if c.Stream.MinFrameBytes < 0 {
		return fmt.Errorf("stream.min_frame_bytes must be >= 0")
	}
	if c.Stream.ReconnectAttempts < 0 {
		return fmt.Errorf("stream.reconnect_attempts must be >= 0")
	}

	// Recording
	if c.Recording.OutputDir == "" {
		return fmt.Errorf("recording.output_dir must not be empty")
	}
	if c.Recording.Extension == "" {
		return fmt.Errorf("recording.extension must not be empty")
	}
	if c.Recording.VideoCodec == "" {
		return fmt.Errorf("recording.video_codec must not be empty")
	}
	if err := validation.ValidateRotateSize(c.Recording.RotateSize); err != nil {
		return fmt.Errorf("recording.rotate_size_bytes: %w", err)
	}
	if err := validation.ValidateScale(c.Recording.Scale); err != nil {
		return fmt.Errorf("recording.scale: %w", err)
	}
	if err := validation.ValidatePreset(c.Recording.Preset); err != nil {
		return fmt.Errorf("recording.preset: %w", err)
	}
	if c.Recording.CRF < 0 || c.Recording.CRF > 51 {
		return fmt.Errorf("recording.crf must be in [0, 51]")
	}
	if c.Recording.PollInterval <= 0 {
		return fmt.Errorf("recording.poll_interval must be > 0")
	}
	if c.Recording.RestartBackoff < 0 {
		return fmt.Errorf("recording.restart_backoff must be >= 0")
	}
	if c.Recording.RetentionAge < 0 {
		return fmt.Errorf("recording.retention_age must be >= 0")
	}
	if c.Recording.RetentionAge > 0 && c.Recording.SweepInterval <= 0 {
		return fmt.Errorf("recording.sweep_interval must be > 0 when retention_age is set")
	}

	// Health
	if c.Health.Tick <= 0 {
		return fmt.Errorf("health.tick must be > 0")
	}
	if c.Health.WarnTimeout <= 0 {
		return fmt.Errorf("health.warn_timeout must be > 0")
	}
	if c.Health.RestartTimeout <= c.Health.WarnTimeout {
		return fmt.Errorf("health.restart_timeout must be > health.warn_timeout")
	}
	if c.Health.WarnEvery <= 0 {
		return fmt.Errorf("health.warn_every must be > 0")
	}
	if c.Health.StatsInterval <= 0 {
		return fmt.Errorf("health.stats_interval must be > 0")
	}

	// Shutdown ladder
	if c.Shutdown.GracefulWait <= 0 {
		return fmt.Errorf("shutdown.graceful_wait must be > 0")
	}
	if c.Shutdown.TerminateWait <= 0 {
		return fmt.Errorf("shutdown.terminate_wait must be > 0")
	}
	if c.Shutdown.KillWait <= 0 {
		return fmt.Errorf("shutdown.kill_wait must be > 0")
	}

	// Transcoder
	if c.Transcoder.Binary == "" {
		return fmt.Errorf("transcoder.binary must not be empty")
	}

	// Signal
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > signal.ping_interval")
	}
	if c.Signal.SendBuffer <= 0 {
		return fmt.Errorf("signal.send_buffer must be > 0")
	}

	// Auth
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret must not be empty when auth.enabled=true")
		}
		if err := validation.ValidateUsername(c.Auth.Username); err != nil {
			return fmt.Errorf("auth.username: %w", err)
		}
		if err := validation.ValidatePassword(c.Auth.Password); err != nil {
			return fmt.Errorf("auth.password: %w", err)
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be > 0 when auth.enabled=true")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Stream.Camera.Username = "admin"
	cfg.Stream.Camera.Port = 554
	cfg.Stream.Camera.Channel = 1
	cfg.Stream.Camera.Subtype = 0
	cfg.Stream.Transport = "tcp"
	cfg.Stream.ConnectTimeout = 5 * time.Second
	cfg.Stream.ReconnectAttempts = 3
	cfg.Stream.ReconnectDelay = 5 * time.Second
	cfg.Stream.FrameRate = 5
	cfg.Stream.JPEGQuality = 80
	cfg.Stream.ScratchRetention = 5
	cfg.Stream.PollInterval = 200 * time.Millisecond
	cfg.Stream.SettleDelay = 100 * time.Millisecond
	cfg.Stream.FreshnessWindow = 10 * time.Second
	cfg.Stream.MinFrameBytes = 1024

	cfg.Recording.OutputDir = "recordings"
	cfg.Recording.Extension = "mp4"
	cfg.Recording.VideoCodec = "libx264"
	cfg.Recording.Preset = "veryfast"
	cfg.Recording.CRF = 23
	cfg.Recording.RotateSize = 10 * 1024 * 1024 // 10 MiB
	cfg.Recording.PollInterval = 10 * time.Second
	cfg.Recording.RestartBackoff = 10 * time.Second
	cfg.Recording.RetentionAge = 7 * 24 * time.Hour
	cfg.Recording.SweepInterval = time.Hour

	cfg.Health.Tick = 5 * time.Second
	cfg.Health.WarnTimeout = 10 * time.Second
	cfg.Health.RestartTimeout = 30 * time.Second
	cfg.Health.WarnEvery = 60 * time.Second
	cfg.Health.StatsInterval = 60 * time.Second

	cfg.Shutdown.GracefulWait = 5 * time.Second
	cfg.Shutdown.TerminateWait = 3 * time.Second
	cfg.Shutdown.KillWait = 2 * time.Second

	cfg.Transcoder.Binary = "ffmpeg"
	cfg.Transcoder.LogLevel = "error"

	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.SendBuffer = 16

	cfg.Auth.Enabled = false
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Auth.Username = "admin"

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 10
	cfg.RateLimiting.Burst = 20
	cfg.RateLimiting.MaxConcurrent = 0

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.HealthEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if addr := os.Getenv("CAMWARD_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if url := os.Getenv("CAMWARD_STREAM_URL"); url != "" {
		c.Stream.URL = url
	}
	if pass := os.Getenv("CAMWARD_CAMERA_PASSWORD"); pass != "" {
		c.Stream.Camera.Password = pass
	}
	if dir := os.Getenv("CAMWARD_OUTPUT_DIR"); dir != "" {
		c.Recording.OutputDir = dir
	}
	if bin := os.Getenv("CAMWARD_FFMPEG"); bin != "" {
		c.Transcoder.Binary = bin
	}
	if level := os.Getenv("CAMWARD_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("CAMWARD_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if size := os.Getenv("CAMWARD_ROTATE_SIZE_BYTES"); size != "" {
		if n, err := strconv.ParseInt(size, 10, 64); err == nil && n > 0 {
			c.Recording.RotateSize = n
		}
	}
}
