// Package config provides configuration management for sportsclips using
// Viper. It supports configuration from files, environment variables, and
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultHTTPTimeout     = 60 * time.Second

	defaultChunkDuration = 2 // seconds

	defaultWindowSize      = 9
	defaultWindowStep      = 3
	defaultMinCacheWindows = 20
	defaultStageRetries    = 3

	defaultCommentaryPairSize  = 2
	defaultCommentaryFPS       = 1.0
	defaultCommentaryMaxFPS    = 4.0
	defaultClientBuffer        = 3
	defaultCommentarySampleHz  = 24000
	defaultCommentarySoftCap   = 60
	defaultCommentaryWindowTTL = 10 * time.Second

	defaultLLMTimeout = 60 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Window     WindowConfig     `mapstructure:"window"`
	Commentary CommentaryConfig `mapstructure:"commentary"`
	LLM        LLMConfig        `mapstructure:"llm"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
}

// ServerConfig holds WebSocket/HTTP gateway configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// IngestConfig holds source-ingestion configuration: the base chunk
// duration every downstream window/pairing size is expressed in multiples
// of, the downloader/transcoder binaries, and yt-dlp passthrough options.
type IngestConfig struct {
	ChunkDuration  int           `mapstructure:"chunk_duration_seconds"`
	FormatPref     string        `mapstructure:"format_preference"`
	ExtraFlags     []string      `mapstructure:"extra_downloader_flags"`
	CookiesFile    string        `mapstructure:"cookies_file"`
	DownloaderPath string        `mapstructure:"downloader_path"` // empty = auto-detect yt-dlp
	FFmpegPath     string        `mapstructure:"ffmpeg_path"`     // empty = auto-detect
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
}

// WindowConfig holds Highlight Consumer sliding-window configuration.
type WindowConfig struct {
	Size          int `mapstructure:"size"`             // W, default 9
	Step          int `mapstructure:"step"`              // S, advance on no-highlight, default 3
	MinCacheChunks int `mapstructure:"min_cache_chunks"` // floor on the rolling buffer's retained chunk count, default 20; the Highlight Consumer uses its own fixed floor of 20 and does not read this field
	StageRetries  int `mapstructure:"stage_retries"`     // per-LLM-stage retry budget, default 3
}

// CommentaryConfig holds Live Commentary Consumer configuration.
type CommentaryConfig struct {
	PairSize          int           `mapstructure:"pair_size"`           // base chunks combined per commentary window, default 2; validated but not read by the consumer, which always pairs two chunks
	FPS               float64       `mapstructure:"fps"`                 // frame-extraction rate sent to the live session, default 1.0, max 4.0
	ClientBufferChunks int          `mapstructure:"client_buffer_chunks"` // B; documented for the client's own pre-buffer policy, not enforced server-side
	SampleRate        int           `mapstructure:"sample_rate"`         // PCM sample rate returned by the live session, default 24000
	SoftCapChunks     int           `mapstructure:"soft_cap_chunks"`     // bound on ReceiveChunk iterations per window, default 60; not read by the consumer, which uses its own constant of 60
	WindowTimeout     time.Duration `mapstructure:"window_timeout"`      // bound on time spent receiving one window's audio, default 10s; not read by the consumer, which uses its own constant of 10s
}

// LLMConfig holds the generative-AI provider configuration shared by the
// Detect/Trim/Caption stages and the live-commentary session.
type LLMConfig struct {
	APIKeyEnvVar string        `mapstructure:"api_key_env_var"` // environment variable holding the provider key, default GEMINI_API_KEY
	Model        string        `mapstructure:"model"`
	LiveModel    string        `mapstructure:"live_model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Debug        bool          `mapstructure:"debug"` // Trim also writes the full rendered window as debug-full-window.mp4 into its own scratch scope; that scope is removed when the stage returns and the copy is never sent to the client
}

// FFmpegConfig holds FFmpeg process configuration.
type FFmpegConfig struct {
	BinaryPath      string `mapstructure:"binary_path"`      // path to ffmpeg binary (empty = auto-detect)
	ProbePath       string `mapstructure:"probe_path"`       // path to ffprobe binary (empty = auto-detect)
	HWAccelType     string `mapstructure:"hwaccel_type"`     // e.g. vaapi, cuda, qsv, videotoolbox, none, or "auto" to probe at startup
	HWAccelDevice   string `mapstructure:"hwaccel_device"`   // e.g. /dev/dri/renderD128
	LogLevel        string `mapstructure:"log_level"`        // ffmpeg -loglevel value
	CaptureStderr   bool   `mapstructure:"capture_stderr"`   // keep stderr for structured logging / error wrapping
	ExtraOutputArgs string `mapstructure:"extra_output_args"` // operator-supplied raw ffmpeg output flags, validated before use
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with SPORTSCLIPS_ and use underscores
// for nesting. Example: SPORTSCLIPS_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/sportsclips")
		v.AddConfigPath("$HOME/.sportsclips")
	}

	// Environment variable settings
	v.SetEnvPrefix("SPORTSCLIPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.idle_timeout", defaultHTTPTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Ingest defaults
	v.SetDefault("ingest.chunk_duration_seconds", defaultChunkDuration)
	v.SetDefault("ingest.format_preference", "bestvideo+bestaudio/best")
	v.SetDefault("ingest.downloader_path", "")
	v.SetDefault("ingest.ffmpeg_path", "")
	v.SetDefault("ingest.http_timeout", defaultHTTPTimeout)

	// Window defaults
	v.SetDefault("window.size", defaultWindowSize)
	v.SetDefault("window.step", defaultWindowStep)
	v.SetDefault("window.min_cache_chunks", defaultMinCacheWindows)
	v.SetDefault("window.stage_retries", defaultStageRetries)

	// Commentary defaults
	v.SetDefault("commentary.pair_size", defaultCommentaryPairSize)
	v.SetDefault("commentary.fps", defaultCommentaryFPS)
	v.SetDefault("commentary.client_buffer_chunks", defaultClientBuffer)
	v.SetDefault("commentary.sample_rate", defaultCommentarySampleHz)
	v.SetDefault("commentary.soft_cap_chunks", defaultCommentarySoftCap)
	v.SetDefault("commentary.window_timeout", defaultCommentaryWindowTTL)

	// LLM defaults
	v.SetDefault("llm.api_key_env_var", "GEMINI_API_KEY")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.live_model", "gemini-2.0-flash-live-001")
	v.SetDefault("llm.timeout", defaultLLMTimeout)
	v.SetDefault("llm.debug", false)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.hwaccel_type", "none")
	v.SetDefault("ffmpeg.hwaccel_device", "")
	v.SetDefault("ffmpeg.log_level", "error")
	v.SetDefault("ffmpeg.capture_stderr", true)
	v.SetDefault("ffmpeg.extra_output_args", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Ingest validation
	if c.Ingest.ChunkDuration < 1 {
		return fmt.Errorf("ingest.chunk_duration_seconds must be at least 1")
	}

	// Window validation
	if c.Window.Size < 1 {
		return fmt.Errorf("window.size must be at least 1")
	}
	if c.Window.Step < 1 {
		return fmt.Errorf("window.step must be at least 1")
	}

	// Commentary validation
	if c.Commentary.PairSize < 1 {
		return fmt.Errorf("commentary.pair_size must be at least 1")
	}
	if c.Commentary.FPS <= 0 || c.Commentary.FPS > defaultCommentaryMaxFPS {
		return fmt.Errorf("commentary.fps must be between 0 and %.1f", defaultCommentaryMaxFPS)
	}

	// LLM validation
	if c.LLM.APIKeyEnvVar == "" {
		return fmt.Errorf("llm.api_key_env_var is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
