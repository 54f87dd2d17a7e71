// Package config loads coachd settings. Values are layered: built-in
// defaults, then an optional YAML file, then .env, then the process
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/realtime-ai/realtime-coach/pkg/trace"
)

// ErrMissingAPIKey is returned by RequireLLM when no key is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

type Config struct {
	LLM    LLMConfig    `yaml:"llm"`
	Coach  CoachConfig  `yaml:"coach"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Trace  TraceConfig  `yaml:"trace"`
}

type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int64         `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

type CoachConfig struct {
	// SystemPrompt overrides the built-in coaching prompt when set.
	SystemPrompt string `yaml:"system_prompt"`
	// SystemPromptFile is read when SystemPrompt is empty.
	SystemPromptFile string `yaml:"system_prompt_file"`
	// IdleTimeout discards calls that saw no turn for this long. Zero
	// keeps calls until they are ended explicitly.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// StreamURL is the public wss:// URL Twilio is told to stream to.
	StreamURL       string        `yaml:"stream_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
}

type TraceConfig struct {
	Exporter     string  `yaml:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.4,
			MaxTokens:   400,
			Timeout:     8 * time.Second,
		},
		Coach: CoachConfig{IdleTimeout: 30 * time.Minute},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Mode: "development"},
		Trace: TraceConfig{
			Exporter:     trace.ExporterNone,
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "development",
		},
	}
}

// Load builds the configuration. path may be empty. A missing .env file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.LLM.APIKey, "OPENAI_API_KEY")
	setString(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	setString(&c.LLM.Model, "COACH_MODEL")
	setString(&c.Log.Mode, "LOG_MODE")
	setString(&c.Trace.Exporter, "TRACE_EXPORTER")
	setString(&c.Trace.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Trace.Environment, "ENVIRONMENT")
	setString(&c.Server.ListenAddr, "COACH_LISTEN_ADDR")
	setString(&c.Server.StreamURL, "TWILIO_STREAM_URL")

	if v := os.Getenv("COACH_LLM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COACH_LLM_TIMEOUT: %w", err)
		}
		c.LLM.Timeout = d
	}
	if v := os.Getenv("COACH_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COACH_IDLE_TIMEOUT: %w", err)
		}
		c.Coach.IdleTimeout = d
	}
	if v := os.Getenv("COACH_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("COACH_TEMPERATURE: %w", err)
		}
		c.LLM.Temperature = f
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate checks settings every command depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is empty"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be positive, got %s", c.LLM.Timeout))
	}
	if c.Coach.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("coach.idle_timeout must not be negative, got %s", c.Coach.IdleTimeout))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature))
	}
	switch c.Trace.Exporter {
	case trace.ExporterNone, trace.ExporterStdout, trace.ExporterOTLP:
	default:
		errs = append(errs, fmt.Errorf("trace.exporter %q is not one of none, stdout, otlp", c.Trace.Exporter))
	}
	if c.Trace.SamplingRate < 0 || c.Trace.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace.sampling_rate must be within [0, 1], got %v", c.Trace.SamplingRate))
	}
	return errors.Join(errs...)
}

// RequireLLM checks the settings needed to reach the model.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// RequireServer checks the settings needed to accept Twilio streams.
func (c *Config) RequireServer() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is empty")
	}
	if c.Server.StreamURL != "" && !strings.HasPrefix(c.Server.StreamURL, "wss://") && !strings.HasPrefix(c.Server.StreamURL, "ws://") {
		return fmt.Errorf("server.stream_url must be a ws:// or wss:// URL, got %q", c.Server.StreamURL)
	}
	return nil
}

// SystemPrompt returns the configured system prompt, reading
// SystemPromptFile if needed. An empty result means the built-in prompt.
func (c *Config) SystemPrompt() (string, error) {
	if c.Coach.SystemPrompt != "" || c.Coach.SystemPromptFile == "" {
		return c.Coach.SystemPrompt, nil
	}
	data, err := os.ReadFile(c.Coach.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// TracingConfig maps the trace section onto the tracer's config.
func (c *Config) TracingConfig() *trace.Config {
	tc := trace.DefaultConfig()
	tc.ExporterType = c.Trace.Exporter
	tc.OTLPEndpoint = c.Trace.OTLPEndpoint
	tc.SamplingRate = c.Trace.SamplingRate
	tc.Environment = c.Trace.Environment
	return tc
}
