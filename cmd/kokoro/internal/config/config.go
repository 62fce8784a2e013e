// Package config loads the kokoro CLI configuration.
//
// The file is YAML and lives at ~/.kokoro/config.yaml unless --config names
// another one. ${VAR} references are expanded from the environment before
// parsing, and the result is checked against an embedded JSON Schema.
//
// Example:
//
//	model_path: ${KOKORO_MODEL}
//	voices_path: data/voices.msgpack
//	device:
//	  use_accelerator: true
//	  accelerator_memory_limit: 2GiB
//	  fallback_to_default: true
//	inference:
//	  timeout: 30s
//	server:
//	  addr: 0.0.0.0:3000
//	  output_dir: tmp
//	log:
//	  level: debug
//	  file: ~/.kokoro/logs/kokoro.log
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haivivi/kokoro/pkg/cli"
	"github.com/haivivi/kokoro/pkg/kokoro"
)

//go:embed schema.json
var schemaJSON string

// Defaults.
const (
	DefaultModelPath  = "checkpoints/kokoro-v0_19.onnx"
	DefaultVoicesPath = "data/voices.json"
	DefaultAddr       = "0.0.0.0:3000"
	DefaultOutputDir  = "tmp"
	DefaultCacheTTL   = 30 * 24 * time.Hour

	// DefaultGPUMemoryLimit applies with --gpu when no limit is configured.
	DefaultGPUMemoryLimit Size = 4 << 30
)

// Config is the kokoro CLI configuration.
type Config struct {
	ModelPath   string            `yaml:"model_path"`
	VoicesPath  string            `yaml:"voices_path"`
	ONNXRuntime ONNXRuntimeConfig `yaml:"onnxruntime"`
	Device      DeviceConfig      `yaml:"device"`
	Espeak      EspeakConfig      `yaml:"espeak"`
	Inference   InferenceConfig   `yaml:"inference"`
	Server      ServerConfig      `yaml:"server"`
	Cache       CacheConfig       `yaml:"cache"`
	Artifacts   ArtifactsConfig   `yaml:"artifacts"`
	Log         LogConfig         `yaml:"log"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ONNXRuntimeConfig locates and tunes the ONNX Runtime library.
type ONNXRuntimeConfig struct {
	LibraryPath    string `yaml:"library_path"`
	IntraOpThreads int    `yaml:"intra_op_threads"`
}

// DeviceConfig mirrors kokoro.DeviceConfig with a human-readable memory
// limit. FallbackToDefault is on unless set to false.
type DeviceConfig struct {
	UseAccelerator         bool  `yaml:"use_accelerator"`
	AcceleratorMemoryLimit Size  `yaml:"accelerator_memory_limit"`
	FallbackToDefault      *bool `yaml:"fallback_to_default"`
}

// Kokoro converts c for kokoro.Load.
func (c DeviceConfig) Kokoro() kokoro.DeviceConfig {
	fallback := true
	if c.FallbackToDefault != nil {
		fallback = *c.FallbackToDefault
	}
	return kokoro.DeviceConfig{
		UseAccelerator:         c.UseAccelerator,
		AcceleratorMemoryLimit: uint64(c.AcceleratorMemoryLimit),
		FallbackToDefault:      fallback,
	}
}

// EspeakConfig configures the phonemizer.
type EspeakConfig struct {
	Binary     string   `yaml:"binary"`
	WithStress bool     `yaml:"with_stress"`
	Timeout    Duration `yaml:"timeout"`
}

// InferenceConfig bounds model runs. A zero Timeout means none.
type InferenceConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	OutputDir    string `yaml:"output_dir"`
	DefaultVoice string `yaml:"default_voice"`
	MaxBodyBytes Size   `yaml:"max_body_bytes"`
}

// CacheConfig configures the phoneme cache.
type CacheConfig struct {
	Disabled bool     `yaml:"disabled"`
	Dir      string   `yaml:"dir"`
	InMemory bool     `yaml:"in_memory"`
	TTL      Duration `yaml:"ttl"`
}

// ArtifactsConfig configures the artifact ledger.
type ArtifactsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	TraceStdout  bool   `yaml:"trace_stdout"`
	Prometheus   bool   `yaml:"prometheus"`
}

// Duration is a time.Duration written as "30s" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.InterfaceUnmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Size is a byte count written as 1073741824, "1GiB" or "512MB".
type Size uint64

// UnmarshalYAML implements yaml.InterfaceUnmarshaler.
func (s *Size) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case uint64:
		*s = Size(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("negative size %d", v)
		}
		*s = Size(v)
	case int:
		if v < 0 {
			return fmt.Errorf("negative size %d", v)
		}
		*s = Size(v)
	case string:
		n, err := cli.ParseBytes(v)
		if err != nil {
			return err
		}
		*s = Size(n)
	default:
		return fmt.Errorf("invalid size %v", raw)
	}
	return nil
}

var schema = jsonschema.MustCompileString("kokoro-config.schema.json", schemaJSON)

// Default returns the configuration used when no file exists, rooted at
// paths.
func Default(paths *cli.Paths) *Config {
	cfg := &Config{}
	setDefaults(cfg, paths)
	return cfg
}

// Load reads the file at path. A missing file yields Default(paths).
func Load(path string, paths *cli.Paths) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(paths), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data, paths)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse expands, validates and decodes a YAML document.
func Parse(data []byte, paths *cli.Paths) (*Config, error) {
	expanded := []byte(os.Expand(string(data), os.Getenv))

	if err := validate(expanded); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if len(bytes.TrimSpace(expanded)) > 0 {
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	setDefaults(cfg, paths)
	return cfg, nil
}

func validate(data []byte) error {
	doc := []byte("{}")
	if len(bytes.TrimSpace(data)) > 0 {
		j, err := yaml.YAMLToJSON(data)
		if err != nil {
			return fmt.Errorf("invalid yaml: %w", err)
		}
		if s := bytes.TrimSpace(j); len(s) > 0 && !bytes.Equal(s, []byte("null")) {
			doc = s
		}
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("invalid yaml: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(cfg *Config, paths *cli.Paths) {
	if cfg.ModelPath == "" {
		cfg.ModelPath = DefaultModelPath
	}
	if cfg.VoicesPath == "" {
		cfg.VoicesPath = DefaultVoicesPath
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.OutputDir == "" {
		cfg.Server.OutputDir = DefaultOutputDir
	}
	if cfg.Server.DefaultVoice == "" {
		cfg.Server.DefaultVoice = "af_sky"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(DefaultCacheTTL)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if paths != nil {
		if cfg.Cache.Dir == "" {
			cfg.Cache.Dir = paths.CacheDir()
		}
		if cfg.Artifacts.Path == "" {
			cfg.Artifacts.Path = paths.ArtifactsDB()
		}
	}
	cfg.ModelPath = expandHome(cfg.ModelPath)
	cfg.VoicesPath = expandHome(cfg.VoicesPath)
	cfg.Cache.Dir = expandHome(cfg.Cache.Dir)
	cfg.Artifacts.Path = expandHome(cfg.Artifacts.Path)
	cfg.Log.File = expandHome(cfg.Log.File)
	cfg.Server.OutputDir = expandHome(cfg.Server.OutputDir)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
