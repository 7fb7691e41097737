// Package config resolves the runtime configuration from defaults, a YAML
// config file, command-line flags, and environment variables, in that order of
// increasing precedence. The resolved Config is validated once at startup and
// never mutated afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SPOTTER"

const (
	defaultModelID   = "knowledgator/gliner-x-base"
	defaultThreshold = 0.5
	defaultHost      = "0.0.0.0"
	defaultPort      = 8080
	defaultMetrics   = 9090
)

var defaultEntities = []string{"person", "organization", "location", "date"}

// Config is the resolved, immutable runtime configuration.
type Config struct {
	UseCase          string
	ModelID          string
	ONNXEnabled      bool
	ONNXModelPath    string
	DefaultEntities  []string
	DefaultThreshold float64
	APIKey           string
	Host             string
	Port             int
	MetricsEnabled   bool
	MetricsPort      int
	FrontendEnabled  bool
	ModelsDir        string
	LogLevel         string
}

// Error reports an invalid or inconsistent configuration value. It names the
// offending field so startup diagnostics point at the right knob.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Addr returns the host:port the API server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsAddr returns the host:port the metrics server binds to.
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Flags returns the flag set recognized by the daemon. Callers parse it
// themselves so usage output stays in their hands.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("spotter", pflag.ContinueOnError)
	fs.String("config", "", "path to YAML config file")
	fs.String("use-case", "general", "deployment label, no functional effect")
	fs.String("model-id", defaultModelID, "model identifier used to fetch artifacts")
	fs.Bool("onnx-enabled", false, "use the compiled ONNX graph backend")
	fs.String("onnx-model-path", "model.onnx", "path to the compiled graph, used with --onnx-enabled")
	fs.StringSlice("default-entities", defaultEntities, "entity labels used when a request supplies none")
	fs.Float64("default-threshold", defaultThreshold, "confidence threshold used when a request supplies none")
	fs.String("api-key", "", "API key; when set, requests must present it")
	fs.String("host", defaultHost, "listen address")
	fs.Int("port", defaultPort, "API port")
	fs.Bool("metrics-enabled", true, "expose Prometheus metrics")
	fs.Int("metrics-port", defaultMetrics, "metrics port")
	fs.Bool("frontend-enabled", true, "serve the browser frontend at /")
	fs.String("models-dir", "", "root directory for downloaded model artifacts (default ~/.spotter/models)")
	fs.String("log-level", "info", "zerolog level: trace, debug, info, warn, error")
	return fs
}

// Resolve merges all configuration sources into one Config and validates it.
// Precedence, lowest to highest: built-in defaults, config file, flags,
// environment variables.
func Resolve(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path := configFilePath(fs); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Field: "config", Reason: err.Error()}
		}
	}

	// Flags sit between the file and the environment. Viper ranks a bound
	// flag above AutomaticEnv, so changed flags are applied explicitly and
	// only when the matching environment variable is absent.
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if _, ok := os.LookupEnv(envKey(f.Name)); ok {
			return
		}
		if f.Value.Type() == "stringSlice" {
			v.Set(f.Name, splitList(f.Value.String()))
			return
		}
		v.Set(f.Name, f.Value.String())
	})

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// "name" is an accepted alias for "use-case"; it only applies while
	// use-case still holds its default.
	useCase := v.GetString("use-case")
	if useCase == "general" {
		if alias := v.GetString("name"); alias != "" {
			useCase = alias
		}
	}

	cfg := &Config{
		UseCase:          useCase,
		ModelID:          v.GetString("model-id"),
		ONNXEnabled:      v.GetBool("onnx-enabled"),
		ONNXModelPath:    v.GetString("onnx-model-path"),
		DefaultEntities:  entityList(v.Get("default-entities")),
		DefaultThreshold: v.GetFloat64("default-threshold"),
		APIKey:           v.GetString("api-key"),
		Host:             v.GetString("host"),
		Port:             v.GetInt("port"),
		MetricsEnabled:   v.GetBool("metrics-enabled"),
		MetricsPort:      v.GetInt("metrics-port"),
		FrontendEnabled:  v.GetBool("frontend-enabled"),
		ModelsDir:        v.GetString("models-dir"),
		LogLevel:         v.GetString("log-level"),
	}

	if cfg.ModelsDir == "" {
		cfg.ModelsDir = defaultModelsDir()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ModelID == "" {
		return &Error{Field: "model-id", Reason: "must not be empty"}
	}
	if len(c.DefaultEntities) == 0 {
		return &Error{Field: "default-entities", Reason: "must contain at least one label"}
	}
	if c.DefaultThreshold <= 0 || c.DefaultThreshold > 1 {
		return &Error{Field: "default-threshold", Reason: fmt.Sprintf("%g is outside (0,1]", c.DefaultThreshold)}
	}
	if c.ONNXEnabled {
		if c.ONNXModelPath == "" {
			return &Error{Field: "onnx-model-path", Reason: "required when onnx-enabled is true"}
		}
		if fi, err := os.Stat(c.ONNXModelPath); err != nil || fi.IsDir() {
			return &Error{Field: "onnx-model-path", Reason: fmt.Sprintf("%s is not a readable file", c.ONNXModelPath)}
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &Error{Field: "port", Reason: fmt.Sprintf("%d is outside 1..65535", c.Port)}
	}
	if c.MetricsEnabled && (c.MetricsPort < 1 || c.MetricsPort > 65535) {
		return &Error{Field: "metrics-port", Reason: fmt.Sprintf("%d is outside 1..65535", c.MetricsPort)}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("use-case", "general")
	v.SetDefault("model-id", defaultModelID)
	v.SetDefault("onnx-enabled", false)
	v.SetDefault("onnx-model-path", "model.onnx")
	v.SetDefault("default-entities", defaultEntities)
	v.SetDefault("default-threshold", defaultThreshold)
	v.SetDefault("api-key", "")
	v.SetDefault("host", defaultHost)
	v.SetDefault("port", defaultPort)
	v.SetDefault("metrics-enabled", true)
	v.SetDefault("metrics-port", defaultMetrics)
	v.SetDefault("frontend-enabled", true)
	v.SetDefault("models-dir", "")
	v.SetDefault("log-level", "info")
}

// configFilePath picks the config file: --config flag, SPOTTER_CONFIG, or a
// config.yaml in the working directory if one exists.
func configFilePath(fs *pflag.FlagSet) string {
	if f := fs.Lookup("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	if path := os.Getenv(envKey("config")); path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func envKey(option string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(option, "-", "_"))
}

// entityList accepts both YAML list form and comma-separated string form.
func entityList(raw any) []string {
	switch val := raw.(type) {
	case string:
		return splitList(val)
	case []string:
		return trimAll(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func splitList(s string) []string {
	s = strings.Trim(s, "[]")
	return trimAll(strings.Split(s, ","))
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func defaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".spotter", "models")
	}
	return filepath.Join(home, ".spotter", "models")
}
