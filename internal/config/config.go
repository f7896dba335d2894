// Package config loads runtime settings from defaults, an optional YAML file,
// CONSO2B_* environment variables (a .env file is read first) and command
// line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nconklindev/conso2b/internal/consolidate"
	"github.com/nconklindev/conso2b/internal/detect"
	"github.com/nconklindev/conso2b/internal/loader"
	"github.com/nconklindev/conso2b/internal/types"
)

const (
	EnvPrefix = "CONSO2B"
	FileName  = "conso2b"
)

const (
	KeyMarkerText    = "detect.marker_text"
	KeyScanRows      = "detect.scan_rows"
	KeyTwoRowMarkers = "detect.two_row_markers"
	KeySentinel      = "clean.sentinel"
	KeyNAValues      = "ingest.na_values"
	KeyRawCellValues = "ingest.raw_cell_values"
	KeyWorkers       = "workers"
	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"
	KeyLogFile       = "log.file"
	KeyExportDir     = "export.dir"
)

// flagKeys maps command line flag names onto configuration keys.
var flagKeys = map[string]string{
	"marker":     KeyMarkerText,
	"scan-rows":  KeyScanRows,
	"sentinel":   KeySentinel,
	"raw-values": KeyRawCellValues,
	"workers":    KeyWorkers,
	"log-level":  KeyLogLevel,
	"log-format": KeyLogFormat,
	"log-file":   KeyLogFile,
	"out":        KeyExportDir,
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

type Config struct {
	Detect        detect.Options
	NAValues      []string
	RawCellValues bool
	Workers       int
	Log           LogConfig
	ExportDir     string
}

// Options controls where Load looks for its sources.
type Options struct {
	// ConfigFile is an explicit YAML path. When empty conso2b.yaml is
	// searched in the working directory and $HOME/.config/conso2b.
	ConfigFile string
	// EnvFile is read into the environment before variables are bound.
	// A missing file is not an error.
	EnvFile string
	// Flags are bound over every other source.
	Flags *pflag.FlagSet
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyMarkerText, detect.DefaultMarkerText)
	v.SetDefault(KeyScanRows, detect.DefaultScanRows)
	v.SetDefault(KeyTwoRowMarkers, detect.DefaultTwoRowMarkers)
	v.SetDefault(KeySentinel, types.DefaultSentinel)
	v.SetDefault(KeyNAValues, loader.DefaultNAValues)
	v.SetDefault(KeyRawCellValues, false)
	v.SetDefault(KeyWorkers, consolidate.DefaultWorkers)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyExportDir, ".")
}

// Load resolves the configuration and validates it.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Detect: detect.Options{
			MarkerText:    v.GetString(KeyMarkerText),
			ScanRows:      v.GetInt(KeyScanRows),
			TwoRowMarkers: stringSlice(v, KeyTwoRowMarkers),
			Sentinel:      v.GetString(KeySentinel),
		},
		NAValues:      stringSlice(v, KeyNAValues),
		RawCellValues: v.GetBool(KeyRawCellValues),
		Workers:       v.GetInt(KeyWorkers),
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
			File:   v.GetString(KeyLogFile),
		},
		ExportDir: v.GetString(KeyExportDir),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stringSlice reads a list from YAML or a comma separated string from the
// environment.
func stringSlice(v *viper.Viper, key string) []string {
	if s, ok := v.Get(key).(string); ok {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return v.GetStringSlice(key)
}

// Validate reports the first setting that would make a run misbehave.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Detect.MarkerText) == "":
		return fmt.Errorf("%s must not be empty", KeyMarkerText)
	case c.Detect.ScanRows < 1:
		return fmt.Errorf("%s must be at least 1, got %d", KeyScanRows, c.Detect.ScanRows)
	case len(c.Detect.TwoRowMarkers) == 0:
		return fmt.Errorf("%s must list at least one marker", KeyTwoRowMarkers)
	case c.Detect.Sentinel == "":
		return fmt.Errorf("%s must not be empty", KeySentinel)
	case c.Workers < 1:
		return fmt.Errorf("%s must be at least 1, got %d", KeyWorkers, c.Workers)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%s: unknown level %q", KeyLogLevel, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%s: unknown format %q", KeyLogFormat, c.Log.Format)
	}

	return nil
}

// LoaderOptions returns the ingestion settings.
func (c *Config) LoaderOptions() loader.Options {
	return loader.Options{
		Detect:        c.Detect,
		NAValues:      c.NAValues,
		RawCellValues: c.RawCellValues,
	}
}

// EngineOptions returns the consolidation settings without a logger.
func (c *Config) EngineOptions() consolidate.Options {
	return consolidate.Options{
		Workers:  c.Workers,
		Sentinel: c.Detect.Sentinel,
	}
}
