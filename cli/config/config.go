package config

import (
	"fmt"
	"time"
)

// Config represents a nodeedge.yaml configuration file. All values are
// optional and act as defaults for nodeedge CLI flags; CLI flags always
// override config values.
type Config struct {
	InstallerBin     string   `yaml:"installer_bin"`
	KeepLock         bool     `yaml:"keep_lock"`
	Debug            bool     `yaml:"debug"`
	EnvDirCandidates []string `yaml:"env_dir_candidates"`
	ConnectTimeout   Duration `yaml:"connect_timeout"`
	QueueCapacity    int      `yaml:"queue_capacity"`

	EnvCache EnvCacheConfig `yaml:"env_cache"`
	Trace    TraceConfig    `yaml:"trace"`
}

// EnvCacheConfig holds the optional S3-backed env cache settings.
type EnvCacheConfig struct {
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// TraceConfig holds the optional protocol trace sink settings.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Root    string `yaml:"root"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
