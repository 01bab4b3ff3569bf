package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	nodeedgeconfig "github.com/nodeedge/nodeedge/cli/config"
	"github.com/nodeedge/nodeedge/engine"
	"github.com/nodeedge/nodeedge/env"
	"github.com/nodeedge/nodeedge/types"
)

// exitConfigError is used for CLI/input validation and provisioning
// failures that occur before an engine has started evaluating anything.
const exitConfigError = 1

// ManifestFlag points at an optional package.json-shaped dependency
// manifest. When absent, the env directory is provisioned with no
// dependencies beyond the embedded runtime script.
var ManifestFlag = &cli.StringFlag{
	Name:  "manifest",
	Usage: "Path to a JSON file describing child dependencies (package.json \"dependencies\" shape)",
}

// loadManifest reads and decodes the --manifest file, or returns an empty
// manifest when the flag is unset.
func loadManifest(path string) (types.Manifest, error) {
	if path == "" {
		return types.Manifest{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %q: %w", path, err)
	}
	var m types.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest %q: %w", path, err)
	}
	return m, nil
}

// buildEngineConfig resolves an engine.Config from CLI flags, with a
// config-file providing defaults and CLI flags overriding them.
func buildEngineConfig(c *cli.Context) (*engine.Config, error) {
	var cfg *nodeedgeconfig.Config
	if path := c.String("config"); path != "" {
		loaded, err := nodeedgeconfig.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	manifest, err := loadManifest(c.String("manifest"))
	if err != nil {
		return nil, err
	}

	installer := c.String("installer")
	if installer == "" && cfg != nil {
		installer = cfg.InstallerBin
	}

	debug := c.Bool("debug")
	if !debug && cfg != nil {
		debug = cfg.Debug
	}

	econf := &engine.Config{
		Manifest:     manifest,
		InstallerBin: installer,
		Debug:        debug,
	}

	if cfg != nil {
		econf.KeepLock = cfg.KeepLock
		econf.EnvDirCandidates = cfg.EnvDirCandidates
		econf.ConnectTimeout = cfg.ConnectTimeout.Duration
		econf.QueueCapacity = cfg.QueueCapacity
		econf.Trace = engine.TraceConfig{Enabled: cfg.Trace.Enabled, Root: cfg.Trace.Root}

		if cfg.EnvCache.Bucket != "" {
			cache, err := env.NewS3Cache(context.Background(), env.S3CacheConfig{
				Bucket:       cfg.EnvCache.Bucket,
				Prefix:       cfg.EnvCache.Prefix,
				Region:       cfg.EnvCache.Region,
				Endpoint:     cfg.EnvCache.Endpoint,
				UsePathStyle: cfg.EnvCache.S3PathStyle,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to configure env cache: %w", err)
			}
			econf.Cache = cache
		}
	}

	return econf, nil
}

// acquireEngine starts an engine from cfg and returns a stop function.
func acquireEngine(ctx context.Context, cfg *engine.Config) (*engine.Engine, func(), error) {
	return engine.Acquire(ctx, *cfg)
}
