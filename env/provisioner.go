// Package env implements the Env Provisioner: it materializes a package.json
// and the embedded runtime script into a signature-addressed directory and
// runs the package installer there.
package env

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/nodeedge/nodeedge/bridgeerr"
	"github.com/nodeedge/nodeedge/log"
	"github.com/nodeedge/nodeedge/types"
)

// runtimeScriptName is the filename the env directory's package.json
// points its fixed script entry at.
const runtimeScriptName = "index.js"

// runtimeEntrypoint is the fixed npm script name every env's package.json
// declares. Fixing the name lets the Child Supervisor invoke
// "<installer> run node_edge_runtime" without knowing the interpreter path
// the package manager resolved.
const runtimeEntrypoint = "node_edge_runtime"

// stderrTailSize bounds how much of the installer's stderr is retained in
// an EnvSetupError.
const stderrTailSize = 1024

// Options configures the provisioner.
type Options struct {
	// InstallerBin is the package manager binary, e.g. "npm".
	InstallerBin string
	// KeepLock preserves any existing lockfile in the env directory rather
	// than removing it before install.
	KeepLock bool
	// Candidates is the ordered list of base directories to try for the
	// env directory. Defaults to [os.UserCacheDir(), os.TempDir()].
	Candidates []string
	// Cache is an optional remote cache consulted before running the
	// installer, and populated after a successful install.
	Cache Cache
	Logger *log.Logger
}

// Cache is implemented by an optional remote store (e.g. S3) that can
// short-circuit a fresh install by fetching a previously-built env.
type Cache interface {
	Fetch(ctx context.Context, signature, destDir string) (bool, error)
	Store(ctx context.Context, signature, srcDir string) error
}

// Provisioner implements spec.md §4.1.
type Provisioner struct {
	opts Options
}

// New creates a Provisioner. Candidates defaults to the user cache
// directory followed by the OS temp directory when unset.
func New(opts Options) *Provisioner {
	if len(opts.Candidates) == 0 {
		opts.Candidates = defaultCandidates()
	}
	if opts.InstallerBin == "" {
		opts.InstallerBin = "npm"
	}
	return &Provisioner{opts: opts}
}

func defaultCandidates() []string {
	var out []string
	if dir, err := os.UserCacheDir(); err == nil {
		out = append(out, dir)
	}
	out = append(out, os.TempDir())
	return out
}

// EnsureEnvDir returns the env directory for manifest's signature,
// iterating the configured candidate roots and returning the first one
// that can be created. force, when true, recreates package.json and the
// runtime script even if the directory already exists.
func (p *Provisioner) EnsureEnvDir(ctx context.Context, manifest types.Manifest, force bool) (string, error) {
	signature, err := manifest.Signature()
	if err != nil {
		return "", bridgeerr.EnvSetupError("ensure_env_dir", fmt.Sprintf("signing manifest: %v", err))
	}

	var lastErr error
	for _, base := range p.opts.Candidates {
		dir := filepath.Join(base, "node_edge", "envs", signature)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			lastErr = err
			continue
		}

		if !force {
			if _, statErr := os.Stat(filepath.Join(dir, "package.json")); statErr == nil {
				return dir, nil
			}
		}

		if err := p.createEnv(ctx, dir, manifest, signature); err != nil {
			return "", err
		}
		return dir, nil
	}

	return "", bridgeerr.EnvSetupError("ensure_env_dir",
		fmt.Sprintf("no candidate directory was creatable: %v", lastErr))
}

// packageJSON is the subset of package.json fields the provisioner
// controls. The user's manifest is merged underneath these.
type packageJSON struct {
	Type    string            `json:"type"`
	Scripts map[string]string `json:"scripts"`
}

func (p *Provisioner) createEnv(ctx context.Context, dir string, manifest types.Manifest, signature string) error {
	fetched := false
	if p.opts.Cache != nil {
		var err error
		fetched, err = p.opts.Cache.Fetch(ctx, signature, dir)
		if err != nil && p.opts.Logger != nil {
			p.opts.Logger.Warn("env cache fetch failed", map[string]any{"signature": signature, "error": err.Error()})
		}
		if fetched {
			if p.opts.Logger != nil {
				p.opts.Logger.Info("env restored from cache", map[string]any{"signature": signature})
			}
		}
	}

	merged := make(map[string]any, len(manifest)+2)
	for k, v := range manifest {
		merged[k] = v
	}
	merged["type"] = "module"
	merged["scripts"] = map[string]string{runtimeEntrypoint: "node ./" + runtimeScriptName}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return bridgeerr.EnvSetupError("create_env", fmt.Sprintf("marshal package.json: %v", err))
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), data, 0o644); err != nil {
		return bridgeerr.EnvSetupError("create_env", fmt.Sprintf("write package.json: %v", err))
	}

	runtimePath, err := ExtractedPath()
	if err != nil {
		return bridgeerr.EnvSetupError("create_env", fmt.Sprintf("extract runtime script: %v", err))
	}
	scriptData, err := os.ReadFile(runtimePath)
	if err != nil {
		return bridgeerr.EnvSetupError("create_env", fmt.Sprintf("read runtime script: %v", err))
	}
	if err := os.WriteFile(filepath.Join(dir, runtimeScriptName), scriptData, 0o755); err != nil {
		return bridgeerr.EnvSetupError("create_env", fmt.Sprintf("write runtime script: %v", err))
	}

	// A restored cache entry already holds the installed packages.
	if fetched {
		return nil
	}

	if !p.opts.KeepLock {
		_ = os.Remove(filepath.Join(dir, "package-lock.json"))
	}

	if err := p.runInstaller(ctx, dir); err != nil {
		return err
	}

	if p.opts.Cache != nil {
		if err := p.opts.Cache.Store(ctx, signature, dir); err != nil && p.opts.Logger != nil {
			p.opts.Logger.Warn("env cache store failed", map[string]any{"signature": signature, "error": err.Error()})
		}
	}

	return nil
}

func (p *Provisioner) runInstaller(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, p.opts.InstallerBin, "install")
	cmd.Dir = dir
	cmd.Stdin = nil

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	if err := cmd.Run(); err != nil {
		tail := stderr.Bytes()
		if len(tail) > stderrTailSize {
			tail = tail[len(tail)-stderrTailSize:]
		}
		return bridgeerr.EnvSetupError("install", bridgeerr.ClassifyInstallFailure(string(tail)))
	}
	return nil
}
