package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFullConfig(t *testing.T) {
	yaml := `installer_bin: pnpm
keep_lock: true
debug: true
env_dir_candidates:
  - /var/cache/nodeedge
  - /tmp/nodeedge
connect_timeout: 10s
queue_capacity: 500

env_cache:
  bucket: my-bucket
  prefix: envs
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true

trace:
  enabled: true
  root: /var/log/nodeedge/trace
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "installer_bin", cfg.InstallerBin, "pnpm")
	if !cfg.KeepLock {
		t.Error("expected keep_lock=true")
	}
	if !cfg.Debug {
		t.Error("expected debug=true")
	}
	if len(cfg.EnvDirCandidates) != 2 || cfg.EnvDirCandidates[0] != "/var/cache/nodeedge" {
		t.Errorf("env_dir_candidates = %v", cfg.EnvDirCandidates)
	}
	if cfg.ConnectTimeout.Duration != 10*time.Second {
		t.Errorf("connect_timeout = %v, want 10s", cfg.ConnectTimeout.Duration)
	}
	if cfg.QueueCapacity != 500 {
		t.Errorf("queue_capacity = %d, want 500", cfg.QueueCapacity)
	}

	assertEqual(t, "env_cache.bucket", cfg.EnvCache.Bucket, "my-bucket")
	assertEqual(t, "env_cache.prefix", cfg.EnvCache.Prefix, "envs")
	assertEqual(t, "env_cache.region", cfg.EnvCache.Region, "us-east-1")
	assertEqual(t, "env_cache.endpoint", cfg.EnvCache.Endpoint, "https://example.com")
	if !cfg.EnvCache.S3PathStyle {
		t.Error("expected env_cache.s3_path_style=true")
	}

	if !cfg.Trace.Enabled {
		t.Error("expected trace.enabled=true")
	}
	assertEqual(t, "trace.root", cfg.Trace.Root, "/var/log/nodeedge/trace")
}

func TestLoadEmptyConfig(t *testing.T) {
	path := writeTemp(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.InstallerBin != "" {
		t.Errorf("expected empty installer_bin, got %q", cfg.InstallerBin)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/nodeedge.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("TEST_INSTALLER", "pnpm")

	yaml := `installer_bin: ${TEST_INSTALLER}`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "installer_bin", cfg.InstallerBin, "pnpm")
}

func TestLoadUnknownKeyRejected(t *testing.T) {
	yaml := `installer_bin: npm
bogus_key: should_fail
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoadUnknownNestedKeyRejected(t *testing.T) {
	yaml := `env_cache:
  bucket: b
  unknown_field: bad
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestDurationUnmarshalYAML(t *testing.T) {
	path := writeTemp(t, "connect_timeout: 30s")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ConnectTimeout.Duration != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.ConnectTimeout.Duration)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nodeedge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
