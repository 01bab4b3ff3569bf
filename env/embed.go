package env

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nodeedge/nodeedge/types"
)

//go:embed bundle/runtime.js
var embeddedRuntime []byte

var (
	extractOnce   sync.Once
	extractedPath string
	extractErr    error
)

// EmbeddedChecksum returns the SHA256 checksum of the embedded runtime
// script, used to key the extraction directory so multiple module
// versions can coexist on the same machine.
func EmbeddedChecksum() string {
	sum := sha256.Sum256(embeddedRuntime)
	return hex.EncodeToString(sum[:])
}

// ExtractedPath extracts the embedded runtime script to a temp directory
// on first call and returns the cached path on subsequent calls.
func ExtractedPath() (string, error) {
	extractOnce.Do(func() {
		extractedPath, extractErr = extractRuntime()
	})
	return extractedPath, extractErr
}

func extractRuntime() (string, error) {
	if len(embeddedRuntime) == 0 {
		return "", fmt.Errorf("no embedded runtime script available")
	}

	checksum := EmbeddedChecksum()[:16]
	dirName := fmt.Sprintf("nodeedge-runtime-%s-%s", types.Version, checksum)
	dir := filepath.Join(os.TempDir(), dirName)
	path := filepath.Join(dir, "runtime.js")

	if info, err := os.Stat(path); err == nil && info.Size() == int64(len(embeddedRuntime)) {
		return path, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create runtime extraction dir: %w", err)
	}
	if err := os.WriteFile(path, embeddedRuntime, 0o755); err != nil {
		return "", fmt.Errorf("write runtime script: %w", err)
	}
	return path, nil
}
