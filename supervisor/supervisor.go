// Package supervisor implements the Child Supervisor: it spawns the child
// interpreter in a prepared env directory, waits for it to exit, and can
// kill it.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/nodeedge/nodeedge/log"
)

// Config describes how to spawn the child.
type Config struct {
	// InstallerBin is the package manager binary, e.g. "npm".
	InstallerBin string
	// Dir is the env directory to run the child in.
	Dir string
	// Port is the loopback port the child should connect back to.
	Port int
	// Debug, when true, inherits the child's stdio instead of discarding it.
	Debug bool
	Logger *log.Logger
}

// Supervisor manages the child interpreter process lifecycle.
type Supervisor struct {
	cfg Config
	cmd *exec.Cmd
}

// New creates a Supervisor. Call Start to spawn the child.
func New(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// Start spawns "<installer> run node_edge_runtime -- <port>" in the env
// directory. It does not block on the child's lifetime; call Wait for that.
func (s *Supervisor) Start(ctx context.Context) error {
	s.cmd = exec.CommandContext(ctx, s.cfg.InstallerBin, "run", "node_edge_runtime", "--", fmt.Sprint(s.cfg.Port))
	s.cmd.Dir = s.cfg.Dir

	if s.cfg.Debug {
		s.cmd.Stdin = os.Stdin
		s.cmd.Stdout = os.Stdout
		s.cmd.Stderr = os.Stderr
	} else {
		s.cmd.Stdin = nil
		s.cmd.Stdout = nil
		s.cmd.Stderr = nil
	}

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("spawn child: %w", err)
	}

	if s.cfg.Logger != nil {
		s.cfg.Logger.Info("child spawned", map[string]any{
			"installer": s.cfg.InstallerBin,
			"dir":       s.cfg.Dir,
			"port":      s.cfg.Port,
			"pid":       s.cmd.Process.Pid,
		})
	}
	return nil
}

// Wait blocks until the child exits and returns its exit code (0 on clean
// exit, the process's status code otherwise, -1 if it could not be
// determined).
func (s *Supervisor) Wait() (int, error) {
	if s.cmd == nil {
		return 0, errors.New("supervisor: child not started")
	}
	err := s.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus(), nil
		}
		return -1, nil
	}
	return -1, fmt.Errorf("wait child: %w", err)
}

// Kill forcibly terminates the child, if still running.
func (s *Supervisor) Kill() error {
	if s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Kill()
	}
	return nil
}
