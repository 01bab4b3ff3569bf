package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/nodeedge/nodeedge/cli/tui"
)

// ReplCommand returns the repl command: start an engine once and
// evaluate one expression per line of stdin until EOF.
func ReplCommand() *cli.Command {
	return &cli.Command{
		Name:      "repl",
		Usage:     "Start an engine and evaluate expressions read from stdin, one per line",
		UsageText: `nodeedge repl [options]`,
		Flags:     append(EngineFlags(), ManifestFlag),
		Action:    replAction,
	}
}

func replAction(c *cli.Context) error {
	econf, err := buildEngineConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	e, stop, err := acquireEngine(ctx, econf)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to start engine: %v", err), exitConfigError)
	}
	defer stop()

	if c.Bool("tui") {
		go tui.Run("engine_state", e)
	}

	enc := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		result, err := e.Eval(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "error encoding result: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	return nil
}
