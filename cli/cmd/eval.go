package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/nodeedge/nodeedge/cli/tui"
)

// EvalCommand returns the eval command: provision an env, start an
// engine, evaluate one expression, print the JSON result, and stop.
func EvalCommand() *cli.Command {
	return &cli.Command{
		Name:      "eval",
		Usage:     "Evaluate a single JavaScript expression in a fresh engine",
		UsageText: `nodeedge eval [options] <expression>`,
		Flags:     append(EngineFlags(), ManifestFlag),
		Action:    evalAction,
	}
}

func evalAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one expression argument", exitConfigError)
	}
	code := c.Args().Get(0)

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

	result, err := e.Eval(ctx, code)
	if err != nil {
		return fmt.Errorf("eval failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
