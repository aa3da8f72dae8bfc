package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lsm/agentauth/internal/cli"
	"github.com/lsm/agentauth/internal/observability"
	"github.com/lsm/agentauth/internal/tracing"
)

const usage = `agentauth - agent credential management

Usage:
  agentauth <command> [arguments]

Commands:
  configure   Provision and store a credential for the server
  check       Verify the stored credential and show its metadata
  remove      Delete the stored credential
  schemes     List supported authentication schemes

Run 'agentauth <command> -h' for help on a specific command.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		return nil
	}

	logger := observability.NewLogger("agentauth", observability.GetLogLevel(""))
	_, shutdown, err := tracing.Initialize(context.Background(), tracing.GetConfig("agentauth"), logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	switch os.Args[1] {
	case "configure":
		return cli.RunConfigure(os.Args[2:], os.Stdin, os.Stdout)
	case "check":
		return cli.RunCheck(os.Args[2:], os.Stdout)
	case "remove":
		return cli.RunRemove(os.Args[2:], os.Stdout)
	case "schemes":
		return cli.RunSchemes(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\nRun 'agentauth help' for usage", os.Args[1])
	}
}
