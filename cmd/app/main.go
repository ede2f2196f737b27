package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/kukula/lattice/internal"
	pkgconfig "github.com/kukula/lattice/pkg/config"
)

var version = "dev"

// Exit codes of the validate and cases commands.
const (
	exitInvalid = 1
	exitLoad    = 2
)

// exitError carries a process exit code out of a command action. It does
// not implement cli.ExitCoder so the cli package leaves exiting to main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func loadConfig(cmd *cli.Command, optional bool) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	loadFn := pkgconfig.Load[internal.Config]
	if optional {
		loadFn = pkgconfig.LoadIfExists[internal.Config]
	}
	if err := loadFn(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func newCommand(stdout io.Writer) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	return &cli.Command{
		Name:    "lattice",
		Usage:   "Build and structurally validate entity models described in YAML",
		Version: version,
		Writer:  stdout,
		Flags:   []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate model files and print a report",
				ArgsUsage: "FILE|DIR...",
				Action:    validate,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Report format (text or json)",
						Value:   "text",
					},
					&cli.BoolFlag{
						Name:  "strict",
						Usage: "Treat warnings as failures",
					},
					&cli.StringSliceFlag{
						Name:  "disable",
						Usage: "Diagnostic codes whose rules are skipped",
					},
				},
			},
			{
				Name:      "cases",
				Usage:     "Derive test-case specifications as JSON",
				ArgsUsage: "FILE|DIR...",
				Action:    deriveCases,
			},
			{
				Name:   "serve",
				Usage:  "Run the workspace HTTP server",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdio",
				Action: serveMCP,
			},
		},
	}
}

func main() {
	if err := newCommand(os.Stdout).Run(context.Background(), os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.err != nil {
				slog.Error("lattice", slog.String("error", exitErr.err.Error()))
			}
			os.Exit(exitErr.code)
		}
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
