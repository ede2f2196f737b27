package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/kukula/lattice/internal/cases"
	"github.com/kukula/lattice/internal/diag"
	"github.com/kukula/lattice/internal/engine"
	"github.com/kukula/lattice/internal/output"
	"github.com/kukula/lattice/internal/storage"
)

// expandArgs replaces directory arguments with the model files under them.
func expandArgs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		store, err := storage.NewFS(arg)
		if err != nil {
			return nil, err
		}
		metas, err := store.List("")
		if err != nil {
			return nil, err
		}
		for _, m := range metas {
			files = append(files, filepath.Join(arg, filepath.FromSlash(m.Path)))
		}
	}
	if len(files) == 0 {
		return nil, errors.New("no model files given")
	}
	return files, nil
}

// newEngine builds an engine from the optional config file plus the
// command's --disable flag. Rule faults are logged to stderr.
func newEngine(cmd *cli.Command) (*engine.Engine, error) {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return nil, err
	}
	disabled := cfg.Rules.DisabledCodes()
	for _, code := range cmd.StringSlice("disable") {
		if !slices.Contains(diag.KnownCodes(), diag.Code(code)) {
			return nil, fmt.Errorf("unknown diagnostic code %q", code)
		}
		disabled = append(disabled, diag.Code(code))
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	return engine.New(
		engine.WithParallel(cfg.Rules.Parallel),
		engine.WithDisabled(disabled...),
		engine.WithLogger(logger),
	), nil
}

// load validates the files named by the command arguments. Any failure to
// load or build the model is an exitLoad error.
func load(cmd *cli.Command) (*engine.Result, error) {
	files, err := expandArgs(cmd.Args().Slice())
	if err != nil {
		return nil, &exitError{code: exitLoad, err: err}
	}
	eng, err := newEngine(cmd)
	if err != nil {
		return nil, &exitError{code: exitLoad, err: err}
	}
	res, err := eng.ValidateFiles(files...)
	if err != nil {
		return nil, &exitError{code: exitLoad, err: err}
	}
	return res, nil
}

func validate(_ context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	if !slices.Contains(output.Formats(), format) {
		return &exitError{code: exitLoad, err: fmt.Errorf("unknown format %q", format)}
	}
	res, err := load(cmd)
	if err != nil {
		return err
	}
	if err := output.Write(cmd.Root().Writer, res, format); err != nil {
		return err
	}
	if !res.Report.OK() || (cmd.Bool("strict") && res.Report.Summary.Warnings > 0) {
		return &exitError{code: exitInvalid}
	}
	return nil
}

func deriveCases(_ context.Context, cmd *cli.Command) error {
	res, err := load(cmd)
	if err != nil {
		return err
	}
	return output.WriteCases(cmd.Root().Writer, cases.Derive(res.Model, res.Analysis))
}
