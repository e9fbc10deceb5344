package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/rushteam/potok/config"
	_ "github.com/rushteam/potok/config/builders"
	"github.com/rushteam/potok/core"
	"github.com/rushteam/potok/pipeline"
	"github.com/rushteam/potok/store"
	"github.com/rushteam/potok/tabular"
)

const usage = `usage:
  potok fit     --config pipeline.yaml --data train.csv --target y [--test test.csv] [--store DIR|redis://...] [--out oof.csv]
  potok predict --config pipeline.yaml --data new.csv --store DIR|redis://... [--out pred.csv]
`

type options struct {
	Config  string
	Data    string
	Test    string
	Index   string
	Targets []string
	Store   string
	Prefix  string
	Out     string
	TestOut string
	Verbose int
}

// Execute 解析子命令与参数并执行。
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(stdout, usage)
		return nil
	}
	cmd, rest := args[0], args[1:]

	opts := &options{}
	fs := flag.NewFlagSet("potok "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.Config, "config", "c", "", "Pipeline config (YAML)")
	fs.StringVarP(&opts.Data, "data", "d", "", "Input CSV")
	fs.StringVar(&opts.Test, "test", "", "Test CSV scored during fit")
	fs.StringVar(&opts.Index, "index", "id", "Index column")
	fs.StringSliceVarP(&opts.Targets, "target", "t", nil, "Target column(s)")
	fs.StringVarP(&opts.Store, "store", "s", "", "Model store: directory, mem, or redis:// URL")
	fs.StringVar(&opts.Prefix, "prefix", "", "Key prefix inside the store (default: pipeline name)")
	fs.StringVarP(&opts.Out, "out", "o", "", "Output CSV (default: stdout)")
	fs.StringVar(&opts.TestOut, "test-out", "", "Test prediction CSV written by fit")
	fs.CountVarP(&opts.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	logger := newLogger(stderr, opts.Verbose)

	if opts.Config == "" || opts.Data == "" {
		return errors.New("--config and --data are required")
	}
	cfg, err := pipeline.LoadConfig(opts.Config)
	if err != nil {
		return err
	}
	p, err := config.Build(cfg)
	if err != nil {
		return err
	}
	p.Logger = logger
	if opts.Prefix == "" {
		opts.Prefix = p.Name
	}

	switch cmd {
	case "fit":
		return runFit(ctx, p, opts, stdout)
	case "predict":
		return runPredict(ctx, p, opts, stdout)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func newLogger(w io.Writer, verbosity int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func openStore(dsn string) (core.Store, error) {
	switch {
	case dsn == "mem":
		return store.NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return store.NewRedisStoreFromURL(dsn)
	default:
		return store.NewFileStore(dsn)
	}
}

func readFrame(path, index string, targets []string) (*tabular.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tabular.ReadCSV(f, index, targets...)
}

func writeFrame(path string, stdout io.Writer, d core.Data, index string) error {
	frame, ok := d.(*tabular.Frame)
	if !ok {
		return fmt.Errorf("cannot write %s as CSV", core.KindName(d))
	}
	if path == "" {
		return tabular.WriteCSV(stdout, frame, index)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tabular.WriteCSV(f, frame, index); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runFit(ctx context.Context, p *pipeline.Pipeline, opts *options, stdout io.Writer) error {
	if len(opts.Targets) == 0 {
		return errors.New("fit: --target is required")
	}
	train, err := readFrame(opts.Data, opts.Index, opts.Targets)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}
	if len(train.FeatureColumns()) == 0 {
		return fmt.Errorf("fit: no feature columns left after --target %v", opts.Targets)
	}
	xTrain, err := train.Features()
	if err != nil {
		return fmt.Errorf("features: %w", err)
	}
	yTrain, err := train.Targets()
	if err != nil {
		return fmt.Errorf("targets: %w", err)
	}
	xm := map[core.Role]core.Data{core.RoleTrain: xTrain}
	if opts.Test != "" {
		test, err := readFrame(opts.Test, opts.Index, nil)
		if err != nil {
			return fmt.Errorf("read test: %w", err)
		}
		xTest, err := test.SelectColumns(xTrain.(*tabular.Frame).Columns())
		if err != nil {
			return fmt.Errorf("test columns: %w", err)
		}
		xm[core.RoleTest] = xTest
	}
	xu, err := core.NewUnit(xm)
	if err != nil {
		return err
	}
	yu, err := core.Of(core.RoleTrain, yTrain)
	if err != nil {
		return err
	}

	pred, err := p.FitPredict(ctx, core.MustBranchSet(xu), core.MustBranchSet(yu))
	if err != nil {
		return err
	}
	if pred.Len() != 1 {
		return fmt.Errorf("fit: expected one prediction branch, got %d", pred.Len())
	}
	out := pred.At(0)
	if oof := out.Get(core.RoleTrain); oof != nil {
		if err := writeFrame(opts.Out, stdout, oof, opts.Index); err != nil {
			return fmt.Errorf("write predictions: %w", err)
		}
	}
	if test := out.Get(core.RoleTest); test != nil && opts.TestOut != "" {
		if err := writeFrame(opts.TestOut, stdout, test, opts.Index); err != nil {
			return fmt.Errorf("write test predictions: %w", err)
		}
	}

	if opts.Store == "" {
		return nil
	}
	st, err := openStore(opts.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return p.Save(ctx, st, opts.Prefix)
}

func runPredict(ctx context.Context, p *pipeline.Pipeline, opts *options, stdout io.Writer) error {
	if opts.Store == "" {
		return errors.New("predict: --store is required")
	}
	st, err := openStore(opts.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := p.Load(ctx, st, opts.Prefix); err != nil {
		return err
	}

	data, err := readFrame(opts.Data, opts.Index, opts.Targets)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}
	x, err := data.Features()
	if err != nil {
		return fmt.Errorf("features: %w", err)
	}
	xu, err := core.Of(core.RoleTest, x)
	if err != nil {
		return err
	}
	pred, err := p.Predict(ctx, core.MustBranchSet(xu))
	if err != nil {
		return err
	}
	return writeFrame(opts.Out, stdout, pred.At(0).Get(core.RoleTest), opts.Index)
}
