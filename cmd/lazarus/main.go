// Command lazarus inspects and repairs soft-deleted records: it restores
// single records or whole types, reports deletion history and runs cascade
// deletes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/seb7887/lazarus/ghola"
	"github.com/seb7887/lazarus/sietch"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailed      = 1
	exitNothingToDo = 2
	exitPartial     = 3
	exitUsage       = 64
)

const usage = `usage: lazarus <action> [flags]

actions:
  restore   restore --model/--pk, or every deleted record of --model with --all
  list      count deleted records per type
  history   print the deletion history of --model/--pk
  cascade   restore every deleted record in dependency order
  delete    soft-delete --model/--pk and its dependents
  schema    print the table DDL, or run it with --apply

flags:
`

type flags struct {
	model   string
	pk      string
	all     bool
	cascade bool
	dryRun  bool
	apply   bool
	config  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one action and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...appOption) int {
	fs := pflag.NewFlagSet("lazarus", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var f flags
	fs.StringVar(&f.model, "model", "", "entity type, e.g. post")
	fs.StringVar(&f.pk, "pk", "", "record id")
	fs.BoolVar(&f.all, "all", false, "restore every deleted record of --model")
	fs.BoolVar(&f.cascade, "cascade", true, "restore deleted parents and dependents too")
	fs.BoolVar(&f.dryRun, "dry-run", false, "report what would change without writing")
	fs.BoolVar(&f.apply, "apply", false, "schema: create the tables instead of printing them")
	fs.StringVarP(&f.config, "config", "c", "", "config file (default ./lazarus.yaml)")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}
	action := fs.Arg(0)
	if err := f.check(action); err != nil {
		fmt.Fprintf(stderr, "lazarus %s: %v\n", action, err)
		return exitUsage
	}

	conf, err := LoadConfig(f.config)
	if err != nil {
		fmt.Fprintf(stderr, "lazarus: %v\n", err)
		return exitFailed
	}
	logger := setupLogger(conf.Logging, stderr)

	a, err := newApp(ctx, conf, logger, opts...)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return exitFailed
	}
	defer a.close(context.WithoutCancel(ctx))

	res, err := a.dispatch(ctx, action, f, stdout)
	if err != nil && res.Message == "" {
		fmt.Fprintf(stderr, "lazarus %s: %v\n", action, err)
		return exitFailed
	}
	if res.Message != "" {
		printResult(stdout, res)
	}
	if err != nil {
		logger.Error(action+" failed", "error", err)
	}
	return exitCode(res, err)
}

func (f flags) check(action string) error {
	switch action {
	case "restore":
		if f.model == "" {
			return errors.New("--model is required")
		}
		if f.all == (f.pk != "") {
			return errors.New("exactly one of --pk or --all is required")
		}
	case "history", "delete":
		if f.model == "" || f.pk == "" {
			return errors.New("--model and --pk are required")
		}
		if action == "delete" && f.dryRun {
			return errors.New("--dry-run is not supported")
		}
	case "list", "cascade", "schema":
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

// dispatch runs action. Actions that do not produce an engine result
// write their output directly and return a zero Result.
func (a *app) dispatch(ctx context.Context, action string, f flags, out io.Writer) (ghola.Result, error) {
	switch action {
	case "restore":
		if f.all {
			return a.restoreAll(ctx, f)
		}
		ent, err := a.load(ctx, f.model, f.pk)
		if err != nil {
			return ghola.Result{}, err
		}
		return a.engine.RestoreOne(ctx, ent, ghola.RestoreOptions{
			Cascade:   f.cascade,
			DryRun:    f.dryRun,
			Ancestors: a.conf.Engine.Ancestors,
		})
	case "cascade":
		return a.engine.BulkRestoreByDependencyOrder(ctx, ghola.BulkOptions{
			DryRun:    f.dryRun,
			BatchSize: a.conf.Engine.BatchSize,
		})
	case "delete":
		ent, err := a.load(ctx, f.model, f.pk)
		if err != nil {
			return ghola.Result{}, err
		}
		return a.engine.CascadeSoftDelete(ctx, ent)
	case "list":
		return ghola.Result{}, a.list(ctx, out)
	case "history":
		report, err := a.engine.History(ctx, f.model, f.pk)
		if err != nil {
			return ghola.Result{}, err
		}
		return ghola.Result{}, writeJSON(out, report)
	case "schema":
		if f.apply {
			return ghola.Result{}, a.applySchema(ctx, out)
		}
		stmts, err := sietch.GenerateSchema(a.store.Registry())
		if err != nil {
			return ghola.Result{}, err
		}
		for _, stmt := range stmts {
			fmt.Fprintf(out, "%s;\n\n", stmt)
		}
		return ghola.Result{}, nil
	}
	return ghola.Result{}, fmt.Errorf("unknown action %q", action)
}

type schemaCreator interface {
	CreateSchema(ctx context.Context) error
}

func (a *app) applySchema(ctx context.Context, out io.Writer) error {
	sc, ok := a.store.(schemaCreator)
	if !ok {
		return errors.New("--apply needs the cockroach database driver")
	}
	if err := sc.CreateSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "created %d tables\n", len(a.store.Registry().Types()))
	return nil
}

func (a *app) load(ctx context.Context, model, pk string) (sietch.Entity, error) {
	t, ok := a.store.Registry().Lookup(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", sietch.ErrUnknownEntityType, model)
	}
	return a.store.Get(ctx, t, pk)
}

func (a *app) restoreAll(ctx context.Context, f flags) (ghola.Result, error) {
	t, ok := a.store.Registry().Lookup(f.model)
	if !ok {
		return ghola.Result{}, fmt.Errorf("%w: %s", sietch.ErrUnknownEntityType, f.model)
	}
	if !t.SoftDeletable() {
		return ghola.Result{}, fmt.Errorf("%w: %s", sietch.ErrNotSoftDeletable, f.model)
	}
	deleted, err := a.store.Find(ctx, t, sietch.NewFilter().OnlyDeleted().Build())
	if err != nil {
		return ghola.Result{}, fmt.Errorf("find deleted %s: %w", t.Name, err)
	}
	return a.engine.BulkRestoreSubset(ctx, deleted, ghola.BulkOptions{
		DryRun:     f.dryRun,
		Workers:    a.conf.Engine.Workers,
		Standalone: !f.cascade,
		Ancestors:  a.conf.Engine.Ancestors,
	})
}

func (a *app) list(ctx context.Context, out io.Writer) error {
	filter := sietch.NewFilter().OnlyDeleted().Build()
	for _, t := range a.store.Registry().Types() {
		if !t.SoftDeletable() {
			continue
		}
		n, err := a.store.Count(ctx, t, filter)
		if err != nil {
			return fmt.Errorf("count %s: %w", t.Name, err)
		}
		fmt.Fprintf(out, "%-16s %d\n", t.Name, n)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(out io.Writer, res ghola.Result) {
	fmt.Fprintln(out, res.Message)
	for _, line := range res.Plan {
		fmt.Fprintf(out, "  %s\n", line)
	}
	if len(res.Cycle) > 0 {
		fmt.Fprintf(out, "cycle: %v\n", res.Cycle)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(out, "skipped: %v\n", s)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(out, "failed: %v\n", f)
	}
}

func exitCode(res ghola.Result, err error) int {
	switch res.Outcome {
	case ghola.OutcomeNothingToDo, ghola.OutcomeNotDeleted, ghola.OutcomeAlreadyDeleted:
		if err == nil && res.Message != "" {
			return exitNothingToDo
		}
	case ghola.OutcomePartialFailure:
		return exitPartial
	case ghola.OutcomeFailed:
		return exitFailed
	}
	if err != nil {
		return exitFailed
	}
	return exitOK
}
