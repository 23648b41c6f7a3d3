package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"CaseCurator/internal/app"
	"CaseCurator/internal/config"
	"CaseCurator/internal/domain"
	"CaseCurator/internal/infrastructure/report"
	"CaseCurator/internal/logging"
	"CaseCurator/internal/ports"
	"CaseCurator/internal/quota"
)

const usage = `usage: curator <command> [flags]

commands:
  generate      generate cases synchronously until n are produced or the quota is full
  bulk-submit   plan n cases and submit them as one bulk job
  bulk-poll     refresh a bulk job once
  bulk-wait     poll a bulk job until it finishes, then collect it
  bulk-collect  ingest the results of a completed bulk job
  validate      score and decide pending cases
  review        override the status of one case
  export        write cases as a JSON document
  import        read a JSON document of current or legacy cases
  report        write quota progress as an xlsx workbook
  progress      print quota progress per tier
  serve         run the control API and the bulk poller
`

type command func(ctx context.Context, a *app.Application, args []string) error

var commands = map[string]command{
	"generate":     runGenerate,
	"bulk-submit":  runBulkSubmit,
	"bulk-poll":    runBulkPoll,
	"bulk-wait":    runBulkWait,
	"bulk-collect": runBulkCollect,
	"validate":     runValidate,
	"review":       runReview,
	"export":       runExport,
	"import":       runImport,
	"report":       runReport,
	"progress":     runProgress,
	"serve":        runServe,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if err := cmd(ctx, application, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Error("command failed", "command", os.Args[1], "error", err)
		application.Close()
		os.Exit(1)
	}
}

func constraintFlags(fs *flag.FlagSet) func() (quota.Constraints, error) {
	tier := fs.String("tier", "", "restrict to a tier (L1, L2, L3)")
	polarity := fs.String("polarity", "", "force the target label")
	cell := fs.String("cell", "", "restrict to one cell, e.g. L2/T3")
	return func() (quota.Constraints, error) {
		var c quota.Constraints
		if *tier != "" {
			t, err := domain.ParseTier(*tier)
			if err != nil {
				return c, err
			}
			c.Tier = t
		}
		if *polarity != "" {
			c.Polarity = domain.NormalizeLabel(*polarity)
		}
		if *cell != "" {
			key, err := domain.ParseCellKey(*cell)
			if err != nil {
				return c, err
			}
			c.Cell = &key
		}
		return c, nil
	}
}

func runGenerate(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	n := fs.Int("n", 10, "number of cases to generate")
	cons := constraintFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := cons()
	if err != nil {
		return err
	}
	g, err := a.Generator()
	if err != nil {
		return err
	}
	sum, err := g.RunSync(ctx, *n, c)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, sum)
}

func runBulkSubmit(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("bulk-submit", flag.ContinueOnError)
	n := fs.Int("n", 100, "number of cases to plan")
	cons := constraintFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := cons()
	if err != nil {
		return err
	}
	g, err := a.Generator()
	if err != nil {
		return err
	}
	job, err := g.SubmitBulk(ctx, *n, c)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, map[string]any{
		"job_id":      job.ID,
		"run_id":      job.RunID,
		"external_id": job.ExternalID,
		"requests":    len(job.Requests),
		"state":       job.State,
	})
}

func jobFlag(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return fs, fs.String("job", "", "bulk job id")
}

func runBulkPoll(ctx context.Context, a *app.Application, args []string) error {
	fs, job := jobFlag("bulk-poll")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *job == "" {
		return errors.New("-job is required")
	}
	g, err := a.Generator()
	if err != nil {
		return err
	}
	res, err := g.PollBulk(ctx, *job)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, map[string]any{
		"job_id":  res.Job.ID,
		"state":   res.Job.State,
		"counts":  res.Job.Counts,
		"changed": res.Changed,
		"reason":  res.Job.FailureReason,
	})
}

func runBulkWait(ctx context.Context, a *app.Application, args []string) error {
	fs, job := jobFlag("bulk-wait")
	interval := fs.Duration("interval", a.Config.Bulk.PollInterval, "poll interval")
	timeout := fs.Duration("timeout", a.Config.Bulk.PollTimeout, "give up after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *job == "" {
		return errors.New("-job is required")
	}
	g, err := a.Generator()
	if err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	final, err := g.WaitBulk(waitCtx, *job, *interval)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", *job, err)
	}
	if final.State != domain.JobCompleted {
		return fmt.Errorf("job %s ended %s: %s", final.ID, final.State, final.FailureReason)
	}
	sum, err := g.CollectBulk(ctx, *job)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, sum)
}

func runBulkCollect(ctx context.Context, a *app.Application, args []string) error {
	fs, job := jobFlag("bulk-collect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *job == "" {
		return errors.New("-job is required")
	}
	g, err := a.Generator()
	if err != nil {
		return err
	}
	sum, err := g.CollectBulk(ctx, *job)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, sum)
}

func runValidate(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "maximum pending cases to process (0 = all)")
	concurrency := fs.Int("concurrency", a.Config.Scoring.Concurrency, "parallel judge calls")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sum, err := a.Engine.Run(ctx, a.Config.Generation.Dataset, *limit, *concurrency)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, sum)
}

func runReview(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("review", flag.ContinueOnError)
	id := fs.String("id", "", "case id")
	status := fs.String("status", "", "approved, rejected or pending")
	reviewer := fs.String("reviewer", os.Getenv("USER"), "reviewer name")
	notes := fs.String("notes", "", "free-form review notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *status == "" {
		return errors.New("-id and -status are required")
	}
	rec, err := a.Engine.Override(ctx, *id, domain.ValidationStatus(strings.ToLower(*status)), *reviewer, *notes)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, map[string]any{
		"id":                rec.ID,
		"validation_status": rec.ValidationStatus,
		"is_verified":       rec.IsVerified,
	})
}

func runExport(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("out", "", "output file (default stdout)")
	tier := fs.String("tier", "", "only this tier")
	status := fs.String("status", "", "comma-separated statuses")
	if err := fs.Parse(args); err != nil {
		return err
	}
	filter := ports.CaseFilter{Dataset: a.Config.Generation.Dataset}
	if *tier != "" {
		t, err := domain.ParseTier(*tier)
		if err != nil {
			return err
		}
		filter.Tier = t
	}
	if *status != "" {
		for _, part := range strings.Split(*status, ",") {
			st := domain.ValidationStatus(strings.ToLower(strings.TrimSpace(part)))
			if !st.Valid() {
				return fmt.Errorf("unknown status %q", part)
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	doc, err := a.Exporter.Write(ctx, w, filter)
	if err != nil {
		return err
	}
	if *out != "" {
		fmt.Fprintf(os.Stderr, "exported %d cases to %s\n", doc.Metadata.Count, *out)
	}
	return nil
}

func runImport(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	in := fs.String("in", "", "input file (default stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var (
		raw []byte
		err error
	)
	if *in == "" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(*in)
	}
	if err != nil {
		return err
	}
	sum, err := a.Importer.Import(ctx, raw)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, sum)
}

func runReport(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	out := fs.String("out", "quota.xlsx", "output workbook")
	if err := fs.Parse(args); err != nil {
		return err
	}
	needs, err := a.Progress(ctx)
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := report.WriteQuota(f, needs, a.Config.Generation.Dataset, time.Now()); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d cases remaining)\n", *out, needs.Remaining())
	return nil
}

func runProgress(ctx context.Context, a *app.Application, args []string) error {
	needs, err := a.Progress(ctx)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, map[string]any{
		"dataset":   a.Config.Generation.Dataset,
		"remaining": needs.Remaining(),
		"tiers":     needs.ByTier(),
	})
}

func runServe(ctx context.Context, a *app.Application, _ []string) error {
	return a.Serve(ctx)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
