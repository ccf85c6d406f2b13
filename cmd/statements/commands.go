package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/report"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/service"
	"github.com/FACorreiaa/statement-ingest/pkg/cron"
	"github.com/FACorreiaa/statement-ingest/pkg/notify"
)

// errBatchFailed makes the process exit non-zero when any document failed.
var errBatchFailed = errors.New("one or more documents failed")

func runBatch(ctx context.Context, deps *Dependencies, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	test := fs.Bool("test", false, "process only the first file")
	b, err := batchArgs(fs, args)
	if err != nil {
		return err
	}
	b.FirstOnly = *test

	if err := deps.InitPipeline(ctx); err != nil {
		return err
	}

	var outcomes []statement.Outcome
	switch cmd {
	case "create-json":
		outcomes, err = deps.Pipeline.CreateJSON(ctx, b)
	case "process-json":
		outcomes, err = deps.Pipeline.ProcessJSON(ctx, b)
	default:
		outcomes, err = deps.Pipeline.ProcessDirectory(ctx, b)
	}
	if err != nil {
		return err
	}

	printOutcomes(os.Stdout, cmd, outcomes)
	if err := deps.Notifier.SendSummary(ctx, notify.Summary{Operation: cmd, Batch: b.String(), Outcomes: outcomes}); err != nil {
		deps.Logger.Warn("failed to send run summary", slog.Any("error", err))
	}

	if service.Summarize(outcomes).Failed > 0 {
		return errBatchFailed
	}
	return nil
}

func printOutcomes(w io.Writer, op string, outcomes []statement.Outcome) {
	s := service.Summarize(outcomes)
	fmt.Fprintf(w, "\n%s summary\n", op)
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Total files:  %d\n", s.Total)
	fmt.Fprintf(w, "Succeeded:    %d\n", s.Succeeded)
	fmt.Fprintf(w, "Skipped:      %d\n", s.Skipped)
	fmt.Fprintf(w, "Failed:       %d\n", s.Failed)
	if s.Warnings > 0 {
		fmt.Fprintf(w, "Warnings:     %d\n", s.Warnings)
	}
	if len(outcomes) == 0 {
		return
	}

	fmt.Fprintln(w, "\nDetails")
	fmt.Fprintln(w, "--------------------------------------------------")
	for _, o := range outcomes {
		var mark string
		switch o.Status {
		case statement.StatusSuccess:
			mark = "ok  "
		case statement.StatusSkipped:
			mark = "skip"
		default:
			mark = "FAIL"
		}
		fmt.Fprintf(w, "[%s] %s\n       %s\n", mark, o.Filename, o.Message)
	}
}

func runList(ctx context.Context, deps *Dependencies) error {
	if err := deps.InitPipeline(ctx); err != nil {
		return err
	}
	accounts, err := deps.Pipeline.Accounts().List(ctx)
	if err != nil {
		return err
	}
	printAccounts(os.Stdout, accounts)
	return nil
}

func printAccounts(w io.Writer, accounts []statement.AccountReference) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No accounts found in the database")
		return
	}
	fmt.Fprintln(w, "Available accounts")
	fmt.Fprintln(w, "==================================================")
	for _, a := range accounts {
		fmt.Fprintf(w, "Company: %s\n", a.CompanyName)
		fmt.Fprintf(w, "Account: %s\n", a.AccountNumber)
		fmt.Fprintf(w, "Bank:    %s\n", a.BankName)
		fmt.Fprintf(w, "Type:    %s\n", a.AccountType)
		fmt.Fprintln(w, "--------------------------------------------------")
	}
}

func runSync(ctx context.Context, deps *Dependencies, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	move := fs.Bool("move", false, "delete objects from storage once they are on disk")
	b, err := batchArgs(fs, args)
	if err != nil {
		return err
	}

	if err := deps.InitStorage(ctx); err != nil {
		return err
	}
	res, err := service.NewSyncer(deps.Storage, deps.Layout, deps.Logger).Sync(ctx, b, *move)
	if err != nil {
		return err
	}

	fmt.Printf("Downloaded %d, already present %d, removed from storage %d\n",
		len(res.Downloaded), len(res.Existing), len(res.Removed))
	return nil
}

func runExport(ctx context.Context, deps *Dependencies, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	formatName := fs.String("format", "csv", "output format: csv or xlsx")
	out := fs.String("out", "", "output file (defaults to <company>/<account>/<year>/statements-<year>.<format>)")
	b, err := batchArgs(fs, args)
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(*formatName)
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = filepath.Join(deps.Layout.InputDir(b.Company, b.Account, b.Year), "statements-"+b.Year+"."+string(format))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	n, err := deps.Exporter.Export(ctx, b.Company, b.Account, b.Year, format, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}

	fmt.Printf("Exported %d statements to %s\n", n, path)
	return nil
}

func runSchedule(ctx context.Context, deps *Dependencies, args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	once := fs.Bool("once", false, "run one pass immediately and exit")
	timeout := fs.Duration("timeout", 2*time.Hour, "limit for a single scheduled pass")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	if err := deps.InitPipeline(ctx); err != nil {
		return err
	}

	job := func(jobCtx context.Context) error {
		// Stop between documents when the process is shutting down.
		jobCtx, cancel := context.WithCancel(jobCtx)
		defer context.AfterFunc(ctx, cancel)()
		defer cancel()
		return scheduledPass(jobCtx, deps, strconv.Itoa(time.Now().Year()))
	}
	scheduler := cron.NewScheduler(deps.Config.Schedule.Spec, job, *timeout, deps.Logger)

	if *once {
		scheduler.RunNow()
		return nil
	}

	srv := metricsServer(deps)
	if srv != nil {
		go func() {
			deps.Logger.Info("metrics server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				deps.Logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	if err := scheduler.Start(); err != nil {
		return err
	}
	deps.Logger.Info("waiting for next run", slog.Time("next", scheduler.Next()))

	<-ctx.Done()
	<-scheduler.Stop().Done()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}
	return nil
}

// scheduledPass runs complete-process over every account directory that
// has an input directory for year.
func scheduledPass(ctx context.Context, deps *Dependencies, year string) error {
	dirs, err := deps.Layout.AccountDirs(year)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", deps.Layout.Root, err)
	}

	var errs []error
	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		b := service.Batch{Company: dir.Company, Account: dir.Account, Year: year}
		outcomes, err := deps.Pipeline.ProcessDirectory(ctx, b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := deps.Notifier.SendSummary(ctx, notify.Summary{Operation: "schedule", Batch: b.String(), Outcomes: outcomes}); err != nil {
			deps.Logger.Warn("failed to send run summary", slog.Any("error", err))
		}
	}
	return errors.Join(errs...)
}

func metricsServer(deps *Dependencies) *http.Server {
	if !deps.Config.Observability.MetricsEnabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              ":" + strconv.Itoa(deps.Config.Observability.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
