// Command statements turns bank statement PDFs into validated JSON and
// stores them in Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/service"
	"github.com/FACorreiaa/statement-ingest/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := NewDependencies(cfg, logger)
	if err != nil {
		logger.Error("failed to init dependencies", slog.Any("error", err))
		os.Exit(1)
	}

	code := run(ctx, deps, cmd, args)
	deps.Cleanup()
	os.Exit(code)
}

func run(ctx context.Context, deps *Dependencies, cmd string, args []string) int {
	var err error
	switch cmd {
	case "create-json", "process-json", "complete-process":
		err = runBatch(ctx, deps, cmd, args)
	case "list":
		err = runList(ctx, deps)
	case "sync":
		err = runSync(ctx, deps, args)
	case "export":
		err = runExport(ctx, deps, args)
	case "schedule":
		err = runSchedule(ctx, deps, args)
	default:
		printError("Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}

	if err != nil {
		deps.Logger.Error(cmd+" failed", slog.Any("error", err))
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Println("Bank statement ingestion")
	fmt.Println("\nUsage:")
	fmt.Println("  statements <command> [arguments] [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  create-json      <company> <account> <year> [--test]   Extract PDFs into staged JSON")
	fmt.Println("  process-json     <company> <account> <year> [--test]   Store staged JSON in the database")
	fmt.Println("  complete-process <company> <account> <year> [--test]   Extract, store and archive")
	fmt.Println("  list                                                  List account references")
	fmt.Println("  sync             <company> <account> <year> [--move]   Download PDFs from object storage")
	fmt.Println("  export           <company> <account> <year> --format csv|xlsx [--out path]")
	fmt.Println("  schedule         [--once]                             Run complete-process on a cron spec")
	fmt.Println("  help                                                  Show this help message")
	fmt.Println("\nRun 'statements <command> -h' for more information on a command.")
}

// printError prints to stderr, falling back to stdout.
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// parseArgs parses flags that may appear before, between or after the
// positional arguments, and returns the positionals.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// batchArgs reads <company> <account> <year>.
func batchArgs(fs *flag.FlagSet, args []string) (service.Batch, error) {
	pos, err := parseArgs(fs, args)
	if err != nil {
		return service.Batch{}, err
	}
	if len(pos) != 3 {
		return service.Batch{}, fmt.Errorf("usage: statements %s <company> <account> <year>", fs.Name())
	}
	return service.Batch{Company: pos[0], Account: pos[1], Year: pos[2]}, nil
}
