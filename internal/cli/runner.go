// Package cli wires the configuration, mapping store and worker pool
// together for a command-line run.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	log "log/slog"

	"dicom-deidentifier/internal/dcm"
	"dicom-deidentifier/internal/mapping"
	"dicom-deidentifier/internal/rules"
	"dicom-deidentifier/internal/worker"
)

// Options holds CLI configuration options.
type Options struct {
	ConfigFile   string
	InputFolder  string
	OutputFolder string
	Recursive    bool
	Concurrency  int
	MappingFile  string
	RedisAddress string
	Verbose      bool
	DryRun       bool
}

// Run executes the de-identification process.
func Run(opts Options) error {
	setupLogging(opts.Verbose)

	if opts.ConfigFile == "" {
		return fmt.Errorf("config file is required")
	}
	if opts.InputFolder == "" {
		return fmt.Errorf("input folder is required")
	}
	info, err := os.Stat(opts.InputFolder)
	if err != nil {
		return fmt.Errorf("input folder does not exist: %s", opts.InputFolder)
	}
	if !info.IsDir() {
		return fmt.Errorf("input path is not a directory: %s", opts.InputFolder)
	}
	if opts.OutputFolder == "" && !opts.DryRun {
		return fmt.Errorf("output folder is required")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = runtime.NumCPU()
	}

	provider, err := rules.NewProvider(opts.ConfigFile)
	if err != nil {
		return err
	}
	// No OCR backend ships with this command; fail before touching any
	// file rather than failing every record. A dry run never redacts, so
	// it may still preview such a configuration.
	if provider.Current().NeedsOCR() && !opts.DryRun {
		return fmt.Errorf("rules use RemoveBurnedInAnnotations with Type OCR, but no OCR backend is configured; use Type Manual with BoxCoordinates")
	}

	store := newStore(opts)
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	files, err := dcm.FindFiles(opts.InputFolder, opts.Recursive)
	if err != nil {
		return fmt.Errorf("could not list input files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no DICOM files found in %s", opts.InputFolder)
	}

	printHeader(opts, len(files))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGHUP reloads the rules without interrupting the batch.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)
	go func() {
		for range reload {
			if err := provider.Reload(); err != nil {
				log.Error("Could not reload rules, keeping previous rules", "error", err)
			}
		}
	}()

	proc := &worker.Processor{
		Rules:       provider,
		Store:       store,
		Concurrency: opts.Concurrency,
		InputRoot:   opts.InputFolder,
		OutputDir:   opts.OutputFolder,
		DryRun:      opts.DryRun,
	}
	stats, err := proc.ProcessFiles(ctx, files)
	if err != nil {
		return fmt.Errorf("processing aborted: %w", err)
	}

	printSummary(stats, opts)
	return nil
}

func setupLogging(verbose bool) {
	level := log.LevelInfo
	if verbose {
		level = log.LevelDebug
	}
	log.SetDefault(log.New(log.NewTextHandler(os.Stderr, &log.HandlerOptions{Level: level})))
}

// newStore selects the mapping store backend: Redis when an address is
// given, otherwise a JSON-file-backed in-memory store.
func newStore(opts Options) mapping.Store {
	if opts.RedisAddress != "" {
		ropts := mapping.DefaultRedisOptions()
		ropts.Address = opts.RedisAddress
		return mapping.NewRedisStore(ropts)
	}
	return mapping.NewMemoryStore(opts.MappingFile)
}

func printHeader(opts Options, fileCount int) {
	fmt.Println("DICOM De-Identifier")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Config:    %s\n", opts.ConfigFile)
	fmt.Printf("Input:     %s (%d files)\n", opts.InputFolder, fileCount)
	if opts.OutputFolder != "" {
		fmt.Printf("Output:    %s\n", opts.OutputFolder)
	}
	if opts.RedisAddress != "" {
		fmt.Printf("Mappings:  redis at %s\n", opts.RedisAddress)
	} else if opts.MappingFile != "" {
		fmt.Printf("Mappings:  %s\n", opts.MappingFile)
	} else {
		fmt.Printf("Mappings:  in-memory only (not persisted)\n")
	}

	var options []string
	if opts.Recursive {
		options = append(options, "Recursive")
	}
	if opts.DryRun {
		options = append(options, "Dry run")
	}
	options = append(options, fmt.Sprintf("%d workers", opts.Concurrency))
	fmt.Printf("Options:   %s\n", strings.Join(options, ", "))
	fmt.Println()
}

func printSummary(stats worker.Stats, opts Options) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Complete! %d forwarded, %d skipped, %d failed\n",
		stats.Forwarded, stats.Skipped, stats.Failed)
	if opts.OutputFolder != "" && !opts.DryRun {
		fmt.Printf("Output:    %s\n", opts.OutputFolder)
	}
}

// PrintUsage prints CLI usage information.
func PrintUsage() {
	fmt.Println(`DICOM De-Identifier

USAGE:
  dicom-deidentifier -c <config.yaml> -i <input> -o <output> [flags]

FLAGS:
  -c, --config <path>     De-identification rules file (required)
  -i, --input <path>      Input folder containing DICOM files (required)
  -o, --output <path>     Output folder for de-identified files
  -r, --recursive         Search subdirectories (default: true)
      --concurrency <n>   Parallel workers (default: number of CPUs)
  -m, --mapping <path>    JSON file persisting value mappings between runs
      --redis <addr>      Redis address for shared value mappings
                          (e.g. localhost:6379; overrides -m)
  -v, --verbose           Debug logging
  -n, --dry-run           Evaluate labels and forwarding only, write nothing
  -h, --help              Show this help message

RULES FILE:
  Labels select DICOM files with query filters (e.g. "Modality StrEquals
  'CT' And Rows NbGreater 1024"), categories group labels, ScopeToForward
  decides which files are kept, and Transformations describe what to do:
  ShiftDateTime, RandomizeText, RandomizeUID, AddTags, DeleteTags,
  RemoveBurnedInAnnotations and Transcode.

  RemoveBurnedInAnnotations with Type OCR needs an external OCR backend
  and is rejected by this command; use Type Manual with BoxCoordinates.

CONSISTENCY:
  Replacement values can be reused across files (ReuseMapping: Always,
  SamePatient, SameStudy or SameSeries). Mappings live in memory by
  default; use -m to persist them to a file, or --redis to share them
  between concurrent instances.

  The mapping file links original and replacement values. DO NOT share
  it: anyone with this file can re-identify patients.

SIGNALS:
  SIGHUP reloads the rules file without stopping the batch.

EXAMPLES:
  # Dry run first to preview (recommended)
  ./dicom-deidentifier -c rules.yaml -i /data/incoming -n

  # De-identify with persistent mappings
  ./dicom-deidentifier -c rules.yaml -i /data/incoming -o /data/deidentified -m mappings.json

  # Shared mappings across instances
  ./dicom-deidentifier -c rules.yaml -i /data/incoming -o /data/deidentified --redis localhost:6379`)
}
