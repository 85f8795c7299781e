package main

import (
	"flag"
	"fmt"
	"os"

	"dicom-deidentifier/internal/cli"
)

func main() {
	config := flag.String("config", "", "De-identification rules file")
	configShort := flag.String("c", "", "Rules file (shorthand)")

	input := flag.String("input", "", "Input folder containing DICOM files")
	inputShort := flag.String("i", "", "Input folder (shorthand)")

	output := flag.String("output", "", "Output folder for de-identified files")
	outputShort := flag.String("o", "", "Output folder (shorthand)")

	mappingFile := flag.String("mapping", "", "JSON file persisting value mappings")
	mappingShort := flag.String("m", "", "Mapping file (shorthand)")

	redis := flag.String("redis", "", "Redis address for shared value mappings")

	concurrency := flag.Int("concurrency", 0, "Parallel workers (default: number of CPUs)")

	recursive := flag.Bool("recursive", true, "Search subdirectories")
	recursiveShort := flag.Bool("r", true, "Recursive (shorthand)")

	verbose := flag.Bool("verbose", false, "Debug logging")
	verboseShort := flag.Bool("v", false, "Verbose (shorthand)")

	dryRun := flag.Bool("dry-run", false, "Evaluate labels and forwarding only, write nothing")
	dryRunShort := flag.Bool("n", false, "Dry run (shorthand)")

	help := flag.Bool("help", false, "Show help message")
	helpShort := flag.Bool("h", false, "Help (shorthand)")

	flag.Usage = func() {
		cli.PrintUsage()
	}

	flag.Parse()

	if *help || *helpShort {
		cli.PrintUsage()
		return
	}

	// Merge short and long flags (prefer long if both specified)
	firstOf := func(long, short string) string {
		if long != "" {
			return long
		}
		return short
	}

	opts := cli.Options{
		ConfigFile:   firstOf(*config, *configShort),
		InputFolder:  firstOf(*input, *inputShort),
		OutputFolder: firstOf(*output, *outputShort),
		MappingFile:  firstOf(*mappingFile, *mappingShort),
		RedisAddress: *redis,
		Concurrency:  *concurrency,
		Recursive:    *recursive && *recursiveShort,
		Verbose:      *verbose || *verboseShort,
		DryRun:       *dryRun || *dryRunShort,
	}

	if err := cli.Run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
