// Package worker runs the de-identification pipeline over a batch of
// files with bounded concurrency.
package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	log "log/slog"

	"golang.org/x/sync/errgroup"

	"dicom-deidentifier/internal/dcm"
	"dicom-deidentifier/internal/mapping"
	"dicom-deidentifier/internal/rules"
	"dicom-deidentifier/internal/transform"
)

// Stats counts per-file outcomes of one batch.
type Stats struct {
	Forwarded int64
	Skipped   int64
	Failed    int64
}

// Processor de-identifies files concurrently. A snapshot of the rules is
// taken per file, so a reload mid-batch affects only files started after
// the swap.
type Processor struct {
	Rules *rules.Provider
	Store mapping.Store
	OCR   transform.OCRClient

	// Concurrency bounds the number of files processed in parallel.
	// Values below 1 mean sequential.
	Concurrency int

	// InputRoot and OutputDir control output layout: each file is written
	// under OutputDir at its path relative to InputRoot.
	InputRoot string
	OutputDir string

	// DryRun evaluates labels and the forwarding decision without
	// transforming or writing anything.
	DryRun bool
}

// ProcessFiles runs the pipeline over every file. A failing file is
// counted and logged but does not stop the batch; only context
// cancellation aborts early.
func (p *Processor) ProcessFiles(ctx context.Context, paths []string) (Stats, error) {
	var stats Stats

	g, ctx := errgroup.WithContext(ctx)
	limit := p.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			forwarded, err := p.processFile(ctx, path)
			switch {
			case err != nil:
				atomic.AddInt64(&stats.Failed, 1)
				log.Error("Could not de-identify file", "file", path, "error", err)
			case forwarded:
				atomic.AddInt64(&stats.Forwarded, 1)
			default:
				atomic.AddInt64(&stats.Skipped, 1)
				log.Info("Skipped file outside forwarding scope", "file", path)
			}
			return nil
		})
	}

	err := g.Wait()
	return stats, err
}

// processFile de-identifies one file. It reports whether the file was
// inside the forwarding scope.
func (p *Processor) processFile(ctx context.Context, path string) (bool, error) {
	var f *dcm.File
	var err error
	if p.DryRun {
		f, err = dcm.ReadMetadataOnly(path)
	} else {
		f, err = dcm.Read(path)
	}
	if err != nil {
		return false, err
	}

	rs := p.Rules.Current()
	labels := rs.MatchingLabels(&f.Dataset)
	if !rs.ShouldForward(labels) {
		return false, nil
	}

	if p.DryRun {
		log.Info("Would forward file", "file", path, "labels", labels)
		return true, nil
	}

	pipeline := rs.PipelineFor(labels)
	result, err := pipeline.Apply(ctx, f, transform.Env{Store: p.Store, OCR: p.OCR})
	if err != nil {
		return false, err
	}

	outPath, err := p.outputPath(path)
	if err != nil {
		return false, err
	}
	if err := dcm.Write(f, outPath); err != nil {
		return false, err
	}

	log.Info("De-identified file",
		"file", path,
		"output", outPath,
		"labels", labels,
		"transformations", appliedNames(result),
		"transcodeTo", result.TargetTransferSyntax)
	return true, nil
}

func (p *Processor) outputPath(path string) (string, error) {
	rel, err := filepath.Rel(p.InputRoot, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	if p.OutputDir == "" {
		return "", fmt.Errorf("output directory is not configured")
	}
	return filepath.Join(p.OutputDir, rel), nil
}

func appliedNames(r *transform.Result) []string {
	names := make([]string, 0, len(r.Applied))
	for name := range r.Applied {
		names = append(names, name)
	}
	return names
}
