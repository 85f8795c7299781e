// Package transform applies ordered de-identification transformations to
// a record. The seven transformation kinds are a closed set; each
// implements the same apply contract and is gated upstream by a compiled
// scope filter (internal/rules) before it reaches the pipeline.
package transform

import (
	"context"
	"fmt"

	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-deidentifier/internal/dcm"
	"dicom-deidentifier/internal/mapping"
	"dicom-deidentifier/internal/record"
)

// RecordContext carries the cross-record identifiers consistency scoping
// needs. It is captured before any transformation runs, so a transformation
// that rewrites PatientID does not change the scope of later ones.
type RecordContext struct {
	PatientID        string
	StudyInstanceUID string
	SeriesInstanceUID string
}

// ContextFor reads the consistency-scope identifiers from a record.
func ContextFor(ds *record.Dataset) RecordContext {
	return RecordContext{
		PatientID:         ds.FindString(tag.PatientID),
		StudyInstanceUID:  ds.FindString(tag.StudyInstanceUID),
		SeriesInstanceUID: ds.FindString(tag.SeriesInstanceUID),
	}
}

// Reuse selects the consistency scope of a transformation's mapping.
type Reuse int

const (
	ReuseNone Reuse = iota
	ReuseAlways
	ReusePatient
	ReuseStudy
	ReuseSeries
)

// key builds the mapping key for one original value under this scope.
func (r Reuse) key(kind mapping.Kind, original string, rctx RecordContext) (mapping.Key, error) {
	switch r {
	case ReuseAlways:
		return mapping.NewKey(kind, original, mapping.ScopeAlways, "")
	case ReusePatient:
		return mapping.NewKey(kind, original, mapping.ScopePatient, rctx.PatientID)
	case ReuseStudy:
		return mapping.NewKey(kind, original, mapping.ScopeStudy, rctx.StudyInstanceUID)
	case ReuseSeries:
		return mapping.NewKey(kind, original, mapping.ScopeSeries, rctx.SeriesInstanceUID)
	}
	return mapping.Key{}, fmt.Errorf("no consistency scope")
}

// Env holds the external collaborators a pipeline run may need.
type Env struct {
	Store mapping.Store
	OCR   OCRClient
}

// Result reports what a pipeline run did to a record.
type Result struct {
	// Applied maps a transformation name to the log of changes it made.
	Applied map[string][]string
	// TargetTransferSyntax is the encoding the external transcoding
	// collaborator should re-encode the record to; empty if unchanged.
	TargetTransferSyntax string
}

func (r *Result) logf(name, format string, args ...any) {
	if r.Applied == nil {
		r.Applied = make(map[string][]string)
	}
	r.Applied[name] = append(r.Applied[name], fmt.Sprintf(format, args...))
}

// exec is the per-record execution state shared by all steps of one run.
type exec struct {
	ctx    context.Context
	file   *dcm.File
	rctx   RecordContext
	env    Env
	result *Result
}

// mapped routes a replacement through the mapping store when a
// consistency scope is set, and uses the fresh value otherwise.
func (x *exec) mapped(reuse Reuse, kind mapping.Kind, original string, gen mapping.Generator) (string, error) {
	if reuse == ReuseNone {
		return gen()
	}
	key, err := reuse.key(kind, original, x.rctx)
	if err != nil {
		return "", err
	}
	if x.env.Store == nil {
		return "", fmt.Errorf("mapping store is not configured")
	}
	return x.env.Store.GetOrCreate(x.ctx, key, gen)
}

// Transformation is one compiled transformation rule.
type Transformation interface {
	Name() string
	apply(x *exec) error
}

// Pipeline is an ordered list of compiled transformations applicable to
// one record. It is immutable and shared across workers.
type Pipeline struct {
	Steps []Transformation

	// NeedsPixelData is true when a step must access decoded pixels, in
	// which case the record must arrive in an uncompressed transfer
	// syntax (transcoding is the caller's collaborator).
	NeedsPixelData bool
	// NeedsOCR is true when a step delegates box detection to the
	// recognition service.
	NeedsOCR bool
}

// NewPipeline assembles a pipeline, deriving its pixel-data and OCR needs.
func NewPipeline(steps []Transformation) *Pipeline {
	p := &Pipeline{Steps: steps}
	for _, s := range steps {
		if r, ok := s.(*RemoveBurnedInAnnotations); ok {
			p.NeedsPixelData = true
			if r.UseOCR {
				p.NeedsOCR = true
			}
		}
	}
	return p
}

// Apply runs every step in order, mutating the record in place. The first
// failing step aborts the run: a partially de-identified record must not
// be forwarded, so failures are fatal to the record and reported to the
// caller for retry or inspection.
func (p *Pipeline) Apply(ctx context.Context, f *dcm.File, env Env) (*Result, error) {
	x := &exec{
		ctx:    ctx,
		file:   f,
		rctx:   ContextFor(&f.Dataset),
		env:    env,
		result: &Result{},
	}
	for _, step := range p.Steps {
		if err := step.apply(x); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}
	return x.result, nil
}
