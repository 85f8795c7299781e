package rules

import (
	"dicom-deidentifier/internal/query"
	"dicom-deidentifier/internal/record"
	"dicom-deidentifier/internal/transform"
)

// LabelAll is the synthetic label every record carries.
const LabelAll = "ALL"

type label struct {
	name string
	// filter is nil when the label matches every record.
	filter query.Node
}

// ScopeFilter is a compiled scope: which labels (directly or through
// categories) a rule applies to, and which it never applies to.
type ScopeFilter struct {
	labels           []string
	exceptLabels     []string
	categories       []string
	exceptCategories []string
}

// entry is one compiled transformation group with its scope.
type entry struct {
	scope ScopeFilter
	steps []transform.Transformation
}

// Ruleset is one immutable compiled configuration snapshot.
type Ruleset struct {
	labels     []label
	categories map[string][]string
	forward    ScopeFilter
	entries    []entry
}

// MatchingLabels evaluates every label filter against the record. The
// result always contains LabelAll.
func (rs *Ruleset) MatchingLabels(ds *record.Dataset) []string {
	out := []string{LabelAll}
	for _, l := range rs.labels {
		if l.filter == nil || l.filter.Eval(ds) {
			out = append(out, l.name)
		}
	}
	return out
}

// CategoryLabels returns the labels of a category, or nil.
func (rs *Ruleset) CategoryLabels(name string) []string {
	return rs.categories[name]
}

// InScope reports whether a record carrying the given labels falls inside
// the scope. A label excluded (directly or through a category) wins over
// any inclusion; with no inclusion hit the record is out of scope.
func (s ScopeFilter) InScope(labels []string, rs *Ruleset) bool {
	excluded := make(map[string]bool)
	for _, l := range s.exceptLabels {
		excluded[l] = true
	}
	for _, c := range s.exceptCategories {
		for _, l := range rs.categories[c] {
			excluded[l] = true
		}
	}
	for _, l := range labels {
		if excluded[l] {
			return false
		}
	}

	included := make(map[string]bool)
	for _, l := range s.labels {
		included[l] = true
	}
	for _, c := range s.categories {
		for _, l := range rs.categories[c] {
			included[l] = true
		}
	}
	for _, l := range labels {
		if included[l] {
			return true
		}
	}
	return false
}

// ShouldForward reports whether a record with the given labels is inside
// the forwarding scope.
func (rs *Ruleset) ShouldForward(labels []string) bool {
	return rs.forward.InScope(labels, rs)
}

// NeedsOCR reports whether any transformation group carries an OCR
// redaction step, whatever its scope.
func (rs *Ruleset) NeedsOCR() bool {
	for _, e := range rs.entries {
		for _, s := range e.steps {
			if r, ok := s.(*transform.RemoveBurnedInAnnotations); ok && r.UseOCR {
				return true
			}
		}
	}
	return false
}

// PipelineFor assembles the transformation pipeline for a record with the
// given labels: the steps of every in-scope group, in configuration
// order.
func (rs *Ruleset) PipelineFor(labels []string) *transform.Pipeline {
	var steps []transform.Transformation
	for _, e := range rs.entries {
		if e.scope.InScope(labels, rs) {
			steps = append(steps, e.steps...)
		}
	}
	return transform.NewPipeline(steps)
}
