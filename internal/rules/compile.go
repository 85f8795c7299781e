package rules

import (
	"fmt"

	"dicom-deidentifier/internal/query"
	"dicom-deidentifier/internal/record"
	"dicom-deidentifier/internal/tagpath"
	"dicom-deidentifier/internal/tagpattern"
	"dicom-deidentifier/internal/transform"
)

// ConfigError reports an invalid configuration document. Path points at
// the offending attribute, e.g. `Transformations[0].DeleteTags[1].Action`.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Path, e.Reason)
}

func errf(path, format string, args ...any) error {
	return &ConfigError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Compile validates the document and compiles every query, tag pattern
// and tag path. Any invalid attribute rejects the whole document.
func Compile(doc *Document) (*Ruleset, error) {
	rs := &Ruleset{categories: make(map[string][]string)}

	names := map[string]bool{LabelAll: true}
	for i, l := range doc.Labels {
		path := fmt.Sprintf("Labels[%d]", i)
		if l.Name == "" {
			return nil, errf(path, "Name is missing")
		}
		if names[l.Name] {
			return nil, errf(path, "label %q is already defined", l.Name)
		}
		names[l.Name] = true

		var filter query.Node
		if l.DICOMQueryFilter != "" {
			var err error
			filter, err = query.Parse(l.DICOMQueryFilter)
			if err != nil {
				return nil, errf(path+".DICOMQueryFilter", "%v", err)
			}
		}
		rs.labels = append(rs.labels, label{name: l.Name, filter: filter})
	}

	for i, c := range doc.Categories {
		path := fmt.Sprintf("Categories[%d]", i)
		if c.Name == "" {
			return nil, errf(path, "Name is missing")
		}
		if _, dup := rs.categories[c.Name]; dup {
			return nil, errf(path, "category %q is already defined", c.Name)
		}
		for _, l := range c.Labels {
			if !names[l] {
				return nil, errf(path+".Labels", "%q is not a defined label", l)
			}
		}
		rs.categories[c.Name] = c.Labels
	}

	forward, err := compileScope(doc.ScopeToForward, "ScopeToForward", names, rs.categories)
	if err != nil {
		return nil, err
	}
	rs.forward = forward

	for i, t := range doc.Transformations {
		path := fmt.Sprintf("Transformations[%d]", i)
		scope, err := compileScope(t.Scope, path+".Scope", names, rs.categories)
		if err != nil {
			return nil, err
		}
		steps, err := compileSteps(t, path)
		if err != nil {
			return nil, err
		}
		rs.entries = append(rs.entries, entry{scope: scope, steps: steps})
	}

	return rs, nil
}

func compileScope(def ScopeDef, path string, labels map[string]bool, categories map[string][]string) (ScopeFilter, error) {
	checkLabels := func(attr string, list []string) error {
		for _, l := range list {
			if !labels[l] {
				return errf(path+"."+attr, "%q is not a defined label", l)
			}
		}
		return nil
	}
	checkCategories := func(attr string, list []string) error {
		for _, c := range list {
			if _, ok := categories[c]; !ok {
				return errf(path+"."+attr, "%q is not a defined category", c)
			}
		}
		return nil
	}
	if err := checkLabels("Labels", def.Labels); err != nil {
		return ScopeFilter{}, err
	}
	if err := checkLabels("ExceptLabels", def.ExceptLabels); err != nil {
		return ScopeFilter{}, err
	}
	if err := checkCategories("Categories", def.Categories); err != nil {
		return ScopeFilter{}, err
	}
	if err := checkCategories("ExceptCategories", def.ExceptCategories); err != nil {
		return ScopeFilter{}, err
	}
	return ScopeFilter{
		labels:           def.Labels,
		exceptLabels:     def.ExceptLabels,
		categories:       def.Categories,
		exceptCategories: def.ExceptCategories,
	}, nil
}

// compileSteps compiles one transformation group. Within a group the
// kinds apply in a fixed order; groups themselves apply in configuration
// order.
func compileSteps(t TransformationDef, path string) ([]transform.Transformation, error) {
	var steps []transform.Transformation

	for i, def := range t.ShiftDateTime {
		p := fmt.Sprintf("%s.ShiftDateTime[%d]", path, i)
		targets, excepts, err := compilePatterns(def.PatternsDef, p)
		if err != nil {
			return nil, err
		}
		if def.ShiftBy <= 0 {
			return nil, errf(p+".ShiftBy", "must be a positive integer")
		}
		reuse, err := parseReuse(def.ReuseMapping, p)
		if err != nil {
			return nil, err
		}
		steps = append(steps, &transform.ShiftDateTime{
			Targets: targets, Excepts: excepts,
			ShiftBy: def.ShiftBy, Reuse: reuse,
		})
	}

	for i, def := range t.RandomizeText {
		p := fmt.Sprintf("%s.RandomizeText[%d]", path, i)
		targets, excepts, err := compilePatterns(def.PatternsDef, p)
		if err != nil {
			return nil, err
		}
		reuse, err := parseReuse(def.ReuseMapping, p)
		if err != nil {
			return nil, err
		}
		steps = append(steps, &transform.RandomizeText{
			Targets: targets, Excepts: excepts,
			Split: def.Split, IgnoreCase: def.IgnoreCase, Reuse: reuse,
		})
	}

	for i, def := range t.RandomizeUID {
		p := fmt.Sprintf("%s.RandomizeUID[%d]", path, i)
		targets, excepts, err := compilePatterns(def.PatternsDef, p)
		if err != nil {
			return nil, err
		}
		steps = append(steps, &transform.RandomizeUID{
			Targets: targets, Excepts: excepts, Prefix: def.Prefix,
		})
	}

	for i, def := range t.AddTags {
		p := fmt.Sprintf("%s.AddTags[%d]", path, i)
		tp, err := tagpath.Parse(def.Tag)
		if err != nil {
			return nil, errf(p+".Tag", "%v", err)
		}
		if !record.KnownVR(def.VR) {
			return nil, errf(p+".VR", "%q is not a valid value representation", def.VR)
		}
		steps = append(steps, &transform.AddTags{
			Path: tp, VR: def.VR, Value: def.Value,
			OverwriteIfExists: def.OverwriteIfExists,
		})
	}

	for i, def := range t.RemoveBurnedInAnnotations {
		p := fmt.Sprintf("%s.RemoveBurnedInAnnotations[%d]", path, i)
		switch def.Type {
		case "OCR":
			steps = append(steps, &transform.RemoveBurnedInAnnotations{UseOCR: true})
		case "Manual":
			if len(def.BoxCoordinates) == 0 {
				return nil, errf(p+".BoxCoordinates", "is missing")
			}
			boxes := make([]transform.Box, len(def.BoxCoordinates))
			for j, box := range def.BoxCoordinates {
				if len(box) != 4 {
					return nil, errf(fmt.Sprintf("%s.BoxCoordinates[%d]", p, j), "is not a 4-element list")
				}
				if box[0] >= box[2] || box[1] >= box[3] {
					return nil, errf(fmt.Sprintf("%s.BoxCoordinates[%d]", p, j), "contains invalid coordinates")
				}
				boxes[j] = transform.Box{Left: box[0], Top: box[1], Right: box[2], Bottom: box[3]}
			}
			steps = append(steps, &transform.RemoveBurnedInAnnotations{Boxes: boxes})
		default:
			return nil, errf(p+".Type", "must be OCR or Manual")
		}
	}

	for i, def := range t.DeleteTags {
		p := fmt.Sprintf("%s.DeleteTags[%d]", path, i)
		targets, excepts, err := compilePatterns(def.PatternsDef, p)
		if err != nil {
			return nil, err
		}
		var action transform.DeleteAction
		switch def.Action {
		case "Remove":
			action = transform.ActionRemove
		case "Empty":
			action = transform.ActionEmpty
		default:
			return nil, errf(p+".Action", "must be Remove or Empty")
		}
		steps = append(steps, &transform.DeleteTags{
			Targets: targets, Excepts: excepts, Action: action,
		})
	}

	if t.Transcode != "" {
		steps = append(steps, &transform.Transcode{TransferSyntax: t.Transcode})
	}

	return steps, nil
}

func compilePatterns(def PatternsDef, path string) (targets, excepts []*tagpattern.Pattern, err error) {
	if len(def.TagPatterns) == 0 {
		return nil, nil, errf(path+".TagPatterns", "is missing")
	}
	for i, text := range def.TagPatterns {
		p, err := tagpattern.Compile(text)
		if err != nil {
			return nil, nil, errf(fmt.Sprintf("%s.TagPatterns[%d]", path, i), "%v", err)
		}
		targets = append(targets, p)
	}
	for i, text := range def.ExceptTagPatterns {
		p, err := tagpattern.Compile(text)
		if err != nil {
			return nil, nil, errf(fmt.Sprintf("%s.ExceptTagPatterns[%d]", path, i), "%v", err)
		}
		excepts = append(excepts, p)
	}
	return targets, excepts, nil
}

func parseReuse(value, path string) (transform.Reuse, error) {
	switch value {
	case "":
		return transform.ReuseNone, nil
	case "Always":
		return transform.ReuseAlways, nil
	case "SamePatient":
		return transform.ReusePatient, nil
	case "SameStudy":
		return transform.ReuseStudy, nil
	case "SameSeries":
		return transform.ReuseSeries, nil
	}
	return transform.ReuseNone, errf(path+".ReuseMapping", "%q is not a valid mapping scope", value)
}
