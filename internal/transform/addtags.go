package transform

import (
	"fmt"

	"dicom-deidentifier/internal/record"
	"dicom-deidentifier/internal/tagpath"
)

// AddTags inserts (or rewrites) one element at an explicit tag path. The
// path's intermediate sequences must already exist; a missing intermediate
// is an error rather than implicit structure creation.
type AddTags struct {
	Path  tagpath.Path
	VR    string
	Value string

	// OverwriteIfExists replaces an existing element, value representation
	// included. Without it an existing element is left untouched.
	OverwriteIfExists bool
}

func (t *AddTags) Name() string { return "AddTags" }

func (t *AddTags) apply(x *exec) error {
	parents, err := t.Path.ResolveParents(&x.file.Dataset)
	if err != nil {
		return fmt.Errorf("path %s: %w", t.Path, err)
	}
	leaf := t.Path.Leaf()

	for _, parent := range parents {
		if existing := parent.Find(leaf); existing != nil {
			if !t.OverwriteIfExists {
				continue
			}
			existing.VR = t.VR
			existing.SetStrings([]string{t.Value})
			x.result.logf(t.Name(), "Tag=%s Value=%s Overwritten=true", t.Path, t.Value)
			continue
		}
		parent.Add(&record.Element{
			Tag:   leaf,
			VR:    t.VR,
			Value: record.Strings{t.Value},
		})
		x.result.logf(t.Name(), "Tag=%s Value=%s", t.Path, t.Value)
	}
	return nil
}
