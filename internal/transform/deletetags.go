package transform

import (
	"fmt"

	"dicom-deidentifier/internal/tagpattern"
)

// DeleteAction selects how DeleteTags disposes of a matched element.
type DeleteAction int

const (
	// ActionRemove deletes the element from its dataset.
	ActionRemove DeleteAction = iota
	// ActionEmpty keeps the element but clears its value.
	ActionEmpty
)

func (a DeleteAction) String() string {
	if a == ActionEmpty {
		return "Empty"
	}
	return "Remove"
}

// DeleteTags removes or empties every matching element.
type DeleteTags struct {
	Targets []*tagpattern.Pattern
	Excepts []*tagpattern.Pattern
	Action  DeleteAction
}

func (t *DeleteTags) Name() string { return "DeleteTags" }

func (t *DeleteTags) apply(x *exec) error {
	// Matches are collected before any mutation so that removals cannot
	// disturb the enumeration.
	matches := tagpattern.Enumerate(&x.file.Dataset, t.Targets, t.Excepts)
	for _, m := range matches {
		switch t.Action {
		case ActionRemove:
			m.Parent.RemoveElement(m.Element)
		case ActionEmpty:
			m.Element.Clear()
		default:
			return fmt.Errorf("unknown action %d", t.Action)
		}
		x.result.logf(t.Name(), "Tag=%s Action=%s", m.Path, t.Action)
	}
	return nil
}
