package transform

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-deidentifier/internal/mapping"
	"dicom-deidentifier/internal/tagpattern"
)

// maxUIDLength is the UI value-representation limit.
const maxUIDLength = 64

// defaultUIDPrefix is the UUID-derived UID root.
const defaultUIDPrefix = "2.25."

// RandomizeUID replaces every matching UID with a freshly generated one.
// UID references must stay coherent across every record that ever passes
// through the engine, so the mapping is always stored with the widest
// consistency scope, regardless of any per-rule setting.
type RandomizeUID struct {
	Targets []*tagpattern.Pattern
	Excepts []*tagpattern.Pattern

	// Prefix overrides the generated UID root. Empty means "2.25.".
	Prefix string
}

func (t *RandomizeUID) Name() string { return "RandomizeUID" }

func (t *RandomizeUID) apply(x *exec) error {
	if x.env.Store == nil {
		return fmt.Errorf("mapping store is not configured")
	}
	for _, m := range tagpattern.Enumerate(&x.file.Dataset, t.Targets, t.Excepts) {
		if m.Element.VR != "UI" || m.Element.IsEmpty() {
			continue
		}
		values := m.Element.Strings()
		for i, old := range values {
			if old == "" {
				continue
			}
			key, err := mapping.NewKey(mapping.KindUID, old, mapping.ScopeAlways, "")
			if err != nil {
				return fmt.Errorf("tag %s: %w", m.Path, err)
			}
			replaced, err := x.env.Store.GetOrCreate(x.ctx, key, func() (string, error) {
				return NewUID(t.Prefix)
			})
			if err != nil {
				return fmt.Errorf("tag %s: %w", m.Path, err)
			}
			values[i] = replaced
			x.result.logf(t.Name(), "Tag=%s OldValue=%s NewValue=%s", m.Path, old, replaced)
		}
		m.Element.SetStrings(values)

		// The file meta group mirrors SOPInstanceUID; keep them in sync so
		// the written file stays internally consistent.
		if m.Element.Tag == tag.SOPInstanceUID {
			if meta := x.file.Dataset.Find(tag.MediaStorageSOPInstanceUID); meta != nil {
				meta.SetStrings(values)
			}
		}
	}
	return nil
}

// NewUID generates a DICOM UID from a random UUID rendered as a decimal
// integer under the given prefix.
func NewUID(prefix string) (string, error) {
	if prefix == "" {
		prefix = defaultUIDPrefix
	}
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("could not generate UUID: %w", err)
	}
	digits := new(big.Int).SetBytes(u[:]).String()
	uid := prefix + digits
	if len(uid) > maxUIDLength {
		uid = uid[:maxUIDLength]
	}
	return uid, nil
}
