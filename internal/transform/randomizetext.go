package transform

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"dicom-deidentifier/internal/mapping"
	"dicom-deidentifier/internal/tagpattern"
)

// RandomizeText replaces every matching text value with random
// alphanumeric text. With Split set, the value is split on the separator
// and each segment is replaced independently, so composite values such as
// person names keep their structure.
type RandomizeText struct {
	Targets []*tagpattern.Pattern
	Excepts []*tagpattern.Pattern

	// Split is the segment separator, e.g. "^" for person names. Empty
	// means the whole value is one segment.
	Split string
	// IgnoreCase folds the original to lower case before it is used as a
	// mapping key, so "SMITH^John" and "smith^john" map to the same
	// replacement.
	IgnoreCase bool
	Reuse      Reuse
}

func (t *RandomizeText) Name() string { return "RandomizeText" }

func (t *RandomizeText) apply(x *exec) error {
	for _, m := range tagpattern.Enumerate(&x.file.Dataset, t.Targets, t.Excepts) {
		if m.Element.IsEmpty() {
			continue
		}
		values := m.Element.Strings()
		if values == nil {
			continue
		}
		for i, old := range values {
			if old == "" {
				continue
			}
			replaced, err := t.replaceValue(x, old)
			if err != nil {
				return fmt.Errorf("tag %s: %w", m.Path, err)
			}
			values[i] = replaced
			x.result.logf(t.Name(), "Tag=%s OldValue=%s NewValue=%s", m.Path, old, replaced)
		}
		m.Element.SetStrings(values)
	}
	return nil
}

func (t *RandomizeText) replaceValue(x *exec, value string) (string, error) {
	segments := []string{value}
	if t.Split != "" {
		segments = strings.Split(value, t.Split)
	}
	out := make([]string, len(segments))
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		original := seg
		if t.IgnoreCase {
			original = strings.ToLower(seg)
		}
		replaced, err := x.mapped(t.Reuse, mapping.KindText, original, func() (string, error) {
			return randomText(8)
		})
		if err != nil {
			return "", err
		}
		out[i] = replaced
	}
	return strings.Join(out, t.Split), nil
}

const textAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomText returns n random characters from the replacement alphabet.
func randomText(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(textAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = textAlphabet[idx.Int64()]
	}
	return string(out), nil
}
