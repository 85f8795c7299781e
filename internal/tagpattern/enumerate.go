package tagpattern

import (
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-deidentifier/internal/record"
)

// Match is one element selected by pattern enumeration.
type Match struct {
	Element *record.Element
	Parent  *record.Dataset
	Path    string // dotted hexadecimal path, e.g. "00081140.00081155"
}

// Enumerate returns every non-sequence element of the record that matches
// at least one of patterns and none of the exceptions. Exceptions always
// take precedence, regardless of order.
func Enumerate(ds *record.Dataset, patterns, exceptions []*Pattern) []Match {
	var out []Match
	_ = ds.Walk(func(chain []*record.Element, parents []*record.Dataset) error {
		// File meta (group 0002) describes the encoding of the file itself
		// and is never a transformation target.
		if chain[0].Tag.Group == 0x0002 {
			return nil
		}
		e := chain[len(chain)-1]
		if e.Kind() == record.KindSequence {
			return nil
		}
		for _, p := range exceptions {
			if p.Matches(chain, parents) {
				return nil
			}
		}
		for _, p := range patterns {
			if p.Matches(chain, parents) {
				out = append(out, Match{
					Element: e,
					Parent:  parents[len(parents)-1],
					Path:    record.PathHex(chain),
				})
				return nil
			}
		}
		return nil
	})
	return out
}

// keywordOf returns the dictionary keyword for the element's tag, or ""
// for private and otherwise unknown tags.
func keywordOf(e *record.Element) string {
	info, err := tag.Find(e.Tag)
	if err != nil {
		return ""
	}
	return info.Name
}
