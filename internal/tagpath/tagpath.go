// Package tagpath parses and resolves tag paths: dotted addresses that
// designate data elements anywhere inside a nested record.
//
// A tag path is composed of segments separated by "." (a "," separator is
// accepted too). Each segment is a dictionary keyword or an 8-digit
// hexadecimal tag, optionally followed by an item selector: "[n]" for one
// sequence item, "[%]" for all items.
//
// Examples:
//   - PatientName
//   - ReferencedStudySequence[0].ReferencedSOPInstanceUID
//   - 00081110[%].00081155
package tagpath

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-deidentifier/internal/record"
)

// AllItems is the item selector value meaning "every child item".
const AllItems = -1

// NoItem marks a segment without an item selector.
const NoItem = -2

var (
	keywordSegment = regexp.MustCompile(`^([A-Za-z0-9]+)(?:\[(\d+|%)\])?$`)
	hexSegment     = regexp.MustCompile(`^([0-9A-F]{8})(?:\[(\d+|%)\])?$`)
)

// Segment is one step of a tag path: a concrete tag plus an item selector.
type Segment struct {
	Tag  tag.Tag
	Item int // item index, AllItems or NoItem
}

// Path is a parsed, non-empty tag path.
type Path struct {
	Segments []Segment
	text     string
}

// String returns the original path text.
func (p Path) String() string { return p.text }

// Leaf returns the tag of the final segment.
func (p Path) Leaf() tag.Tag { return p.Segments[len(p.Segments)-1].Tag }

// Parse compiles a tag path. Unknown keywords are configuration errors
// detected here, not at resolution time.
func Parse(text string) (Path, error) {
	parts := splitSegments(text)
	if len(parts) == 0 || text == "" {
		return Path{}, fmt.Errorf("empty tag path")
	}
	p := Path{text: text}
	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return Path{}, fmt.Errorf("invalid tag path %q: %w", text, err)
		}
		p.Segments = append(p.Segments, seg)
	}
	return p, nil
}

// MustParse is Parse for known-good paths; it panics on error.
func MustParse(text string) Path {
	p, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return p
}

func splitSegments(text string) []string {
	return strings.Split(strings.ReplaceAll(text, ",", "."), ".")
}

func parseSegment(part string) (Segment, error) {
	if m := hexSegment.FindStringSubmatch(part); m != nil {
		n, err := strconv.ParseUint(m[1], 16, 32)
		if err != nil {
			return Segment{}, fmt.Errorf("bad hexadecimal tag %q", part)
		}
		item, err := parseItem(m[2])
		if err != nil {
			return Segment{}, err
		}
		t := tag.Tag{Group: uint16(n >> 16), Element: uint16(n)}
		return Segment{Tag: t, Item: item}, nil
	}
	if m := keywordSegment.FindStringSubmatch(part); m != nil {
		info, err := tag.FindByName(m[1])
		if err != nil {
			return Segment{}, fmt.Errorf("unknown keyword %q", m[1])
		}
		item, err := parseItem(m[2])
		if err != nil {
			return Segment{}, err
		}
		return Segment{Tag: info.Tag, Item: item}, nil
	}
	return Segment{}, fmt.Errorf("bad segment %q", part)
}

func parseItem(sel string) (int, error) {
	switch sel {
	case "":
		return NoItem, nil
	case "%":
		return AllItems, nil
	default:
		n, err := strconv.Atoi(sel)
		if err != nil {
			return 0, fmt.Errorf("bad item selector %q", sel)
		}
		return n, nil
	}
}

// Location is one concrete element designated by a resolved path, together
// with the dataset that owns it.
type Location struct {
	Element *record.Element
	Parent  *record.Dataset
}

// Resolve walks the record and returns every element the path designates.
// A missing mid-path element or an out-of-range item selector yields no
// result for that branch; this is a not-found condition, not an error.
func (p Path) Resolve(ds *record.Dataset) []Location {
	level := []*record.Dataset{ds}
	last := len(p.Segments) - 1
	var out []Location
	for i, seg := range p.Segments {
		var next []*record.Dataset
		for _, cur := range level {
			e := cur.Find(seg.Tag)
			if e == nil {
				continue
			}
			if i == last {
				out = append(out, Location{Element: e, Parent: cur})
				continue
			}
			items := e.Items()
			switch {
			case seg.Item == AllItems || seg.Item == NoItem:
				next = append(next, items...)
			case seg.Item >= 0 && seg.Item < len(items):
				next = append(next, items[seg.Item])
			}
		}
		level = next
	}
	return out
}

// ResolveParents returns the datasets that should own the path's leaf
// element, fanning out over item selectors. Unlike Resolve, a missing or
// non-sequence intermediate element is an error: the caller wants to
// create the leaf and has nowhere to put it.
func (p Path) ResolveParents(ds *record.Dataset) ([]*record.Dataset, error) {
	level := []*record.Dataset{ds}
	for _, seg := range p.Segments[:len(p.Segments)-1] {
		var next []*record.Dataset
		for _, cur := range level {
			e := cur.Find(seg.Tag)
			if e == nil {
				return nil, fmt.Errorf("tag path %q: intermediate tag %04X%04X does not exist", p.text, seg.Tag.Group, seg.Tag.Element)
			}
			items := e.Items()
			if items == nil {
				return nil, fmt.Errorf("tag path %q: intermediate tag %04X%04X is not a sequence", p.text, seg.Tag.Group, seg.Tag.Element)
			}
			switch {
			case seg.Item == AllItems || seg.Item == NoItem:
				next = append(next, items...)
			case seg.Item >= 0 && seg.Item < len(items):
				next = append(next, items[seg.Item])
			default:
				return nil, fmt.Errorf("tag path %q: item %d out of range", p.text, seg.Item)
			}
		}
		level = next
	}
	return level, nil
}
