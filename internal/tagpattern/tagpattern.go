// Package tagpattern compiles and matches tag-path patterns: wildcard
// addresses that select data elements for transformation.
//
// A pattern is a dotted list of segments with an optional search-scope
// prefix: no prefix restricts matching to top-level elements, "+/"
// matches only below the top level, "*/" matches at any level. Each
// segment is one of:
//   - a keyword with optional "*" wildcards (case-sensitive),
//   - an 8-character hexadecimal mask where "X" accepts any digit and
//     "@" accepts any odd digit,
//   - gggg{PRIVATE CREATOR}ee: a 4-digit group mask, an exact private
//     creator string and a 2-digit element-block mask,
//   - {VR}: matches by value representation alone.
//
// Matching aligns pattern segments with the deepest segments of an
// element's ancestor chain, so "+/*Date" selects elements whose keyword
// ends in "Date" anywhere below the top level.
package tagpattern

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"dicom-deidentifier/internal/record"
)

// SearchScope restricts the nesting depths a pattern may match at.
type SearchScope int

const (
	TopLevelOnly SearchScope = iota
	AnyLevel
	NonTopLevelOnly
)

// SyntaxError reports a malformed pattern. It is a configuration error:
// compilation happens once at configuration-load time.
type SyntaxError struct {
	Pattern string
	Reason  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid tag pattern %q: %s", e.Pattern, e.Reason)
}

type segmentKind int

const (
	segKeyword segmentKind = iota
	segHexMask
	segPrivateCreator
	segVR
)

var (
	keywordForm = regexp.MustCompile(`^[A-Za-z0-9*]+$`)
	hexMaskForm = regexp.MustCompile(`^[0-9A-FX@]{8}$`)
	privateForm = regexp.MustCompile(`^([0-9A-FX@]{4})\{([^{}]+)\}([0-9A-FX@]{2})$`)
	vrForm      = regexp.MustCompile(`^\{([A-Z]{2})\}$`)
)

type segment struct {
	kind    segmentKind
	keyword glob.Glob // segKeyword
	mask    string    // segHexMask: 8 chars; segPrivateCreator: 6 chars (group + element block)
	creator string    // segPrivateCreator
	vr      string    // segVR
}

// Pattern is a compiled tag-path pattern.
type Pattern struct {
	Scope    SearchScope
	segments []segment
	text     string
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.text }

// Compile parses and compiles a pattern. Exactly one addressing mode is
// active per segment; the hexadecimal forms win over the keyword form
// when a segment is syntactically both.
func Compile(text string) (*Pattern, error) {
	p := &Pattern{Scope: TopLevelOnly, text: text}
	rest := text
	switch {
	case strings.HasPrefix(rest, "*/"):
		p.Scope = AnyLevel
		rest = rest[2:]
	case strings.HasPrefix(rest, "+/"):
		p.Scope = NonTopLevelOnly
		rest = rest[2:]
	}
	if rest == "" {
		return nil, &SyntaxError{Pattern: text, Reason: "empty pattern"}
	}
	for _, part := range splitSegments(rest) {
		seg, err := compileSegment(part)
		if err != nil {
			return nil, &SyntaxError{Pattern: text, Reason: err.Error()}
		}
		p.segments = append(p.segments, seg)
	}
	return p, nil
}

// MustCompile is Compile for known-good patterns; it panics on error.
func MustCompile(text string) *Pattern {
	p, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return p
}

// splitSegments splits on "." and "," separators, keeping separators
// inside a {...} group (private creator names) intact.
func splitSegments(text string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range text {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		case '.', ',':
			if depth == 0 {
				parts = append(parts, text[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, text[start:])
}

func compileSegment(part string) (segment, error) {
	if hexMaskForm.MatchString(part) {
		return segment{kind: segHexMask, mask: part}, nil
	}
	if m := privateForm.FindStringSubmatch(part); m != nil {
		return segment{kind: segPrivateCreator, mask: m[1] + m[3], creator: m[2]}, nil
	}
	if m := vrForm.FindStringSubmatch(part); m != nil {
		if !record.KnownVR(m[1]) {
			return segment{}, fmt.Errorf("unknown value representation %q", m[1])
		}
		return segment{kind: segVR, vr: m[1]}, nil
	}
	if keywordForm.MatchString(part) {
		g, err := glob.Compile(part)
		if err != nil {
			return segment{}, fmt.Errorf("bad keyword glob %q", part)
		}
		return segment{kind: segKeyword, keyword: g}, nil
	}
	if part == "" {
		return segment{}, fmt.Errorf("empty segment")
	}
	return segment{}, fmt.Errorf("bad segment %q", part)
}

// oddNibbles are the hexadecimal digits the "@" mask character accepts.
// Private groups are odd-numbered, which is what "@" exists to select.
const oddNibbles = "13579BDF"

func maskMatch(hex, mask string) bool {
	if len(hex) != len(mask) {
		return false
	}
	for i := 0; i < len(hex); i++ {
		switch mask[i] {
		case 'X':
		case '@':
			if !strings.ContainsRune(oddNibbles, rune(hex[i])) {
				return false
			}
		default:
			if mask[i] != hex[i] {
				return false
			}
		}
	}
	return true
}

func (s segment) match(e *record.Element, parent *record.Dataset) bool {
	switch s.kind {
	case segKeyword:
		kw := keywordOf(e)
		return kw != "" && s.keyword.Match(kw)
	case segHexMask:
		return maskMatch(e.TagHex(), s.mask)
	case segPrivateCreator:
		hex := e.TagHex()
		return maskMatch(hex[:4], s.mask[:4]) &&
			maskMatch(hex[6:], s.mask[4:]) &&
			parent.PrivateCreator(e) == s.creator
	case segVR:
		return e.VR == s.vr
	}
	return false
}

// Matches reports whether the element at the end of the ancestor chain is
// selected by the pattern. parents[i] is the dataset containing chain[i].
func (p *Pattern) Matches(chain []*record.Element, parents []*record.Dataset) bool {
	depth := len(chain)
	n := len(p.segments)
	switch p.Scope {
	case TopLevelOnly:
		if depth != n {
			return false
		}
	case NonTopLevelOnly:
		if depth <= n {
			return false
		}
	case AnyLevel:
		if depth < n {
			return false
		}
	}
	// Align pattern segments with the deepest chain segments.
	for i := 1; i <= n; i++ {
		if !p.segments[n-i].match(chain[depth-i], parents[depth-i]) {
			return false
		}
	}
	return true
}
