// Package query implements the boolean condition language used to label
// and filter records.
//
// Grammar:
//
//	expr      := term (("AND" | "OR") term)*
//	term      := "(" expr ")" | condition
//	condition := tagPath operator [value]
//
// Operators: Exists, NotExists, Empty, NotEmpty, StrEquals, StrNotEquals,
// NbEquals, NbNotEquals, NbGreater, NbLess (case-insensitive). Values are
// bare words or double-quoted strings; "*" in a string operand is a
// wildcard. Evaluation is pure: no side effects, no errors — absent data
// and type mismatches have well-defined falsy outcomes.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"dicom-deidentifier/internal/record"
	"dicom-deidentifier/internal/tagpath"
)

// Operator is a condition comparison operator.
type Operator int

const (
	OpExists Operator = iota
	OpNotExists
	OpEmpty
	OpNotEmpty
	OpStrEquals
	OpStrNotEquals
	OpNbEquals
	OpNbNotEquals
	OpNbGreater
	OpNbLess
)

var operatorNames = map[string]Operator{
	"exists":       OpExists,
	"notexists":    OpNotExists,
	"empty":        OpEmpty,
	"notempty":     OpNotEmpty,
	"strequals":    OpStrEquals,
	"strnotequals": OpStrNotEquals,
	"nbequals":     OpNbEquals,
	"nbnotequals":  OpNbNotEquals,
	"nbgreater":    OpNbGreater,
	"nbless":       OpNbLess,
}

func (op Operator) needsValue() bool { return op >= OpStrEquals }

func (op Operator) numeric() bool { return op >= OpNbEquals }

// SyntaxError reports a malformed query expression. It is a configuration
// error: queries compile once at configuration-load time.
type SyntaxError struct {
	Query  string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid query %q: %s", e.Query, e.Reason)
}

// Node is a compiled condition-expression tree, evaluated against a
// record.
type Node interface {
	Eval(ds *record.Dataset) bool
}

type binaryNode struct {
	and         bool
	left, right Node
}

// AND and OR short-circuit left to right.
func (n *binaryNode) Eval(ds *record.Dataset) bool {
	if n.and {
		return n.left.Eval(ds) && n.right.Eval(ds)
	}
	return n.left.Eval(ds) || n.right.Eval(ds)
}

type leafNode struct {
	path    tagpath.Path
	op      Operator
	strVal  string
	strGlob glob.Glob // non-nil when the operand contains "*"
	numVal  float64
}

func (n *leafNode) Eval(ds *record.Dataset) bool {
	locs := n.path.Resolve(ds)
	// Absent data is a well-defined falsy outcome for every operator
	// except NotExists.
	if len(locs) == 0 {
		return n.op == OpNotExists
	}
	switch n.op {
	case OpExists:
		return true
	case OpNotExists:
		return false
	case OpEmpty:
		for _, l := range locs {
			if l.Element.IsEmpty() {
				return true
			}
		}
		return false
	case OpNotEmpty:
		for _, l := range locs {
			if !l.Element.IsEmpty() {
				return true
			}
		}
		return false
	}
	values := collectValues(locs)
	if n.op.numeric() {
		return n.evalNumeric(values)
	}
	return n.evalString(values)
}

func collectValues(locs []tagpath.Location) []string {
	var out []string
	for _, l := range locs {
		out = append(out, l.Element.Strings()...)
	}
	return out
}

func (n *leafNode) matchString(v string) bool {
	if n.strGlob != nil {
		return n.strGlob.Match(strings.ToLower(v))
	}
	return strings.EqualFold(v, n.strVal)
}

func (n *leafNode) evalString(values []string) bool {
	any := false
	for _, v := range values {
		if n.matchString(v) {
			any = true
			break
		}
	}
	if n.op == OpStrNotEquals {
		return len(values) > 0 && !any
	}
	return any
}

// evalNumeric parses each value as a decimal; values that do not parse
// are skipped — a numeric operator applied to non-numeric data evaluates
// to false rather than failing.
func (n *leafNode) evalNumeric(values []string) bool {
	var parsed []float64
	for _, v := range values {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			parsed = append(parsed, f)
		}
	}
	if len(parsed) == 0 {
		return false
	}
	switch n.op {
	case OpNbEquals:
		for _, f := range parsed {
			if f == n.numVal {
				return true
			}
		}
		return false
	case OpNbNotEquals:
		for _, f := range parsed {
			if f == n.numVal {
				return false
			}
		}
		return true
	case OpNbGreater:
		for _, f := range parsed {
			if f > n.numVal {
				return true
			}
		}
		return false
	case OpNbLess:
		for _, f := range parsed {
			if f < n.numVal {
				return true
			}
		}
		return false
	}
	return false
}
