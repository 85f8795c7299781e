// Package record holds the in-memory element tree of one DICOM record.
// The engine mutates this tree in place; the DICOM wire codec lives in
// internal/dcm.
package record

import (
	"fmt"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// Dataset is one nesting level of a record: an ordered list of data
// elements. The top-level dataset is the record itself; nested datasets
// are the items of sequence elements.
type Dataset struct {
	Elements []*Element
}

// Element is a single data element.
type Element struct {
	Tag   tag.Tag
	VR    string
	Value Value
}

// Kind returns the behavioral kind of the element's value representation.
func (e *Element) Kind() Kind { return VRKind(e.VR) }

// IsEmpty reports whether the element holds no usable value.
func (e *Element) IsEmpty() bool { return e.Value == nil || e.Value.IsEmpty() }

// Strings returns the element's values rendered as strings, or nil for
// binary, sequence and pixel values.
func (e *Element) Strings() []string {
	if e.Value == nil {
		return nil
	}
	return StringValues(e.Value)
}

// FirstString returns the first string value, or "".
func (e *Element) FirstString() string {
	if vals := e.Strings(); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// SetStrings replaces the element's values. Valid only for elements whose
// value representation stores strings.
func (e *Element) SetStrings(values []string) {
	e.Value = Strings(values)
}

// Clear empties the element's value, keeping its value representation.
func (e *Element) Clear() {
	switch e.Value.(type) {
	case Ints:
		e.Value = Ints(nil)
	case Floats:
		e.Value = Floats(nil)
	case Bytes:
		e.Value = Bytes(nil)
	case Sequence:
		e.Value = Sequence(nil)
	default:
		e.Value = Strings(nil)
	}
}

// Items returns the child datasets of a sequence element, or nil.
func (e *Element) Items() []*Dataset {
	if seq, ok := e.Value.(Sequence); ok {
		return seq
	}
	return nil
}

// TagHex renders the element tag as 8 uppercase hexadecimal digits.
func (e *Element) TagHex() string {
	return fmt.Sprintf("%04X%04X", e.Tag.Group, e.Tag.Element)
}

// Find returns the first element with the given tag, or nil.
func (ds *Dataset) Find(t tag.Tag) *Element {
	for _, e := range ds.Elements {
		if e.Tag == t {
			return e
		}
	}
	return nil
}

// FindString returns the first string value of the element with the given
// tag, or "" if the element is absent.
func (ds *Dataset) FindString(t tag.Tag) string {
	if e := ds.Find(t); e != nil {
		return e.FirstString()
	}
	return ""
}

// Add appends an element to the dataset.
func (ds *Dataset) Add(e *Element) {
	ds.Elements = append(ds.Elements, e)
}

// RemoveElement removes the given element (by identity) from the dataset.
func (ds *Dataset) RemoveElement(e *Element) {
	for i, cur := range ds.Elements {
		if cur == e {
			ds.Elements = append(ds.Elements[:i], ds.Elements[i+1:]...)
			return
		}
	}
}

// PrivateCreator returns the value of the private-creator element that
// disambiguates a private element: the sibling (gggg,00bb) element where
// bb is the high byte of the element number. Returns "" when there is no
// creator element.
func (ds *Dataset) PrivateCreator(e *Element) string {
	block := e.Tag.Element >> 8
	if block == 0 {
		return ""
	}
	creator := ds.Find(tag.Tag{Group: e.Tag.Group, Element: block})
	if creator == nil {
		return ""
	}
	return creator.FirstString()
}

// WalkFunc receives, for every element at every depth, the ancestor chain
// (outermost element first, the visited element last) and the dataset
// stack (parents[i] contains chain[i]).
type WalkFunc func(chain []*Element, parents []*Dataset) error

// Walk visits every element of the dataset depth-first in document order,
// descending into sequence items.
func (ds *Dataset) Walk(fn WalkFunc) error {
	return ds.walk(nil, nil, fn)
}

func (ds *Dataset) walk(chain []*Element, parents []*Dataset, fn WalkFunc) error {
	for _, e := range ds.Elements {
		// Copied so that callers may retain the chain beyond the visit.
		elemChain := make([]*Element, len(chain)+1)
		copy(elemChain, chain)
		elemChain[len(chain)] = e
		elemParents := make([]*Dataset, len(parents)+1)
		copy(elemParents, parents)
		elemParents[len(parents)] = ds
		if err := fn(elemChain, elemParents); err != nil {
			return err
		}
		for _, item := range e.Items() {
			if err := item.walk(elemChain, elemParents, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// PathHex renders an ancestor chain as a dotted list of hexadecimal tags,
// e.g. "00081140.00081155".
func PathHex(chain []*Element) string {
	out := ""
	for i, e := range chain {
		if i > 0 {
			out += "."
		}
		out += e.TagHex()
	}
	return out
}
