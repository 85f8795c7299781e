// Package rules loads, validates and compiles the de-identification
// configuration: labels, categories, the forwarding scope and the
// transformation rules. A compiled snapshot is immutable; hot reload
// swaps whole snapshots atomically.
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StringOrList accepts either a single string or a list of strings.
type StringOrList []string

func (s *StringOrList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var one string
		if err := node.Decode(&one); err != nil {
			return err
		}
		*s = StringOrList{one}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := node.Decode(&many); err != nil {
			return err
		}
		*s = StringOrList(many)
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
}

// Document is the raw configuration file before compilation.
type Document struct {
	Labels          []LabelDef          `yaml:"Labels"`
	Categories      []CategoryDef       `yaml:"Categories"`
	ScopeToForward  ScopeDef            `yaml:"ScopeToForward"`
	Transformations []TransformationDef `yaml:"Transformations"`
}

// LabelDef names a label and its optional record filter. A label with no
// filter (or an empty one) matches every record.
type LabelDef struct {
	Name             string `yaml:"Name"`
	DICOMQueryFilter string `yaml:"DICOMQueryFilter"`
}

// CategoryDef names a set of labels.
type CategoryDef struct {
	Name   string       `yaml:"Name"`
	Labels StringOrList `yaml:"Labels"`
}

// ScopeDef restricts by labels and categories. Exclusions dominate.
type ScopeDef struct {
	Labels           StringOrList `yaml:"Labels"`
	ExceptLabels     StringOrList `yaml:"ExceptLabels"`
	Categories       StringOrList `yaml:"Categories"`
	ExceptCategories StringOrList `yaml:"ExceptCategories"`
}

// TransformationDef is one scoped group of transformation rules.
type TransformationDef struct {
	Scope                     ScopeDef                       `yaml:"Scope"`
	ShiftDateTime             []ShiftDateTimeDef             `yaml:"ShiftDateTime"`
	RandomizeText             []RandomizeTextDef             `yaml:"RandomizeText"`
	RandomizeUID              []RandomizeUIDDef              `yaml:"RandomizeUID"`
	AddTags                   []AddTagDef                    `yaml:"AddTags"`
	DeleteTags                []DeleteTagsDef                `yaml:"DeleteTags"`
	RemoveBurnedInAnnotations []RemoveBurnedInAnnotationsDef `yaml:"RemoveBurnedInAnnotations"`
	Transcode                 string                         `yaml:"Transcode"`
}

// PatternsDef is the target selection shared by pattern-driven rules.
type PatternsDef struct {
	TagPatterns       StringOrList `yaml:"TagPatterns"`
	ExceptTagPatterns StringOrList `yaml:"ExceptTagPatterns"`
}

type ShiftDateTimeDef struct {
	PatternsDef  `yaml:",inline"`
	ShiftBy      int    `yaml:"ShiftBy"`
	ReuseMapping string `yaml:"ReuseMapping"`
}

type RandomizeTextDef struct {
	PatternsDef  `yaml:",inline"`
	Split        string `yaml:"Split"`
	IgnoreCase   bool   `yaml:"IgnoreCase"`
	ReuseMapping string `yaml:"ReuseMapping"`
}

type RandomizeUIDDef struct {
	PatternsDef `yaml:",inline"`
	Prefix      string `yaml:"Prefix"`
}

type AddTagDef struct {
	Tag               string `yaml:"Tag"`
	VR                string `yaml:"VR"`
	Value             string `yaml:"Value"`
	OverwriteIfExists bool   `yaml:"OverwriteIfExists"`
}

type DeleteTagsDef struct {
	PatternsDef `yaml:",inline"`
	Action      string `yaml:"Action"`
}

type RemoveBurnedInAnnotationsDef struct {
	Type           string  `yaml:"Type"`
	BoxCoordinates [][]int `yaml:"BoxCoordinates"`
}

// ParseDocument parses a raw configuration document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	return &doc, nil
}

// LoadFile reads and parses a configuration file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	return ParseDocument(data)
}
