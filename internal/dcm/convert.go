package dcm

import (
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-deidentifier/internal/record"
)

// FromDicom converts a parsed dataset (file meta elements included) into
// a record tree.
func FromDicom(ds dicom.Dataset) (record.Dataset, error) {
	return fromElements(ds.Elements)
}

func fromElements(elems []*dicom.Element) (record.Dataset, error) {
	var out record.Dataset
	for _, e := range elems {
		conv, err := fromElement(e)
		if err != nil {
			return record.Dataset{}, err
		}
		out.Add(conv)
	}
	return out, nil
}

func fromElement(e *dicom.Element) (*record.Element, error) {
	out := &record.Element{Tag: e.Tag, VR: e.RawValueRepresentation}
	if e.Value == nil {
		out.Value = record.Strings(nil)
		return out, nil
	}
	switch e.Value.ValueType() {
	case dicom.Strings:
		out.Value = record.Strings(e.Value.GetValue().([]string))
	case dicom.Ints:
		out.Value = record.Ints(e.Value.GetValue().([]int))
	case dicom.Floats:
		out.Value = record.Floats(e.Value.GetValue().([]float64))
	case dicom.Bytes:
		out.Value = record.Bytes(e.Value.GetValue().([]byte))
	case dicom.PixelData:
		out.Value = record.Pixels{Info: e.Value.GetValue().(dicom.PixelDataInfo)}
	case dicom.Sequences:
		items, ok := e.Value.GetValue().([]*dicom.SequenceItemValue)
		if !ok {
			return nil, fmt.Errorf("unexpected sequence value in tag %s", e.Tag)
		}
		seq := make(record.Sequence, 0, len(items))
		for _, item := range items {
			itemElems, ok := item.GetValue().([]*dicom.Element)
			if !ok {
				return nil, fmt.Errorf("unexpected sequence item in tag %s", e.Tag)
			}
			child, err := fromElements(itemElems)
			if err != nil {
				return nil, err
			}
			seq = append(seq, &child)
		}
		out.Value = seq
	default:
		return nil, fmt.Errorf("unsupported value type %v in tag %s", e.Value.ValueType(), e.Tag)
	}
	return out, nil
}

// ToDicom converts a record tree back into a library dataset for writing.
func ToDicom(ds record.Dataset) (dicom.Dataset, error) {
	elems, err := toElements(ds)
	if err != nil {
		return dicom.Dataset{}, err
	}
	return dicom.Dataset{Elements: elems}, nil
}

func toElements(ds record.Dataset) ([]*dicom.Element, error) {
	out := make([]*dicom.Element, 0, len(ds.Elements))
	for _, e := range ds.Elements {
		conv, err := toElement(e)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}

func toElement(e *record.Element) (*dicom.Element, error) {
	var data any
	switch v := e.Value.(type) {
	case record.Strings:
		data = []string(v)
	case record.Ints:
		data = []int(v)
	case record.Floats:
		data = []float64(v)
	case record.Bytes:
		data = []byte(v)
	case record.Pixels:
		data = v.Info
	case record.Sequence:
		items := make([][]*dicom.Element, 0, len(v))
		for _, item := range v {
			itemElems, err := toElements(*item)
			if err != nil {
				return nil, err
			}
			items = append(items, itemElems)
		}
		data = items
	case nil:
		data = []string(nil)
	default:
		return nil, fmt.Errorf("unsupported value in tag %s", e.Tag)
	}
	value, err := dicom.NewValue(data)
	if err != nil {
		return nil, fmt.Errorf("could not create value for tag %s: %w", e.Tag, err)
	}
	return &dicom.Element{
		Tag:                    e.Tag,
		ValueRepresentation:    tag.GetVRKind(e.Tag, e.VR),
		RawValueRepresentation: e.VR,
		Value:                  value,
	}, nil
}
