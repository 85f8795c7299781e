package tagpath

import (
	"testing"

	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-deidentifier/internal/record"
)

func strElem(t tag.Tag, vr string, values ...string) *record.Element {
	return &record.Element{Tag: t, VR: vr, Value: record.Strings(values)}
}

func seqElem(t tag.Tag, items ...*record.Dataset) *record.Element {
	return &record.Element{Tag: t, VR: "SQ", Value: record.Sequence(items)}
}

func TestParse(t *testing.T) {
	cases := []struct {
		text string
		tags []tag.Tag
		item []int
	}{
		{
			text: "PatientName",
			tags: []tag.Tag{tag.PatientName},
			item: []int{NoItem},
		},
		{
			text: "00100010",
			tags: []tag.Tag{{Group: 0x0010, Element: 0x0010}},
			item: []int{NoItem},
		},
		{
			text: "ReferencedStudySequence[0].ReferencedSOPInstanceUID",
			tags: []tag.Tag{tag.ReferencedStudySequence, tag.ReferencedSOPInstanceUID},
			item: []int{0, NoItem},
		},
		{
			text: "00081110[%].00081155",
			tags: []tag.Tag{{Group: 0x0008, Element: 0x1110}, {Group: 0x0008, Element: 0x1155}},
			item: []int{AllItems, NoItem},
		},
		{
			// Comma is accepted as a separator.
			text: "ReferencedStudySequence,ReferencedSOPInstanceUID",
			tags: []tag.Tag{tag.ReferencedStudySequence, tag.ReferencedSOPInstanceUID},
			item: []int{NoItem, NoItem},
		},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			p, err := Parse(tc.text)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if len(p.Segments) != len(tc.tags) {
				t.Fatalf("got %d segments, want %d", len(p.Segments), len(tc.tags))
			}
			for i := range tc.tags {
				if p.Segments[i].Tag != tc.tags[i] {
					t.Errorf("segment %d tag: got %v, want %v", i, p.Segments[i].Tag, tc.tags[i])
				}
				if p.Segments[i].Item != tc.item[i] {
					t.Errorf("segment %d item: got %d, want %d", i, p.Segments[i].Item, tc.item[i])
				}
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, text := range []string{
		"",
		"NotARealKeyword",
		"PatientName..PatientID",
		"0010001", // 7 hex digits
		"PatientName[x]",
		// An item index too large for int must not silently become item 0.
		"ReferencedStudySequence[99999999999999999999]",
	} {
		t.Run(text, func(t *testing.T) {
			if _, err := Parse(text); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", text)
			}
		})
	}
}

func nestedRecord() *record.Dataset {
	item0 := &record.Dataset{Elements: []*record.Element{
		strElem(tag.ReferencedSOPInstanceUID, "UI", "1.2.3"),
	}}
	item1 := &record.Dataset{Elements: []*record.Element{
		strElem(tag.ReferencedSOPInstanceUID, "UI", "4.5.6"),
	}}
	return &record.Dataset{Elements: []*record.Element{
		strElem(tag.PatientName, "PN", "DOE^JOHN"),
		seqElem(tag.ReferencedStudySequence, item0, item1),
	}}
}

func TestResolve(t *testing.T) {
	ds := nestedRecord()

	cases := []struct {
		text string
		want []string
	}{
		{"PatientName", []string{"DOE^JOHN"}},
		{"ReferencedStudySequence[%].ReferencedSOPInstanceUID", []string{"1.2.3", "4.5.6"}},
		// No selector fans out over every item too.
		{"ReferencedStudySequence.ReferencedSOPInstanceUID", []string{"1.2.3", "4.5.6"}},
		{"ReferencedStudySequence[1].ReferencedSOPInstanceUID", []string{"4.5.6"}},
		// Misses are not errors: out-of-range item, absent leaf, absent root.
		{"ReferencedStudySequence[5].ReferencedSOPInstanceUID", nil},
		{"ReferencedStudySequence[%].StudyInstanceUID", nil},
		{"AccessionNumber", nil},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			locs := MustParse(tc.text).Resolve(ds)
			var got []string
			for _, l := range locs {
				got = append(got, l.Element.FirstString())
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("value %d: got %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestResolveParents(t *testing.T) {
	ds := nestedRecord()

	parents, err := MustParse("ReferencedStudySequence[%].StudyInstanceUID").ResolveParents(ds)
	if err != nil {
		t.Fatalf("ResolveParents failed: %v", err)
	}
	if len(parents) != 2 {
		t.Fatalf("got %d parents, want 2", len(parents))
	}

	// A single-segment path resolves to the record itself.
	parents, err = MustParse("AccessionNumber").ResolveParents(ds)
	if err != nil {
		t.Fatalf("ResolveParents failed: %v", err)
	}
	if len(parents) != 1 || parents[0] != ds {
		t.Fatalf("single-segment path: got %v", parents)
	}

	// Missing and non-sequence intermediates are errors.
	if _, err := MustParse("RequestAttributesSequence.StudyInstanceUID").ResolveParents(ds); err == nil {
		t.Errorf("missing intermediate: want error")
	}
	if _, err := MustParse("PatientName.StudyInstanceUID").ResolveParents(ds); err == nil {
		t.Errorf("non-sequence intermediate: want error")
	}
	if _, err := MustParse("ReferencedStudySequence[9].StudyInstanceUID").ResolveParents(ds); err == nil {
		t.Errorf("out-of-range item: want error")
	}
}
