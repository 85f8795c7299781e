package transform

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-deidentifier/internal/dcm"
	"dicom-deidentifier/internal/mapping"
	"dicom-deidentifier/internal/record"
	"dicom-deidentifier/internal/tagpath"
	"dicom-deidentifier/internal/tagpattern"
)

func mustPath(text string) tagpath.Path { return tagpath.MustParse(text) }

func strElem(t tag.Tag, vr string, values ...string) *record.Element {
	return &record.Element{Tag: t, VR: vr, Value: record.Strings(values)}
}

func testFile(elems ...*record.Element) *dcm.File {
	return &dcm.File{Dataset: record.Dataset{Elements: elems}}
}

func apply(t *testing.T, step Transformation, f *dcm.File, env Env) *Result {
	t.Helper()
	res, err := NewPipeline([]Transformation{step}).Apply(context.Background(), f, env)
	require.NoError(t, err)
	return res
}

func patterns(texts ...string) []*tagpattern.Pattern {
	out := make([]*tagpattern.Pattern, len(texts))
	for i, text := range texts {
		out[i] = tagpattern.MustCompile(text)
	}
	return out
}

func TestShiftDateTimePreservesIntervals(t *testing.T) {
	f := testFile(
		strElem(tag.PatientBirthDate, "DA", "19700215"),
		strElem(tag.StudyDate, "DA", "19700225"),
		strElem(tag.StudyTime, "TM", "101530"),
	)
	step := &ShiftDateTime{
		Targets: patterns("*/{DA}", "*/{TM}"),
		ShiftBy: 365,
	}
	apply(t, step, f, Env{})

	birth, err := time.Parse("20060102", f.Dataset.FindString(tag.PatientBirthDate))
	require.NoError(t, err)
	study, err := time.Parse("20060102", f.Dataset.FindString(tag.StudyDate))
	require.NoError(t, err)

	// One offset is drawn per run, so the interval between dates survives.
	assert.Equal(t, 10*24*time.Hour, study.Sub(birth))
	original, _ := time.Parse("20060102", "19700225")
	days := int(study.Sub(original).Hours() / 24)
	assert.LessOrEqual(t, days, 365)
	assert.GreaterOrEqual(t, days, -365)

	shifted := f.Dataset.FindString(tag.StudyTime)
	assert.Len(t, shifted, 6)
	assert.NotEqual(t, "", shifted)
}

func TestShiftDateTimeAbsentTagIsNoOp(t *testing.T) {
	f := testFile(strElem(tag.PatientName, "PN", "DOE^JOHN"))
	step := &ShiftDateTime{Targets: patterns("PatientBirthDate"), ShiftBy: 30}
	res := apply(t, step, f, Env{})

	assert.Empty(t, res.Applied)
	assert.Len(t, f.Dataset.Elements, 1)
	assert.Nil(t, f.Dataset.Find(tag.PatientBirthDate))
}

func TestShiftDateTimeUnparsableDateFailsRecord(t *testing.T) {
	f := testFile(strElem(tag.PatientBirthDate, "DA", "not-a-date"))
	step := &ShiftDateTime{Targets: patterns("PatientBirthDate"), ShiftBy: 30}
	_, err := NewPipeline([]Transformation{step}).Apply(context.Background(), f, Env{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ShiftDateTime")
}

func TestShiftDateTimeMappingConsistency(t *testing.T) {
	store := mapping.NewMemoryStore("")
	step := &ShiftDateTime{
		Targets: patterns("StudyDate"),
		ShiftBy: 100,
		Reuse:   ReuseStudy,
	}

	shifted := make([]string, 2)
	for i := range shifted {
		f := testFile(
			strElem(tag.StudyInstanceUID, "UI", "1.2.3"),
			strElem(tag.StudyDate, "DA", "20200101"),
		)
		apply(t, step, f, Env{Store: store})
		shifted[i] = f.Dataset.FindString(tag.StudyDate)
	}
	// Both records of the study carry the same original date, so the
	// committed replacement is reused even though each run draws its own
	// offset.
	assert.Equal(t, shifted[0], shifted[1])
}

var replacementForm = regexp.MustCompile(`^[a-z0-9]{8}$`)

func TestRandomizeTextSegmentGranularity(t *testing.T) {
	store := mapping.NewMemoryStore("")
	step := &RandomizeText{
		Targets:    patterns("PatientName"),
		Split:      "^",
		IgnoreCase: true,
		Reuse:      ReuseAlways,
	}

	first := testFile(strElem(tag.PatientName, "PN", "john^smith"))
	apply(t, step, first, Env{Store: store})
	parts := strings.Split(first.Dataset.FindString(tag.PatientName), "^")
	require.Len(t, parts, 2)
	assert.Regexp(t, replacementForm, parts[0])
	assert.Regexp(t, replacementForm, parts[1])
	assert.NotEqual(t, parts[0], parts[1])

	// The mapping is keyed per lowercased segment: a second record with
	// the segments swapped and upper-cased reuses the same replacements,
	// swapped.
	second := testFile(strElem(tag.PatientName, "PN", "SMITH^John"))
	apply(t, step, second, Env{Store: store})
	swapped := strings.Split(second.Dataset.FindString(tag.PatientName), "^")
	require.Len(t, swapped, 2)
	assert.Equal(t, parts[0], swapped[1])
	assert.Equal(t, parts[1], swapped[0])
}

func TestRandomizeTextKeepsEmptySegments(t *testing.T) {
	store := mapping.NewMemoryStore("")
	step := &RandomizeText{
		Targets: patterns("PatientName"),
		Split:   "^",
		Reuse:   ReuseAlways,
	}
	f := testFile(strElem(tag.PatientName, "PN", "DOE^^JOHN"))
	apply(t, step, f, Env{Store: store})

	parts := strings.Split(f.Dataset.FindString(tag.PatientName), "^")
	require.Len(t, parts, 3)
	assert.Equal(t, "", parts[1])
	assert.Regexp(t, replacementForm, parts[0])
	assert.Regexp(t, replacementForm, parts[2])
}

func TestRandomizeUID(t *testing.T) {
	store := mapping.NewMemoryStore("")
	step := &RandomizeUID{Targets: patterns("*/{UI}")}

	f := testFile(
		strElem(tag.MediaStorageSOPInstanceUID, "UI", "1.2.3.4"),
		strElem(tag.SOPInstanceUID, "UI", "1.2.3.4"),
		strElem(tag.StudyInstanceUID, "UI", "1.2.3"),
		strElem(tag.PatientName, "PN", "DOE^JOHN"),
	)
	apply(t, step, f, Env{Store: store})

	sop := f.Dataset.FindString(tag.SOPInstanceUID)
	assert.True(t, strings.HasPrefix(sop, "2.25."), "got %q", sop)
	assert.LessOrEqual(t, len(sop), 64)
	assert.NotEqual(t, "1.2.3.4", sop)
	// The file meta copy follows the data-set SOPInstanceUID.
	assert.Equal(t, sop, f.Dataset.FindString(tag.MediaStorageSOPInstanceUID))
	// Non-UID elements are untouched even when a pattern matches them.
	assert.Equal(t, "DOE^JOHN", f.Dataset.FindString(tag.PatientName))

	// Same original in another record maps to the same replacement.
	f2 := testFile(strElem(tag.StudyInstanceUID, "UI", "1.2.3"))
	apply(t, step, f2, Env{Store: store})
	assert.Equal(t,
		f.Dataset.FindString(tag.StudyInstanceUID),
		f2.Dataset.FindString(tag.StudyInstanceUID))
}

func TestFileMetaStaysUntransformed(t *testing.T) {
	store := mapping.NewMemoryStore("")
	f := testFile(
		strElem(tag.MediaStorageSOPClassUID, "UI", "1.2.840.10008.5.1.4.1.1.2"),
		strElem(tag.TransferSyntaxUID, "UI", "1.2.840.10008.1.2.1"),
		strElem(tag.SOPClassUID, "UI", "1.2.840.10008.5.1.4.1.1.2"),
		strElem(tag.SOPInstanceUID, "UI", "1.2.3.4"),
	)
	apply(t, &RandomizeUID{Targets: patterns("*/{UI}")}, f, Env{Store: store})

	// Group 0002 declares the file's own encoding: the UID rule must leave
	// it alone while still rewriting data-set UIDs.
	assert.Equal(t, "1.2.840.10008.1.2.1", f.Dataset.FindString(tag.TransferSyntaxUID))
	assert.Equal(t, "1.2.840.10008.5.1.4.1.1.2", f.Dataset.FindString(tag.MediaStorageSOPClassUID))
	assert.NotEqual(t, "1.2.3.4", f.Dataset.FindString(tag.SOPInstanceUID))

	// DeleteTags must not strip the transfer syntax either.
	apply(t, &DeleteTags{Targets: patterns("*/{UI}"), Action: ActionRemove}, f, Env{})
	assert.Equal(t, "1.2.840.10008.1.2.1", f.Dataset.FindString(tag.TransferSyntaxUID))
	assert.Nil(t, f.Dataset.Find(tag.SOPInstanceUID))
}

func TestRandomizeUIDPrefix(t *testing.T) {
	uid, err := NewUID("1.2.826.0.1.")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uid, "1.2.826.0.1."))
	assert.LessOrEqual(t, len(uid), 64)
}

func TestAddTags(t *testing.T) {
	item := &record.Dataset{Elements: []*record.Element{
		strElem(tag.ReferencedSOPInstanceUID, "UI", "1.2.3"),
	}}
	f := testFile(
		strElem(tag.PatientName, "PN", "DOE^JOHN"),
		&record.Element{Tag: tag.ReferencedStudySequence, VR: "SQ", Value: record.Sequence{item}},
	)

	// New top-level tag.
	apply(t, &AddTags{Path: mustPath("PatientIdentityRemoved"), VR: "CS", Value: "YES"}, f, Env{})
	assert.Equal(t, "YES", f.Dataset.FindString(tag.PatientIdentityRemoved))

	// Existing tag without overwrite is untouched.
	apply(t, &AddTags{Path: mustPath("PatientName"), VR: "LO", Value: "ANON"}, f, Env{})
	assert.Equal(t, "DOE^JOHN", f.Dataset.FindString(tag.PatientName))
	assert.Equal(t, "PN", f.Dataset.Find(tag.PatientName).VR)

	// Overwrite replaces value and value representation.
	apply(t, &AddTags{Path: mustPath("PatientName"), VR: "LO", Value: "ANON", OverwriteIfExists: true}, f, Env{})
	assert.Equal(t, "ANON", f.Dataset.FindString(tag.PatientName))
	assert.Equal(t, "LO", f.Dataset.Find(tag.PatientName).VR)

	// Nested target inside a sequence item.
	apply(t, &AddTags{Path: mustPath("ReferencedStudySequence[%].StudyInstanceUID"), VR: "UI", Value: "1.2.9"}, f, Env{})
	assert.Equal(t, "1.2.9", item.FindString(tag.StudyInstanceUID))

	// A missing intermediate sequence is an error, not implicit creation.
	step := &AddTags{Path: mustPath("RequestAttributesSequence.StudyInstanceUID"), VR: "UI", Value: "1"}
	_, err := NewPipeline([]Transformation{step}).Apply(context.Background(), f, Env{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AddTags")
}

func TestDeleteTags(t *testing.T) {
	item := &record.Dataset{Elements: []*record.Element{
		strElem(tag.PatientName, "PN", "NESTED"),
		strElem(tag.ReferencedSOPInstanceUID, "UI", "1.2.3"),
	}}
	f := testFile(
		strElem(tag.PatientName, "PN", "DOE^JOHN"),
		strElem(tag.PatientID, "LO", "PID-1"),
		&record.Element{Tag: tag.ReferencedStudySequence, VR: "SQ", Value: record.Sequence{item}},
	)

	// Remove deletes matches at every depth, exceptions preserved.
	res := apply(t, &DeleteTags{
		Targets: patterns("*/Patient*"),
		Excepts: patterns("PatientID"),
		Action:  ActionRemove,
	}, f, Env{})

	assert.Nil(t, f.Dataset.Find(tag.PatientName))
	assert.Nil(t, item.Find(tag.PatientName))
	assert.NotNil(t, f.Dataset.Find(tag.PatientID))
	assert.Len(t, res.Applied["DeleteTags"], 2)

	// Empty keeps the element but clears the value.
	apply(t, &DeleteTags{Targets: patterns("PatientID"), Action: ActionEmpty}, f, Env{})
	pid := f.Dataset.Find(tag.PatientID)
	require.NotNil(t, pid)
	assert.True(t, pid.IsEmpty())
	assert.Equal(t, "LO", pid.VR)
}

func pixelFile(rows, cols int, fill int) *dcm.File {
	data := make([][]int, rows*cols)
	for i := range data {
		data[i] = []int{fill}
	}
	info := dicom.PixelDataInfo{
		Frames: []*frame.Frame{{
			NativeData: frame.NativeFrame{
				BitsPerSample: 8,
				Rows:          rows,
				Cols:          cols,
				Data:          data,
			},
		}},
	}
	return testFile(
		&record.Element{Tag: tag.Rows, VR: "US", Value: record.Ints{rows}},
		&record.Element{Tag: tag.Columns, VR: "US", Value: record.Ints{cols}},
		&record.Element{Tag: tag.PixelData, VR: "OW", Value: record.Pixels{Info: info}},
	)
}

func TestManualRedactionZeroesBoxes(t *testing.T) {
	f := pixelFile(4, 4, 200)
	step := &RemoveBurnedInAnnotations{Boxes: []Box{{Left: 1, Top: 1, Right: 3, Bottom: 3}}}
	apply(t, step, f, Env{})

	pix := f.Dataset.Find(tag.PixelData).Value.(record.Pixels)
	data := pix.Info.Frames[0].NativeData.Data
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			inside := x >= 1 && x < 3 && y >= 1 && y < 3
			got := data[y*4+x][0]
			if inside {
				assert.Equal(t, 0, got, "pixel (%d,%d)", x, y)
			} else {
				assert.Equal(t, 200, got, "pixel (%d,%d)", x, y)
			}
		}
	}
}

func TestManualRedactionClipsOversizedBoxes(t *testing.T) {
	f := pixelFile(2, 2, 50)
	step := &RemoveBurnedInAnnotations{Boxes: []Box{{Left: -5, Top: -5, Right: 100, Bottom: 100}}}
	apply(t, step, f, Env{})

	pix := f.Dataset.Find(tag.PixelData).Value.(record.Pixels)
	for _, samples := range pix.Info.Frames[0].NativeData.Data {
		assert.Equal(t, 0, samples[0])
	}
}

func TestRedactionFailures(t *testing.T) {
	// No pixel data at all.
	f := testFile(strElem(tag.PatientName, "PN", "X"))
	step := &RemoveBurnedInAnnotations{Boxes: []Box{{Left: 0, Top: 0, Right: 1, Bottom: 1}}}
	_, err := NewPipeline([]Transformation{step}).Apply(context.Background(), f, Env{})
	require.Error(t, err)

	// Encapsulated pixel data must be transcoded before redaction.
	f = testFile(
		&record.Element{Tag: tag.Rows, VR: "US", Value: record.Ints{2}},
		&record.Element{Tag: tag.Columns, VR: "US", Value: record.Ints{2}},
		&record.Element{Tag: tag.PixelData, VR: "OB", Value: record.Pixels{
			Info: dicom.PixelDataInfo{IsEncapsulated: true},
		}},
	)
	_, err = NewPipeline([]Transformation{step}).Apply(context.Background(), f, Env{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcode")
}

type stubOCR struct {
	boxes []Box
}

func (s *stubOCR) FindTextBoxes(_ context.Context, _ *record.Dataset) ([]Box, error) {
	return s.boxes, nil
}

func TestOCRRedactionUsesClientBoxes(t *testing.T) {
	f := pixelFile(2, 2, 90)
	step := &RemoveBurnedInAnnotations{UseOCR: true}
	env := Env{OCR: &stubOCR{boxes: []Box{{Left: 0, Top: 0, Right: 1, Bottom: 1}}}}
	apply(t, step, f, env)

	pix := f.Dataset.Find(tag.PixelData).Value.(record.Pixels)
	data := pix.Info.Frames[0].NativeData.Data
	assert.Equal(t, 0, data[0][0])
	assert.Equal(t, 90, data[1][0])

	// Without a client, OCR redaction cannot run.
	_, err := NewPipeline([]Transformation{step}).Apply(context.Background(), pixelFile(2, 2, 90), Env{})
	require.Error(t, err)
}

func TestTranscode(t *testing.T) {
	f := testFile()
	f.TransferSyntax = "1.2.840.10008.1.2.1"

	res := apply(t, &Transcode{TransferSyntax: "1.2.840.10008.1.2.4.70"}, f, Env{})
	assert.Equal(t, "1.2.840.10008.1.2.4.70", res.TargetTransferSyntax)

	// Already in the target syntax: nothing to request.
	res = apply(t, &Transcode{TransferSyntax: "1.2.840.10008.1.2.1"}, f, Env{})
	assert.Equal(t, "", res.TargetTransferSyntax)
}

func TestPipelineNeeds(t *testing.T) {
	p := NewPipeline([]Transformation{
		&DeleteTags{Targets: patterns("PatientName"), Action: ActionRemove},
	})
	assert.False(t, p.NeedsPixelData)
	assert.False(t, p.NeedsOCR)

	p = NewPipeline([]Transformation{
		&RemoveBurnedInAnnotations{Boxes: []Box{{Left: 0, Top: 0, Right: 1, Bottom: 1}}},
	})
	assert.True(t, p.NeedsPixelData)
	assert.False(t, p.NeedsOCR)

	p = NewPipeline([]Transformation{&RemoveBurnedInAnnotations{UseOCR: true}})
	assert.True(t, p.NeedsPixelData)
	assert.True(t, p.NeedsOCR)
}

func TestContextForCapturesScopeIdentifiers(t *testing.T) {
	f := testFile(
		strElem(tag.PatientID, "LO", "PID-1"),
		strElem(tag.StudyInstanceUID, "UI", "1.2"),
		strElem(tag.SeriesInstanceUID, "UI", "1.2.3"),
	)
	rctx := ContextFor(&f.Dataset)
	assert.Equal(t, "PID-1", rctx.PatientID)
	assert.Equal(t, "1.2", rctx.StudyInstanceUID)
	assert.Equal(t, "1.2.3", rctx.SeriesInstanceUID)
}
