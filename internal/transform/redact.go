package transform

import (
	"context"
	"fmt"

	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-deidentifier/internal/record"
)

// Box is a pixel rectangle to black out. Left and Top are inclusive,
// Right and Bottom exclusive, in image coordinates.
type Box struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// OCRClient locates burned-in text in a record's pixel data. The engine
// itself performs no recognition; the client is an external service.
type OCRClient interface {
	FindTextBoxes(ctx context.Context, ds *record.Dataset) ([]Box, error)
}

// RemoveBurnedInAnnotations blacks out rectangles of the pixel data,
// either the configured boxes or boxes located by the OCR client. The
// record must hold native (uncompressed) pixel data; the caller is
// responsible for transcoding compressed records first.
type RemoveBurnedInAnnotations struct {
	UseOCR bool
	Boxes  []Box
}

func (t *RemoveBurnedInAnnotations) Name() string { return "RemoveBurnedInAnnotations" }

func (t *RemoveBurnedInAnnotations) apply(x *exec) error {
	boxes := t.Boxes
	if t.UseOCR {
		if x.env.OCR == nil {
			return fmt.Errorf("OCR client is not configured")
		}
		found, err := x.env.OCR.FindTextBoxes(x.ctx, &x.file.Dataset)
		if err != nil {
			return fmt.Errorf("could not detect text: %w", err)
		}
		boxes = found
	}
	if len(boxes) == 0 {
		x.result.logf(t.Name(), "Boxes=0")
		return nil
	}
	if err := maskBoxes(&x.file.Dataset, boxes); err != nil {
		return err
	}
	x.result.logf(t.Name(), "Boxes=%d", len(boxes))
	return nil
}

// maskBoxes zeroes every sample of every pixel inside the boxes, in every
// frame. Boxes are clipped to the frame; a box entirely outside is a no-op.
func maskBoxes(ds *record.Dataset, boxes []Box) error {
	elem := ds.Find(tag.PixelData)
	if elem == nil {
		return fmt.Errorf("record has no pixel data")
	}
	pix, ok := elem.Value.(record.Pixels)
	if !ok {
		return fmt.Errorf("pixel data was not decoded")
	}
	if pix.Info.IsEncapsulated || len(pix.Info.Frames) == 0 {
		return fmt.Errorf("pixel data is compressed, transcode first")
	}

	rows := intOf(ds, tag.Rows)
	cols := intOf(ds, tag.Columns)
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("record has invalid dimensions %dx%d", rows, cols)
	}

	for _, f := range pix.Info.Frames {
		// Data is [][]int where the outer index is the pixel (row-major)
		// and the inner index is the sample.
		data := f.NativeData.Data
		if data == nil {
			return fmt.Errorf("frame has no native data")
		}
		for _, box := range boxes {
			left := clamp(box.Left, 0, cols)
			right := clamp(box.Right, 0, cols)
			top := clamp(box.Top, 0, rows)
			bottom := clamp(box.Bottom, 0, rows)
			for y := top; y < bottom; y++ {
				for px := left; px < right; px++ {
					idx := y*cols + px
					if idx >= len(data) {
						continue
					}
					for s := range data[idx] {
						data[idx][s] = 0
					}
				}
			}
		}
	}
	return nil
}

// intOf returns the first value of an integer element, or 0.
func intOf(ds *record.Dataset, t tag.Tag) int {
	e := ds.Find(t)
	if e == nil {
		return 0
	}
	if ints, ok := e.Value.(record.Ints); ok && len(ints) > 0 {
		return ints[0]
	}
	return 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
