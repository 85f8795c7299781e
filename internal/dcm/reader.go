// Package dcm reads and writes DICOM files, converting between the wire
// representation parsed by github.com/suyashkumar/dicom and the record
// tree the engine operates on.
package dcm

import (
	"fmt"
	"os"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-deidentifier/internal/record"
)

// File is one decoded DICOM file.
type File struct {
	Dataset        record.Dataset
	TransferSyntax string
	Path           string
}

// Read reads a DICOM file and converts it to a record tree.
func Read(path string) (*File, error) {
	return read(path, false)
}

// ReadMetadataOnly reads a DICOM file skipping pixel data.
func ReadMetadataOnly(path string) (*File, error) {
	return read(path, true)
}

func read(path string, skipPixels bool) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat file: %w", err)
	}

	var opts []dicom.ParseOption
	if skipPixels {
		opts = append(opts, dicom.SkipPixelData())
	}
	ds, err := dicom.Parse(file, info.Size(), nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not parse DICOM: %w", err)
	}

	rec, err := FromDicom(ds)
	if err != nil {
		return nil, fmt.Errorf("could not convert DICOM: %w", err)
	}

	return &File{
		Dataset:        rec,
		TransferSyntax: rec.FindString(tag.TransferSyntaxUID),
		Path:           path,
	}, nil
}
