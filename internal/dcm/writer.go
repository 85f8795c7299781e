package dcm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/suyashkumar/dicom"
)

// Write writes the record to a DICOM file.
func Write(f *File, outputPath string) error {
	ds, err := ToDicom(f.Dataset)
	if err != nil {
		return fmt.Errorf("could not convert record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	defer file.Close()

	// Write with relaxed verification (many real-world DICOM files don't
	// strictly follow VR specifications).
	if err := dicom.Write(file, ds,
		dicom.SkipVRVerification(),
		dicom.SkipValueTypeVerification(),
		dicom.DefaultMissingTransferSyntax(),
	); err != nil {
		return fmt.Errorf("could not write DICOM: %w", err)
	}

	return nil
}
