package dcm

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// dicomExtensions are common DICOM file extensions.
var dicomExtensions = map[string]bool{
	".dcm":   true,
	".dicom": true,
}

// excludedNames are filenames to skip.
var excludedNames = map[string]bool{
	"DICOMDIR":    true,
	".DS_Store":   true,
	"Thumbs.db":   true,
	"desktop.ini": true,
}

// excludedDirs are directory names to skip entirely.
var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
}

// FindFiles returns the DICOM files under root, sorted. Files without a
// DICOM extension are accepted when they carry the DICM magic bytes.
func FindFiles(root string, recursive bool) ([]string, error) {
	var files []string

	walkFn := func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && (excludedDirs[info.Name()] || !recursive) {
				return filepath.SkipDir
			}
			return nil
		}
		if excludedNames[info.Name()] {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if dicomExtensions[ext] || hasDicomMagicBytes(path) {
			files = append(files, path)
		}
		return nil
	}

	if err := filepath.Walk(root, walkFn); err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// hasDicomMagicBytes checks for "DICM" at byte offset 128.
func hasDicomMagicBytes(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	header := make([]byte, 132)
	if n, err := io.ReadFull(file, header); err != nil || n < 132 {
		return false
	}
	return string(header[128:132]) == "DICM"
}
