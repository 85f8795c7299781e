package transform

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"dicom-deidentifier/internal/mapping"
	"dicom-deidentifier/internal/record"
	"dicom-deidentifier/internal/tagpattern"
)

// ShiftDateTime shifts every matching DA, TM and DT value by a random
// offset. The offset is drawn once per record, so all values shifted by
// the same rule keep their relative ordering; a consistency scope instead
// pins the shifted result of each original value across records.
type ShiftDateTime struct {
	Targets []*tagpattern.Pattern
	Excepts []*tagpattern.Pattern

	// ShiftBy bounds the random offset: days in [-ShiftBy, +ShiftBy] for
	// dates, seconds in the same range for times and date-times.
	ShiftBy int
	Reuse   Reuse
}

func (t *ShiftDateTime) Name() string { return "ShiftDateTime" }

func (t *ShiftDateTime) apply(x *exec) error {
	offset, err := randomOffset(t.ShiftBy)
	if err != nil {
		return fmt.Errorf("could not draw offset: %w", err)
	}

	for _, m := range tagpattern.Enumerate(&x.file.Dataset, t.Targets, t.Excepts) {
		kind := m.Element.Kind()
		if kind != record.KindDate && kind != record.KindTime && kind != record.KindDateTime {
			continue
		}
		if m.Element.IsEmpty() {
			continue
		}

		values := m.Element.Strings()
		for i, old := range values {
			if old == "" {
				continue
			}
			shifted, err := shiftValue(kind, old, offset)
			if err != nil {
				return fmt.Errorf("tag %s: %w", m.Path, err)
			}
			final, err := x.mapped(t.Reuse, mapping.KindDateTime, old, func() (string, error) {
				return shifted, nil
			})
			if err != nil {
				return fmt.Errorf("tag %s: %w", m.Path, err)
			}
			values[i] = final
			x.result.logf(t.Name(), "Tag=%s OldValue=%s NewValue=%s", m.Path, old, final)
		}
		m.Element.SetStrings(values)
	}
	return nil
}

const (
	dateLayout     = "20060102"
	timeLayout     = "150405"
	dateTimeLayout = "20060102150405"
)

// shiftValue shifts one DA, TM or DT value. Fractional seconds and
// time-zone suffixes are not preserved; the shifted value is truncated to
// the plain form.
func shiftValue(kind record.Kind, value string, offset int) (string, error) {
	switch kind {
	case record.KindDate:
		t, err := time.Parse(dateLayout, value)
		if err != nil {
			return "", fmt.Errorf("could not parse date %q: %w", value, err)
		}
		return t.AddDate(0, 0, offset).Format(dateLayout), nil
	case record.KindTime:
		if len(value) < len(timeLayout) {
			return "", fmt.Errorf("could not parse time %q: too short", value)
		}
		t, err := time.Parse(timeLayout, value[:len(timeLayout)])
		if err != nil {
			return "", fmt.Errorf("could not parse time %q: %w", value, err)
		}
		return t.Add(time.Duration(offset) * time.Second).Format(timeLayout), nil
	case record.KindDateTime:
		if len(value) < len(dateTimeLayout) {
			return "", fmt.Errorf("could not parse date-time %q: too short", value)
		}
		t, err := time.Parse(dateTimeLayout, value[:len(dateTimeLayout)])
		if err != nil {
			return "", fmt.Errorf("could not parse date-time %q: %w", value, err)
		}
		return t.Add(time.Duration(offset) * time.Second).Format(dateTimeLayout), nil
	}
	return "", fmt.Errorf("value representation is not a date or time")
}

// randomOffset draws a uniform offset in [-bound, +bound].
func randomOffset(bound int) (int, error) {
	if bound <= 0 {
		return 0, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(2*bound+1)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()) - bound, nil
}
