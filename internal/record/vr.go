package record

// Kind classifies a value representation by the behavior it requires from
// the engine: how values are parsed, compared and rewritten.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindTime
	KindDateTime
	KindUID
	KindInt
	KindFloat
	KindBytes
	KindSequence
)

// vrKinds is the closed catalog of standard value representations. The
// catalog is fixed by the DICOM standard; unknown codes are rejected at
// configuration-compile time.
var vrKinds = map[string]Kind{
	"AE": KindText,
	"AS": KindText,
	"AT": KindBytes,
	"CS": KindText,
	"DA": KindDate,
	"DS": KindText,
	"DT": KindDateTime,
	"FL": KindFloat,
	"FD": KindFloat,
	"IS": KindText,
	"LO": KindText,
	"LT": KindText,
	"OB": KindBytes,
	"OD": KindBytes,
	"OF": KindBytes,
	"OL": KindBytes,
	"OV": KindBytes,
	"OW": KindBytes,
	"PN": KindText,
	"SH": KindText,
	"SL": KindInt,
	"SQ": KindSequence,
	"SS": KindInt,
	"ST": KindText,
	"SV": KindInt,
	"TM": KindTime,
	"UC": KindText,
	"UI": KindUID,
	"UL": KindInt,
	"UN": KindBytes,
	"UR": KindText,
	"US": KindInt,
	"UT": KindText,
	"UV": KindInt,
}

// KnownVR reports whether code is a standard value representation.
func KnownVR(code string) bool {
	_, ok := vrKinds[code]
	return ok
}

// VRKind returns the behavioral kind of a value representation. Unknown
// codes fall back to KindBytes, which is the safe no-op classification;
// configuration compilation rejects unknown codes before they reach here.
func VRKind(code string) Kind {
	if k, ok := vrKinds[code]; ok {
		return k
	}
	return KindBytes
}
