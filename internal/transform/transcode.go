package transform

// Transcode requests re-encoding of the record to another transfer
// syntax. The engine does not re-encode pixel data itself; it records the
// target in the result for the transcoding collaborator.
type Transcode struct {
	TransferSyntax string
}

func (t *Transcode) Name() string { return "Transcode" }

func (t *Transcode) apply(x *exec) error {
	if x.file.TransferSyntax == t.TransferSyntax {
		return nil
	}
	x.result.TargetTransferSyntax = t.TransferSyntax
	x.result.logf(t.Name(), "From=%s To=%s", x.file.TransferSyntax, t.TransferSyntax)
	return nil
}
