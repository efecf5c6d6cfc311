package epsilon

import (
	"encoding/binary"

	"go.uber.org/zap"
)

// HeaderSize is the byte length of the header preceding every payload:
// the shape fingerprint followed by the alignment fingerprint, both uint64
// in native byte order.
const HeaderSize = 16

// Header is the decoded stream header.
type Header struct {
	Shape uint64
	Align uint64
}

func encodeHeader(buf []byte, h Header) {
	binary.NativeEndian.PutUint64(buf[0:], h.Shape)
	binary.NativeEndian.PutUint64(buf[8:], h.Align)
}

// ParseHeader decodes the header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, truncatedErr(HeaderSize, len(data))
	}
	return Header{
		Shape: binary.NativeEndian.Uint64(data[0:]),
		Align: binary.NativeEndian.Uint64(data[8:]),
	}, nil
}

// verify compares h against the fingerprints expected for d.
func (e *Engine) verify(d *descriptor, h Header) error {
	shape, align := d.fingerprints()
	if h.Shape != shape {
		e.logger().Debug("shape fingerprint mismatch",
			zap.Stringer("type", d.typ), zap.Uint64("expected", shape), zap.Uint64("found", h.Shape))
		return mismatchErr("shape", d.typ.String(), shape, h.Shape)
	}
	if h.Align != align {
		e.logger().Debug("alignment fingerprint mismatch",
			zap.Stringer("type", d.typ), zap.Uint64("expected", align), zap.Uint64("found", h.Align))
		return mismatchErr("alignment", d.typ.String(), align, h.Align)
	}
	return nil
}
