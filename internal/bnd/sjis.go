package bnd

import (
	"bytes"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// decodeShiftJIS decodes raw Shift-JIS bytes to a UTF-8 Go string. Malformed
// sequences are not fatal on extraction — the data is mostly ASCII in
// practice — so decoding falls back to a lossy, byte-preserving decode
// instead of aborting.
func decodeShiftJIS(raw []byte) string {
	decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), raw)
	if err != nil {
		return lossyDecodeShiftJIS(raw)
	}
	return string(decoded)
}

// lossyDecodeShiftJIS decodes byte-by-byte, substituting the Unicode
// replacement character for any byte that doesn't decode on its own as a
// single-byte Shift-JIS character (ASCII or half-width katakana), so a
// single malformed multi-byte sequence doesn't lose the rest of an
// otherwise-readable path.
func lossyDecodeShiftJIS(raw []byte) string {
	var out []byte
	for len(raw) > 0 {
		decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), raw[:1])
		if err != nil || len(decoded) == 0 {
			out = append(out, []byte("�")...)
			raw = raw[1:]
			continue
		}
		out = append(out, decoded...)
		raw = raw[1:]
	}
	return string(out)
}

// encodeShiftJIS encodes a UTF-8 Go string back to Shift-JIS bytes for
// rebuilding an archive. Unlike decoding, this must succeed exactly —
// rebuilt archives need byte-identical strings blocks — so encoding
// errors are surfaced rather than substituted.
func encodeShiftJIS(s string) ([]byte, error) {
	encoded, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(s))
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

// nulTerminated appends a single NUL byte after data.
func nulTerminated(data []byte) []byte {
	return append(bytes.Clone(data), 0)
}
