// Package typeprobe guesses a file's extension from its first four bytes.
// It is used only when a file's real name is unknown (a hex-named external
// entry, or a decompressed payload with no extension of its own); the
// magic table is closed and callers must not invent extensions beyond it.
package typeprobe

// unknownExtension is returned when no known magic matches.
const unknownExtension = "xxx"

// magicEntry pairs a four-byte signature with the label and extension it
// identifies.
type magicEntry struct {
	magic [4]byte
	label string
	ext   string
}

// table is the closed set of recognized container magics: the archive
// container formats this module codecs, plus four game-specific tabular
// formats recognized by name only, without parsing any of their contents.
var table = []magicEntry{
	{[4]byte{'B', 'D', 'F', '3'}, "external-bulk", "bdt"},
	{[4]byte{'B', 'H', 'D', '5'}, "external-header", "bhd5"},
	{[4]byte{'B', 'N', 'D', '3'}, "standalone-archive", "bnd"},
	{[4]byte{'B', 'N', 'D', '4'}, "standalone-archive", "bnd"},
	{[4]byte{'D', 'C', 'X', 0x00}, "compressed-package", "dcx"},
	{[4]byte{'T', 'A', 'E', ' '}, "standalone-inner", "tae"},
	{[4]byte{'F', 'E', 'V', ' '}, "fmod-event", "fev"},
	{[4]byte{'R', 'I', 'F', 'F'}, "fmod-sample-bank", "fsb"},
	{[4]byte{'D', 'F', 'P', 'N'}, "game-table", "nfd"},
	{[4]byte{'E', 'D', 'F', 0x00}, "game-table", "emedf"},
	{[4]byte{'E', 'L', 'D', 0x00}, "game-table", "emeld"},
	{[4]byte{'E', 'V', 'D', 0x00}, "game-table", "evd"},
}

// Probe returns the extension (without a leading dot) identified by the
// first four bytes of data, or "xxx" if no known magic matches.
func Probe(data []byte) string {
	if entry, ok := lookup(data); ok {
		return entry.ext
	}
	return unknownExtension
}

// Label returns the descriptive label for data's magic ("external-bulk",
// "compressed-package", ...), or "" if unknown.
func Label(data []byte) string {
	if entry, ok := lookup(data); ok {
		return entry.label
	}
	return ""
}

func lookup(data []byte) (magicEntry, bool) {
	if len(data) < 4 {
		return magicEntry{}, false
	}
	var magic [4]byte
	copy(magic[:], data[:4])
	for _, e := range table {
		if e.magic == magic {
			return e, true
		}
	}
	return magicEntry{}, false
}
