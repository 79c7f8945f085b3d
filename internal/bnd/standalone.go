// Package bnd implements the standalone archive codec (the BND3 family):
// a single file carrying named internal entries, each with its own path
// and byte payload.
package bnd

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dece/dksarc/internal/archerr"
)

const (
	headerSize        = 32
	entrySize20       = 20
	entrySize24       = 24
	flagLargeEntryBit = 0x04

	// entryUnk1Const is the constant value of every entry's unk1 field.
	entryUnk1Const uint32 = 0x40
)

// knownMagics is the closed set of 12-byte magic tags this codec
// recognizes. An unrecognized magic is logged, not rejected, since the
// fixed-size header layout that follows does not otherwise depend on
// which tag is present.
var knownMagics = []string{
	"BND3PC060000",
	"BND3PC2D0000",
	"BND3PC2A0000",
	"BND3PC1D0000",
}

// DefaultMagic is used by the builder when the caller doesn't specify one.
const DefaultMagic = "BND3PC060000"

// Known flag combinations.
const (
	FlagsNoNames   uint32 = 0x54
	FlagsSmallForm uint32 = 0x70
	FlagsDefault   uint32 = 0x74
)

// Entry is a single standalone archive entry: a decoded virtual path and
// its raw byte payload, plus the fields needed to round-trip the record.
type Entry struct {
	Unk1       uint32
	DataSize   uint32
	DataOffset uint32
	Ident      uint32
	PathOffset uint32
	// HasUnk2 records whether this entry used the 24-byte form (in which
	// case Unk2 == DataSize); needed only to round-trip an archive that
	// mixed the two forms, which the format does not actually do, but we
	// preserve the flag anyway rather than assuming.
	HasUnk2 bool
	Unk2    uint32

	// RawPath is the decoded (but not yet rewritten) path exactly as
	// stored in the archive.
	RawPath string
	// Path is RawPath after virtual-root stripping and separator
	// normalization (see Rewrite).
	Path string
	// Data is the entry's raw bytes.
	Data []byte
}

// Archive is a fully parsed standalone archive.
type Archive struct {
	Magic   string
	Flags   uint32
	Entries []Entry
}

// entryStride returns the per-entry size (20 or 24 bytes) selected by
// flags bit 0x04.
func entryStride(flags uint32) int {
	if flags&flagLargeEntryBit != 0 {
		return entrySize24
	}
	return entrySize20
}

// Load parses a standalone archive from r, reading the full data block
// into memory.
func Load(r io.ReadSeeker) (*Archive, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seeking to header: %v", archerr.ErrIoFailure, err)
	}

	var rawHeader struct {
		Magic      [12]byte
		Flags      uint32
		EntryCount uint32
		DataOffset uint32
		Zero1      uint32
		Zero2      uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &rawHeader); err != nil {
		return nil, fmt.Errorf("%w: reading standalone header: %v", archerr.ErrIoFailure, err)
	}

	magic := cString(rawHeader.Magic[:])
	if !isKnownMagic(magic) {
		// Non-fatal: the header layout that follows does not depend on
		// which tag is present.
		slog.Warn("unknown standalone archive magic", "magic", magic)
	}

	arch := &Archive{Magic: magic, Flags: rawHeader.Flags}
	stride := entryStride(rawHeader.Flags)
	large := stride == entrySize24

	entries := make([]Entry, rawHeader.EntryCount)
	for i := range entries {
		e, err := readEntryRecord(r, large)
		if err != nil {
			return nil, fmt.Errorf("%w: reading entry %d: %v", archerr.ErrStructurallyInconsistent, i, err)
		}
		entries[i] = e
	}

	for i := range entries {
		path, err := readEntryPath(r, entries[i].PathOffset)
		if err != nil {
			return nil, fmt.Errorf("%w: reading path of entry %d: %v", archerr.ErrIoFailure, i, err)
		}
		entries[i].RawPath = path
		entries[i].Path = Rewrite(path)

		data, err := readEntryData(r, entries[i].DataOffset, entries[i].DataSize)
		if err != nil {
			return nil, fmt.Errorf("%w: reading data of entry %d: %v", archerr.ErrIoFailure, i, err)
		}
		entries[i].Data = data
	}

	arch.Entries = entries
	return arch, nil
}

// LoadFile opens name and parses it as a standalone archive.
func LoadFile(name string) (*Archive, error) {
	f, err := os.Open(name) //nolint:gosec // G304: path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", archerr.ErrIoFailure, name, err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

func readEntryRecord(r io.Reader, large bool) (Entry, error) {
	var fixed struct {
		Unk1       uint32
		DataSize   uint32
		DataOffset uint32
		Ident      uint32
		PathOffset uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return Entry{}, err
	}
	e := Entry{
		Unk1:       fixed.Unk1,
		DataSize:   fixed.DataSize,
		DataOffset: fixed.DataOffset,
		Ident:      fixed.Ident,
		PathOffset: fixed.PathOffset,
	}
	if large {
		var unk2 uint32
		if err := binary.Read(r, binary.LittleEndian, &unk2); err != nil {
			return Entry{}, err
		}
		e.HasUnk2 = true
		e.Unk2 = unk2
	}
	return e, nil
}

func readEntryPath(r io.ReadSeeker, offset uint32) (string, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return "", err
	}
	br := bufio.NewReader(r)
	raw, err := br.ReadBytes(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	raw = bytes.TrimSuffix(raw, []byte{0})
	return decodeShiftJIS(raw), nil
}

func readEntryData(r io.ReadSeeker, offset, size uint32) ([]byte, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func isKnownMagic(magic string) bool {
	for _, m := range knownMagics {
		if m == magic {
			return true
		}
	}
	return false
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
