// Package extarchive implements the external composed archive codec: a
// header/index file (BHD5) paired with a bulk payload file (BDT), as
// shipped in the four dvdbnd{0..3} pairs. All header fields are
// little-endian, unlike the game's internal BND3/DCX containers.
package extarchive

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dece/dksarc/internal/archerr"
	"github.com/dece/dksarc/internal/pathkey"
)

// externalHeaderMagic is "BHD5" read as a little-endian uint32.
const externalHeaderMagic uint32 = 0x35444842

const (
	headerSize = 24
	recordSize = 8
	entrySize  = 16
)

// DataEntry is the smallest descriptor in an external header: a single
// payload slice. Offset is absolute within the bulk payload file and must
// be a multiple of 16; Offset+Size must not exceed the payload length.
type DataEntry struct {
	Key    pathkey.Key
	Size   uint32
	Offset uint32
	Unk    uint32
}

// Record is a group of data entries; records partition the full entry set
// of a header with no entry belonging to two records.
type Record struct {
	Entries []DataEntry
}

// Header is the parsed external composed header (BHD5).
type Header struct {
	Flag1 uint32
	Flag2 uint32
	// FileSize is recomputed by Save; it is read verbatim by Load and not
	// validated there beyond being present (structural validation happens
	// where it matters: record/entry bounds).
	FileSize uint32
	Records  []Record
}

// LoadHeader reads and validates a BHD5 header from r, including every
// record's entry group.
func LoadHeader(r io.ReadSeeker) (*Header, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seeking to header: %v", archerr.ErrIoFailure, err)
	}

	var raw struct {
		Magic         uint32
		Flag1         uint32
		Flag2         uint32
		FileSize      uint32
		NumRecords    uint32
		RecordsOffset uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", archerr.ErrIoFailure, err)
	}
	if raw.Magic != externalHeaderMagic {
		return nil, fmt.Errorf("%w: got %#08x, want %#08x", archerr.ErrInvalidMagic, raw.Magic, externalHeaderMagic)
	}

	h := &Header{
		Flag1:    raw.Flag1,
		Flag2:    raw.Flag2,
		FileSize: raw.FileSize,
		Records:  make([]Record, raw.NumRecords),
	}

	if _, err := r.Seek(int64(raw.RecordsOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seeking to records: %v", archerr.ErrIoFailure, err)
	}

	type rawRecord struct {
		EntryCount    uint32
		EntriesOffset uint32
	}
	descriptors := make([]rawRecord, raw.NumRecords)
	for i := range descriptors {
		if err := binary.Read(r, binary.LittleEndian, &descriptors[i]); err != nil {
			return nil, fmt.Errorf("%w: reading record %d: %v", archerr.ErrIoFailure, i, err)
		}
	}

	for i, rec := range descriptors {
		if _, err := r.Seek(int64(rec.EntriesOffset), io.SeekStart); err != nil {
			return nil, fmt.Errorf("%w: seeking to entries of record %d: %v", archerr.ErrIoFailure, i, err)
		}
		entries := make([]DataEntry, rec.EntryCount)
		for j := range entries {
			var raw struct {
				Key    uint32
				Size   uint32
				Offset uint32
				Unk    uint32
			}
			if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
				return nil, fmt.Errorf("%w: reading entry %d of record %d: %v", archerr.ErrStructurallyInconsistent, j, i, err)
			}
			entries[j] = DataEntry{
				Key:    pathkey.Key(raw.Key),
				Size:   raw.Size,
				Offset: raw.Offset,
				Unk:    raw.Unk,
			}
		}
		h.Records[i].Entries = entries
	}

	return h, nil
}

// Save lays out the header at offset 0, records back-to-back starting at
// byte 24, then entries grouped by record, and writes the whole thing to
// w. FileSize is recomputed from the layout before writing.
func (h *Header) Save(w io.Writer) error {
	recordsOffset := uint32(headerSize)
	entriesOffset := recordsOffset + uint32(len(h.Records))*recordSize

	fileSize := entriesOffset
	for _, rec := range h.Records {
		fileSize += uint32(len(rec.Entries)) * entrySize
	}

	hdr := struct {
		Magic         uint32
		Flag1         uint32
		Flag2         uint32
		FileSize      uint32
		NumRecords    uint32
		RecordsOffset uint32
	}{
		Magic:         externalHeaderMagic,
		Flag1:         h.Flag1,
		Flag2:         h.Flag2,
		FileSize:      fileSize,
		NumRecords:    uint32(len(h.Records)),
		RecordsOffset: recordsOffset,
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: writing header: %v", archerr.ErrIoFailure, err)
	}

	offset := entriesOffset
	for _, rec := range h.Records {
		desc := struct {
			EntryCount    uint32
			EntriesOffset uint32
		}{EntryCount: uint32(len(rec.Entries)), EntriesOffset: offset}
		if err := binary.Write(w, binary.LittleEndian, &desc); err != nil {
			return fmt.Errorf("%w: writing record descriptor: %v", archerr.ErrIoFailure, err)
		}
		offset += uint32(len(rec.Entries)) * entrySize
	}

	for _, rec := range h.Records {
		for _, e := range rec.Entries {
			raw := struct {
				Key    uint32
				Size   uint32
				Offset uint32
				Unk    uint32
			}{Key: uint32(e.Key), Size: e.Size, Offset: e.Offset, Unk: e.Unk}
			if err := binary.Write(w, binary.LittleEndian, &raw); err != nil {
				return fmt.Errorf("%w: writing entry: %v", archerr.ErrIoFailure, err)
			}
		}
	}

	h.FileSize = fileSize
	return nil
}

// AppendRecord appends an empty record, returning its index. Existing
// records and their entries are untouched; Save recomputes every offset
// from the resulting layout.
func (h *Header) AppendRecord() int {
	h.Records = append(h.Records, Record{})
	return len(h.Records) - 1
}

// AppendEntry appends e to the entries of record recordIdx, preserving the
// order of entries already present.
func (h *Header) AppendEntry(recordIdx int, e DataEntry) error {
	if recordIdx < 0 || recordIdx >= len(h.Records) {
		return fmt.Errorf("%w: record index %d out of range (have %d)", archerr.ErrStructurallyInconsistent, recordIdx, len(h.Records))
	}
	h.Records[recordIdx].Entries = append(h.Records[recordIdx].Entries, e)
	return nil
}

// EntryCount returns the total number of data entries across all records,
// used to check the record-partitioning invariant.
func (h *Header) EntryCount() int {
	n := 0
	for _, rec := range h.Records {
		n += len(rec.Entries)
	}
	return n
}
