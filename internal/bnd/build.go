package bnd

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/dece/dksarc/internal/archerr"
)

type buildFile struct {
	realPath    string
	virtualPath string
}

// Builder accumulates files to be written into a new standalone archive.
type Builder struct {
	magic string
	flags uint32
	files []buildFile
}

// NewBuilder returns a Builder with the default magic and flags
// (DefaultMagic, FlagsDefault = 0x74, the 24-byte entry form).
func NewBuilder() *Builder {
	return &Builder{magic: DefaultMagic, flags: FlagsDefault}
}

// SetMagic overrides the archive magic tag written by Build.
func (b *Builder) SetMagic(magic string) { b.magic = magic }

// SetFlags overrides the archive flags written by Build.
func (b *Builder) SetFlags(flags uint32) { b.flags = flags }

// Add registers a file to include in the archive: realPath is read from
// disk at Build time, virtualPath is the path stored (and Shift-JIS
// encoded) inside the archive.
func (b *Builder) Add(realPath, virtualPath string) {
	b.files = append(b.files, buildFile{realPath: realPath, virtualPath: virtualPath})
}

// Build writes the finished archive to w: header, entry table, strings
// block (NUL-terminated Shift-JIS paths, padded to 16 bytes), then files
// block (each body padded to 16 bytes).
func (b *Builder) Build(w io.Writer) error {
	large := b.flags&flagLargeEntryBit != 0
	stride := entrySize20
	if large {
		stride = entrySize24
	}

	entriesOffset := int64(headerSize)
	stringsOffset := entriesOffset + int64(len(b.files))*int64(stride)

	encodedPaths := make([][]byte, len(b.files))
	pathOffsets := make([]int64, len(b.files))
	offset := stringsOffset
	for i, f := range b.files {
		encoded, err := encodeShiftJIS(f.virtualPath)
		if err != nil {
			return fmt.Errorf("%w: encoding path %q: %v", archerr.ErrStructurallyInconsistent, f.virtualPath, err)
		}
		encoded = nulTerminated(encoded)
		encodedPaths[i] = encoded
		pathOffsets[i] = offset
		offset += int64(len(encoded))
	}
	stringsBlockLen := offset - stringsOffset
	stringsPad := alignPad(stringsBlockLen, 16)
	filesOffset := stringsOffset + stringsBlockLen + stringsPad

	fileBodies := make([][]byte, len(b.files))
	dataOffsets := make([]int64, len(b.files))
	offset = filesOffset
	for i, f := range b.files {
		data, err := os.ReadFile(f.realPath) //nolint:gosec // G304: caller-controlled build input
		if err != nil {
			return fmt.Errorf("%w: reading %s: %v", archerr.ErrIoFailure, f.realPath, err)
		}
		fileBodies[i] = data
		dataOffsets[i] = offset
		offset += int64(len(data)) + alignPad(int64(len(data)), 16)
	}

	header := struct {
		Magic      [12]byte
		Flags      uint32
		EntryCount uint32
		DataOffset uint32
		Zero1      uint32
		Zero2      uint32
	}{
		Flags:      b.flags,
		EntryCount: uint32(len(b.files)),
		DataOffset: uint32(filesOffset),
	}
	copy(header.Magic[:], b.magic)
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("%w: writing header: %v", archerr.ErrIoFailure, err)
	}

	for i, f := range b.files {
		dataSize := uint32(len(fileBodies[i]))
		fixed := struct {
			Unk1       uint32
			DataSize   uint32
			DataOffset uint32
			Ident      uint32
			PathOffset uint32
		}{
			Unk1:       entryUnk1Const,
			DataSize:   dataSize,
			DataOffset: uint32(dataOffsets[i]),
			Ident:      uint32(i),
			PathOffset: uint32(pathOffsets[i]),
		}
		if err := binary.Write(w, binary.LittleEndian, &fixed); err != nil {
			return fmt.Errorf("%w: writing entry %d (%s): %v", archerr.ErrIoFailure, i, f.virtualPath, err)
		}
		if large {
			if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
				return fmt.Errorf("%w: writing entry %d unk2: %v", archerr.ErrIoFailure, i, err)
			}
		}
	}

	for _, encoded := range encodedPaths {
		if _, err := w.Write(encoded); err != nil {
			return fmt.Errorf("%w: writing strings block: %v", archerr.ErrIoFailure, err)
		}
	}
	if _, err := w.Write(make([]byte, stringsPad)); err != nil {
		return fmt.Errorf("%w: padding strings block: %v", archerr.ErrIoFailure, err)
	}

	for i, data := range fileBodies {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("%w: writing file body %d: %v", archerr.ErrIoFailure, i, err)
		}
		pad := alignPad(int64(len(data)), 16)
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("%w: padding file body %d: %v", archerr.ErrIoFailure, i, err)
		}
	}

	return nil
}

func alignPad(size int64, alignment int64) int64 {
	rem := size % alignment
	if rem == 0 {
		return 0
	}
	return alignment - rem
}
