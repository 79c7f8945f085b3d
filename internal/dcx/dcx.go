// Package dcx implements the compressed package codec: a single-file
// deflate wrapper framed by four big-endian chunks (DCX, DCS, DCP, DCA).
// Unlike the external archive and standalone archive headers, every
// integer here is big-endian — this module preserves that asymmetry
// rather than normalizing it, since it is what the game actually emits.
package dcx

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dece/dksarc/internal/archerr"
)

var (
	dcxMagic = [4]byte{'D', 'C', 'X', 0x00}
	dcsMagic = [4]byte{'D', 'C', 'S', 0x00}
	dcpMagic = [4]byte{'D', 'C', 'P', 0x00}
	dcaMagic = [4]byte{'D', 'C', 'A', 0x00}

	dflTag = [4]byte{'D', 'F', 'L', 'T'}
)

const (
	dcxConst       uint32 = 0x00010000
	dcpHeaderSize  uint32 = 0x20
	dcpMethodLevel uint32 = 0x09000000
	dcpVersion     uint32 = 0x00010100
	dcaDataOffset  uint32 = 0x8

	dcxHeaderSize = 24
	dcsChunkSize  = 12
	dcpChunkSize  = 32
	dcaChunkSize  = 8
)

type dcxHeader struct {
	Magic     [4]byte
	Const1    uint32
	DcsOffset uint32
	DcpOffset uint32
	Unk2      uint32
	Unk3      uint32
}

type dcsChunk struct {
	Magic            [4]byte
	UncompressedSize uint32
	CompressedSize   uint32
}

type dcpChunk struct {
	Magic   [4]byte
	Tag     [4]byte
	Unk1    uint32 // header size, constant 0x20
	Unk2    uint32 // constant 0x09000000
	Unk3    uint32 // constant 0
	Version uint32 // constant 0x00010100
	Unk4    uint32 // constant 0
	Unk5    uint32 // constant 0
}

type dcaChunk struct {
	Magic      [4]byte
	DataOffset uint32
}

// Decode parses a compressed package and returns its inflated payload.
func Decode(data []byte) ([]byte, error) {
	r := bytes.NewReader(data)

	var dcx dcxHeader
	if err := binary.Read(r, binary.BigEndian, &dcx); err != nil {
		return nil, fmt.Errorf("%w: reading DCX chunk: %v", archerr.ErrIoFailure, err)
	}
	if dcx.Magic != dcxMagic {
		return nil, fmt.Errorf("%w: DCX magic %q", archerr.ErrInvalidMagic, dcx.Magic)
	}
	if dcx.Const1 != dcxConst {
		return nil, fmt.Errorf("%w: DCX const field %#08x, want %#08x", archerr.ErrStructurallyInconsistent, dcx.Const1, dcxConst)
	}

	if _, err := r.Seek(int64(dcx.DcsOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seeking to DCS: %v", archerr.ErrIoFailure, err)
	}
	var dcs dcsChunk
	if err := binary.Read(r, binary.BigEndian, &dcs); err != nil {
		return nil, fmt.Errorf("%w: reading DCS chunk: %v", archerr.ErrIoFailure, err)
	}
	if dcs.Magic != dcsMagic {
		return nil, fmt.Errorf("%w: DCS magic %q", archerr.ErrInvalidMagic, dcs.Magic)
	}

	if _, err := r.Seek(int64(dcx.DcpOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seeking to DCP: %v", archerr.ErrIoFailure, err)
	}
	var dcp dcpChunk
	if err := binary.Read(r, binary.BigEndian, &dcp); err != nil {
		return nil, fmt.Errorf("%w: reading DCP chunk: %v", archerr.ErrIoFailure, err)
	}
	if dcp.Magic != dcpMagic {
		return nil, fmt.Errorf("%w: DCP magic %q", archerr.ErrInvalidMagic, dcp.Magic)
	}
	if dcp.Tag != dflTag {
		return nil, fmt.Errorf("%w: DCP method tag %q, want %q", archerr.ErrStructurallyInconsistent, dcp.Tag, dflTag)
	}

	dcaOffset := int64(dcx.DcpOffset) + dcpChunkSize
	if _, err := r.Seek(dcaOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seeking to DCA: %v", archerr.ErrIoFailure, err)
	}
	var dca dcaChunk
	if err := binary.Read(r, binary.BigEndian, &dca); err != nil {
		return nil, fmt.Errorf("%w: reading DCA chunk: %v", archerr.ErrIoFailure, err)
	}
	if dca.Magic != dcaMagic {
		return nil, fmt.Errorf("%w: DCA magic %q", archerr.ErrInvalidMagic, dca.Magic)
	}

	streamStart := dcaOffset + int64(dca.DataOffset)
	if streamStart < 0 || streamStart+int64(dcs.CompressedSize) > int64(len(data)) {
		return nil, fmt.Errorf("%w: deflate stream extends past end of file", archerr.ErrStructurallyInconsistent)
	}
	stream := data[streamStart : streamStart+int64(dcs.CompressedSize)]

	inflated, err := inflate(stream, int(dcs.UncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("%w: inflating package: %v", archerr.ErrCodecFailure, err)
	}
	return inflated, nil
}

// Encode compresses payload at deflate level 9 and frames it as a
// compressed package.
func Encode(payload []byte) ([]byte, error) {
	compressed, err := deflate(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: deflating payload: %v", archerr.ErrCodecFailure, err)
	}

	dcsOffset := uint32(dcxHeaderSize)
	dcpOffset := dcsOffset + dcsChunkSize

	var buf bytes.Buffer

	dcx := dcxHeader{
		Magic:     dcxMagic,
		Const1:    dcxConst,
		DcsOffset: dcsOffset,
		DcpOffset: dcpOffset,
		Unk2:      dcpOffset,
		Unk3:      dcpOffset + 8,
	}
	if err := binary.Write(&buf, binary.BigEndian, &dcx); err != nil {
		return nil, fmt.Errorf("%w: writing DCX chunk: %v", archerr.ErrIoFailure, err)
	}

	dcs := dcsChunk{
		Magic:            dcsMagic,
		UncompressedSize: uint32(len(payload)),
		CompressedSize:   uint32(len(compressed)),
	}
	if err := binary.Write(&buf, binary.BigEndian, &dcs); err != nil {
		return nil, fmt.Errorf("%w: writing DCS chunk: %v", archerr.ErrIoFailure, err)
	}

	dcp := dcpChunk{
		Magic:   dcpMagic,
		Tag:     dflTag,
		Unk1:    dcpHeaderSize,
		Unk2:    dcpMethodLevel,
		Unk3:    0,
		Version: dcpVersion,
		Unk4:    0,
		Unk5:    0,
	}
	if err := binary.Write(&buf, binary.BigEndian, &dcp); err != nil {
		return nil, fmt.Errorf("%w: writing DCP chunk: %v", archerr.ErrIoFailure, err)
	}

	dca := dcaChunk{Magic: dcaMagic, DataOffset: dcaDataOffset}
	if err := binary.Write(&buf, binary.BigEndian, &dca); err != nil {
		return nil, fmt.Errorf("%w: writing DCA chunk: %v", archerr.ErrIoFailure, err)
	}

	buf.Write(compressed)

	return buf.Bytes(), nil
}

func inflate(compressed []byte, uncompressedSize int) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(compressed))
	defer func() { _ = fr.Close() }()

	out := make([]byte, 0, uncompressedSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, fr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deflate(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
