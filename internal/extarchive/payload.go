package extarchive

import (
	"fmt"
	"io"
	"os"

	"github.com/dece/dksarc/internal/archerr"
)

// payloadMagic is the fixed 16-byte magic written at offset 0 of a fresh
// bulk payload file.
var payloadMagic = [16]byte{'B', 'D', 'F', '3', '0', '7', 'D', '7', 'R', '6'}

const payloadAlignment = 16

// Payload is a seekable bulk data file with 16-byte alignment discipline
// between appended entries.
type Payload struct {
	f *os.File
	// size tracks the current logical end of file so Append doesn't need a
	// Seek(0, io.SeekEnd) round trip per call.
	size int64
}

// OpenPayload opens an existing payload file for reading.
func OpenPayload(name string) (*Payload, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: opening payload %s: %v", archerr.ErrIoFailure, name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: stat payload %s: %v", archerr.ErrIoFailure, name, err)
	}
	return &Payload{f: f, size: info.Size()}, nil
}

// CreatePayload creates (truncating if necessary) a payload file for
// writing and immediately initializes it with the fixed magic header.
func CreatePayload(name string) (*Payload, error) {
	f, err := os.Create(name) //nolint:gosec // G304: path is caller-controlled, same as any archive tool
	if err != nil {
		return nil, fmt.Errorf("%w: creating payload %s: %v", archerr.ErrIoFailure, name, err)
	}
	p := &Payload{f: f}
	if err := p.InitEmpty(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return p, nil
}

// InitEmpty writes the fixed 16-byte payload magic header at offset 0.
func (p *Payload) InitEmpty() error {
	if _, err := p.f.WriteAt(payloadMagic[:], 0); err != nil {
		return fmt.Errorf("%w: writing payload magic: %v", archerr.ErrIoFailure, err)
	}
	if p.size < payloadAlignment {
		p.size = payloadAlignment
	}
	return nil
}

// ReadAt reads exactly size bytes at offset, or returns an error.
func (p *Payload) ReadAt(offset int64, size int64) ([]byte, error) {
	buf := make([]byte, size)
	n, err := p.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading %d bytes at offset %d: %v", archerr.ErrIoFailure, size, offset, err)
	}
	if int64(n) != size {
		return nil, fmt.Errorf("%w: short read at offset %d: got %d of %d bytes", archerr.ErrIoFailure, offset, n, size)
	}
	return buf, nil
}

// Append writes data starting at the current end of file and returns the
// offset it was written at and its length. After the write, the file is
// padded with zero bytes to the next 16-byte boundary; the padding is not
// included in the returned start offset, which points at the entry's own
// first byte.
func (p *Payload) Append(data []byte) (offset int64, n int64, err error) {
	offset = p.size
	written, err := p.f.WriteAt(data, offset)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: appending %d bytes at offset %d: %v", archerr.ErrIoFailure, len(data), offset, err)
	}
	p.size = offset + int64(written)

	if pad := alignPadding(p.size, payloadAlignment); pad > 0 {
		if _, err := p.f.WriteAt(make([]byte, pad), p.size); err != nil {
			return 0, 0, fmt.Errorf("%w: padding after append: %v", archerr.ErrIoFailure, err)
		}
		p.size += pad
	}

	return offset, int64(written), nil
}

// Close releases the underlying file handle.
func (p *Payload) Close() error {
	if err := p.f.Close(); err != nil {
		return fmt.Errorf("%w: closing payload: %v", archerr.ErrIoFailure, err)
	}
	return nil
}

// Size returns the current logical length of the payload file.
func (p *Payload) Size() int64 { return p.size }

// alignPadding returns the number of zero bytes needed to bring size up to
// the next multiple of alignment.
func alignPadding(size int64, alignment int64) int64 {
	rem := size % alignment
	if rem == 0 {
		return 0
	}
	return alignment - rem
}
