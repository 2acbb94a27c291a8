package bytecode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Container Error Types
// ---------------------------------------------------------------------------

var (
	ErrInvalidMagic     = errors.New("invalid magic number: expected FNBC")
	ErrVersionMismatch  = errors.New("container version mismatch")
	ErrCorruptHeader    = errors.New("corrupt container header")
	ErrUnsupportedFlags = errors.New("unsupported container flags")
	ErrTruncated        = errors.New("container body shorter than header declares")
)

// UnitHeader is the parsed fixed header of a container.
type UnitHeader struct {
	Magic      [4]byte
	Version    uint32
	Flags      uint32
	BodyLength uint64
}

// ---------------------------------------------------------------------------
// Container Reading
// ---------------------------------------------------------------------------

// ReadHeader parses and checks the fixed header.
func ReadHeader(data []byte) (UnitHeader, error) {
	var h UnitHeader
	if len(data) < UnitHeaderSize {
		return h, fmt.Errorf("bytecode: %w: %d bytes", ErrCorruptHeader, len(data))
	}
	copy(h.Magic[:], data[0:4])
	if h.Magic != UnitMagic {
		return h, fmt.Errorf("bytecode: %w, got %q", ErrInvalidMagic, h.Magic[:])
	}
	h.Version = getUint32(data[4:8])
	if h.Version != UnitVersion {
		return h, fmt.Errorf("bytecode: %w: got v%d, want v%d", ErrVersionMismatch, h.Version, UnitVersion)
	}
	h.Flags = getUint32(data[8:12])
	if h.Flags&^UnitFlagCompressed != 0 {
		return h, fmt.Errorf("bytecode: %w: %#x", ErrUnsupportedFlags, h.Flags)
	}
	if h.Flags&UnitFlagCompressed != 0 {
		return h, fmt.Errorf("bytecode: %w: compression is reserved", ErrUnsupportedFlags)
	}
	h.BodyLength = getUint64(data[12:20])
	return h, nil
}

// Decode parses a container from bytes, validating the unit before
// returning it.
func Decode(data []byte) (*Unit, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	body := data[UnitHeaderSize:]
	if uint64(len(body)) < h.BodyLength {
		return nil, fmt.Errorf("bytecode: %w: have %d, want %d", ErrTruncated, len(body), h.BodyLength)
	}
	var u Unit
	if err := cbor.Unmarshal(body[:h.BodyLength], &u); err != nil {
		return nil, fmt.Errorf("bytecode: decode body: %w", err)
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("bytecode: decode: %w", err)
	}
	return &u, nil
}

// Read parses a container from r.
func Read(r io.Reader) (*Unit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("bytecode: read container: %w", err)
	}
	return Decode(data)
}

// ReadFile parses a container file.
func ReadFile(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bytecode: read %s: %w", path, err)
	}
	return Decode(data)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func getUint64(b []byte) uint64 {
	return uint64(getUint32(b[0:4])) | uint64(getUint32(b[4:8]))<<32
}
