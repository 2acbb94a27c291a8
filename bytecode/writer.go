package bytecode

import (
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Container Format Constants
// ---------------------------------------------------------------------------

// UnitMagic is the magic number identifying a Fennec bytecode container.
var UnitMagic = [4]byte{'F', 'N', 'B', 'C'}

// Container format version
// v1: initial format
// v2: regexp table, CommonJS module table, object key buffer
const UnitVersion uint32 = 2

// Container header size in bytes
// magic(4) + version(4) + flags(4) + bodyLength(8) = 20
const UnitHeaderSize = 20

// Container flags
const (
	UnitFlagNone       uint32 = 0
	UnitFlagCompressed uint32 = 1 << 0 // Reserved for future compression
)

// cborEncMode holds CBOR encoding options with canonical mode for
// deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Container Writing
// ---------------------------------------------------------------------------

// Encode serializes a unit to container bytes: the fixed header followed
// by the canonical CBOR body. The unit is validated first.
func Encode(u *Unit) ([]byte, error) {
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("bytecode: encode: %w", err)
	}
	body, err := cborEncMode.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("bytecode: encode body: %w", err)
	}
	out := make([]byte, UnitHeaderSize, UnitHeaderSize+len(body))
	copy(out[0:4], UnitMagic[:])
	putUint32(out[4:8], UnitVersion)
	putUint32(out[8:12], UnitFlagNone)
	putUint64(out[12:20], uint64(len(body)))
	return append(out, body...), nil
}

// Write serializes a unit to w.
func Write(w io.Writer, u *Unit) error {
	data, err := Encode(u)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("bytecode: write container: %w", err)
	}
	return nil
}

// WriteFile serializes a unit to a container file.
func WriteFile(path string, u *Unit) error {
	data, err := Encode(u)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("bytecode: write %s: %w", path, err)
	}
	return nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putUint64(b []byte, v uint64) {
	putUint32(b[0:4], uint32(v))
	putUint32(b[4:8], uint32(v>>32))
}
