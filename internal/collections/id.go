package collections

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync/atomic"
	"time"
)

// ID is an opaque 96-bit collection identifier: a 4-byte seconds
// timestamp, a 5-byte random value fixed for the life of the process,
// and a 3-byte counter that increments per id generated. The layout
// mirrors bson.ObjectID so that hex-encoded ids sort lexicographically
// by creation time without a dedicated sort column.
type ID [12]byte

// Zero is the empty id, returned by failed lookups.
var Zero ID

var (
	processRandom  [5]byte
	counter        uint32
	errInvalidHex  = errors.New("collections: id must be 24 hex characters")
)

func init() {
	_, _ = rand.Read(processRandom[:])
	var seed [4]byte
	_, _ = rand.Read(seed[:])
	counter = uint32(seed[0])<<16 | uint32(seed[1])<<8 | uint32(seed[2])
}

// NewID generates a fresh id from the current time, the process's random
// value, and the next tick of the package-global counter.
func NewID() ID {
	var id ID

	sec := uint32(time.Now().Unix())
	id[0] = byte(sec >> 24)
	id[1] = byte(sec >> 16)
	id[2] = byte(sec >> 8)
	id[3] = byte(sec)

	copy(id[4:9], processRandom[:])

	c := atomic.AddUint32(&counter, 1) & 0x00ffffff
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)

	return id
}

// ParseID decodes a 24-character hex string into an ID.
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) != 24 {
		return id, errInvalidHex
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errInvalidHex
	}
	copy(id[:], b)
	return id, nil
}

// MustParseID is like ParseID but panics on error; used for compile-time
// constants and tests.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == Zero
}

// Timestamp returns the creation time encoded in the id's first 4 bytes.
func (id ID) Timestamp() time.Time {
	sec := uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
	return time.Unix(int64(sec), 0).UTC()
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
