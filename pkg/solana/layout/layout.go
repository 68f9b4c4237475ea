// Package layout encodes and decodes fixed size little endian account and
// instruction layouts.
//
// Callers size buffers and validate lengths up front, so the encoder and
// decoder panic when running past the end of their buffer.
package layout

import (
	"crypto/ed25519"
	"encoding/binary"
)

// Encoder writes fields sequentially into a fixed size buffer.
type Encoder struct {
	buf []byte
	off int
}

func NewEncoder(size int) *Encoder {
	return &Encoder{buf: make([]byte, size)}
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) Raw(v []byte) *Encoder {
	copy(e.buf[e.off:e.off+len(v)], v)
	e.off += len(v)
	return e
}

// Key writes a 32 byte key. A short or nil key is zero padded.
func (e *Encoder) Key(v ed25519.PublicKey) *Encoder {
	copy(e.buf[e.off:e.off+ed25519.PublicKeySize], v)
	e.off += ed25519.PublicKeySize
	return e
}

func (e *Encoder) Uint8(v uint8) *Encoder {
	e.buf[e.off] = v
	e.off++
	return e
}

func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		return e.Uint8(1)
	}
	return e.Uint8(0)
}

func (e *Encoder) Uint64(v uint64) *Encoder {
	binary.LittleEndian.PutUint64(e.buf[e.off:], v)
	e.off += 8
	return e
}

func (e *Encoder) Int64(v int64) *Encoder {
	return e.Uint64(uint64(v))
}

// OptionalKey writes a tagSize byte presence tag followed by the key, which
// is zeroed when absent.
func (e *Encoder) OptionalKey(v ed25519.PublicKey, tagSize int) *Encoder {
	e.tag(len(v) > 0, tagSize)
	return e.Key(v)
}

// OptionalUint64 writes a tagSize byte presence tag followed by the value.
func (e *Encoder) OptionalUint64(v *uint64, tagSize int) *Encoder {
	e.tag(v != nil, tagSize)
	if v == nil {
		return e.Uint64(0)
	}
	return e.Uint64(*v)
}

func (e *Encoder) tag(present bool, size int) {
	if present {
		e.buf[e.off] = 1
	}
	e.off += size
}

// Decoder reads fields sequentially from a buffer.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Offset is the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.off
}

// Raw returns a copy of the next n bytes.
func (d *Decoder) Raw(n int) []byte {
	v := make([]byte, n)
	copy(v, d.buf[d.off:d.off+n])
	d.off += n
	return v
}

func (d *Decoder) Key() ed25519.PublicKey {
	return d.Raw(ed25519.PublicKeySize)
}

func (d *Decoder) Uint8() uint8 {
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *Decoder) Bool() bool {
	return d.Uint8() == 1
}

func (d *Decoder) Uint64() uint64 {
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

func (d *Decoder) Int64() int64 {
	return int64(d.Uint64())
}

// OptionalKey reads a tagged key, returning nil when the tag is unset.
func (d *Decoder) OptionalKey(tagSize int) ed25519.PublicKey {
	present := d.tag(tagSize)
	key := d.Key()
	if !present {
		return nil
	}
	return key
}

// OptionalUint64 reads a tagged value, returning nil when the tag is unset.
func (d *Decoder) OptionalUint64(tagSize int) *uint64 {
	present := d.tag(tagSize)
	v := d.Uint64()
	if !present {
		return nil
	}
	return &v
}

func (d *Decoder) tag(size int) bool {
	present := d.buf[d.off] == 1
	d.off += size
	return present
}
