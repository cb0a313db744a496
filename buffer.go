//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

// Buffer collects output bytes. It starts on a caller-provided small
// buffer and promotes to a heap allocation on the first growth beyond
// its capacity. Heap-backed contents are zeroed on Dispose.
type Buffer struct {
	base      []byte
	off       int
	allocated bool
}

// NewBuffer creates a buffer whose initial storage is the argument
// small buffer. The small buffer may be nil.
func NewBuffer(smallbuf []byte) *Buffer {
	buf := new(Buffer)
	buf.Init(smallbuf)
	return buf
}

// Init initializes the buffer, setting the default destination to the
// argument small buffer.
func (buf *Buffer) Init(smallbuf []byte) {
	buf.base = smallbuf
	buf.off = 0
	buf.allocated = false
}

// Dispose releases resources allocated by the buffer itself, zeroing
// heap-backed contents.
func (buf *Buffer) Dispose() {
	if buf.allocated {
		ClearMemory(buf.base)
	}
	buf.base = nil
	buf.off = 0
	buf.allocated = false
}

// Bytes returns the bytes accumulated so far.
func (buf *Buffer) Bytes() []byte {
	return buf.base[:buf.off]
}

// Len returns the number of bytes accumulated so far.
func (buf *Buffer) Len() int {
	return buf.off
}

// Reserve ensures that the buffer has room for delta additional bytes,
// promoting the contents to a heap allocation if necessary.
func (buf *Buffer) Reserve(delta int) error {
	if buf.off+delta <= len(buf.base) {
		return nil
	}
	capacity := len(buf.base)
	if capacity < 1024 {
		capacity = 1024
	}
	for capacity < buf.off+delta {
		capacity *= 2
	}
	nbuf := make([]byte, capacity)
	copy(nbuf, buf.base[:buf.off])
	if buf.allocated {
		ClearMemory(buf.base)
	}
	buf.base = nbuf
	buf.allocated = true
	return nil
}

// PushRaw appends the argument bytes.
func (buf *Buffer) PushRaw(data []byte) error {
	if err := buf.Reserve(len(data)); err != nil {
		return err
	}
	copy(buf.base[buf.off:], data)
	buf.off += len(data)
	return nil
}

// PushUint8 appends an 8-bit value.
func (buf *Buffer) PushUint8(v uint8) error {
	if err := buf.Reserve(1); err != nil {
		return err
	}
	buf.base[buf.off] = v
	buf.off++
	return nil
}

// PushUint16 appends a big-endian 16-bit value.
func (buf *Buffer) PushUint16(v uint16) error {
	if err := buf.Reserve(2); err != nil {
		return err
	}
	bo.PutUint16(buf.base[buf.off:], v)
	buf.off += 2
	return nil
}

// PushUint24 appends a big-endian 24-bit value.
func (buf *Buffer) PushUint24(v uint32) error {
	if err := buf.Reserve(3); err != nil {
		return err
	}
	buf.base[buf.off] = byte(v >> 16)
	buf.base[buf.off+1] = byte(v >> 8)
	buf.base[buf.off+2] = byte(v)
	buf.off += 3
	return nil
}

// PushUint32 appends a big-endian 32-bit value.
func (buf *Buffer) PushUint32(v uint32) error {
	if err := buf.Reserve(4); err != nil {
		return err
	}
	bo.PutUint32(buf.base[buf.off:], v)
	buf.off += 4
	return nil
}

// PushUint64 appends a big-endian 64-bit value.
func (buf *Buffer) PushUint64(v uint64) error {
	if err := buf.Reserve(8); err != nil {
		return err
	}
	bo.PutUint64(buf.base[buf.off:], v)
	buf.off += 8
	return nil
}

// PushBlock writes a length-prefixed block. The capacity argument
// gives the width of the length prefix in bytes (1 to 4). The body
// callback writes the block body; the prefix is patched to the body
// length when the callback returns.
func (buf *Buffer) PushBlock(capacity int, body func() error) error {
	if err := buf.Reserve(capacity); err != nil {
		return err
	}
	for i := 0; i < capacity; i++ {
		buf.base[buf.off+i] = 0
	}
	buf.off += capacity
	start := buf.off

	if err := body(); err != nil {
		return err
	}

	size := buf.off - start
	for i := capacity; i > 0; i-- {
		buf.base[start-i] = byte(size >> (8 * (i - 1)))
	}
	return nil
}

// PushASN1Block writes a DER length-prefixed block: the short form is
// used for bodies below 128 bytes, otherwise the long form with the
// minimum length-of-length.
func (buf *Buffer) PushASN1Block(body func() error) error {
	if err := buf.PushUint8(0xff); err != nil {
		return err
	}
	start := buf.off

	if err := body(); err != nil {
		return err
	}

	size := buf.off - start
	if size < 128 {
		buf.base[start-1] = byte(size)
		return nil
	}

	var lenlen int
	for lenlen = 1; size>>(8*lenlen) != 0; lenlen++ {
	}
	if err := buf.Reserve(lenlen); err != nil {
		return err
	}
	copy(buf.base[start+lenlen:], buf.base[start:buf.off])
	buf.base[start-1] = byte(0x80 | lenlen)
	for i := 0; i < lenlen; i++ {
		buf.base[start+i] = byte(size >> (8 * (lenlen - 1 - i)))
	}
	buf.off += lenlen
	return nil
}

// PushASN1Sequence writes a DER SEQUENCE around the body.
func (buf *Buffer) PushASN1Sequence(body func() error) error {
	if err := buf.PushUint8(0x30); err != nil {
		return err
	}
	return buf.PushASN1Block(body)
}

// PushASN1UBigInt writes an unsigned big-endian integer as a DER
// INTEGER body: leading zero octets are stripped and a single zero
// octet is prepended if the high bit of the first kept octet is set.
func (buf *Buffer) PushASN1UBigInt(bignum []byte) error {
	for len(bignum) != 0 && bignum[0] == 0 {
		bignum = bignum[1:]
	}
	if err := buf.PushUint8(0x02); err != nil {
		return err
	}
	return buf.PushASN1Block(func() error {
		if len(bignum) == 0 || bignum[0] >= 0x80 {
			if err := buf.PushUint8(0); err != nil {
				return err
			}
		}
		return buf.PushRaw(bignum)
	})
}
