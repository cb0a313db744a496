//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"bytes"
	"testing"
)

func TestBufferPushIntegers(t *testing.T) {
	var small [64]byte
	buf := NewBuffer(small[:])
	defer buf.Dispose()

	buf.PushUint8(0x88)
	buf.PushUint16(0x1616)
	buf.PushUint24(0x242424)
	buf.PushUint32(0x32323232)
	buf.PushUint64(0x6464646464646464)
	buf.PushRaw([]byte("Hello, world!"))

	const size = 1 + 2 + 3 + 4 + 8 + 13
	if buf.Len() != size {
		t.Errorf("pushed %v, expected %v", buf.Len(), size)
	}

	d := NewDecoder(buf.Bytes())
	v8, err := d.Uint8()
	if err != nil || v8 != 0x88 {
		t.Errorf("Uint8: %x, %v", v8, err)
	}
	v16, err := d.Uint16()
	if err != nil || v16 != 0x1616 {
		t.Errorf("Uint16: %x, %v", v16, err)
	}
	v24, err := d.Uint24()
	if err != nil || v24 != 0x242424 {
		t.Errorf("Uint24: %x, %v", v24, err)
	}
	v32, err := d.Uint32()
	if err != nil || v32 != 0x32323232 {
		t.Errorf("Uint32: %x, %v", v32, err)
	}
	v64, err := d.Uint64()
	if err != nil || v64 != 0x6464646464646464 {
		t.Errorf("Uint64: %x, %v", v64, err)
	}
	if !bytes.Equal(d.Rest(), []byte("Hello, world!")) {
		t.Errorf("Rest mismatch")
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestBufferPromotion(t *testing.T) {
	var small [4]byte
	buf := NewBuffer(small[:])

	data := []byte("0123456789abcdef")
	buf.PushRaw(data[:4])
	if buf.allocated {
		t.Errorf("promoted too early")
	}
	buf.PushRaw(data[4:])
	if !buf.allocated {
		t.Errorf("not promoted")
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Errorf("data lost in promotion: %x", buf.Bytes())
	}

	backing := buf.base
	buf.Dispose()
	for i, b := range backing {
		if b != 0 {
			t.Errorf("byte %v not cleared on dispose", i)
		}
	}
}

func TestBufferBlocks(t *testing.T) {
	for capacity := 1; capacity <= 4; capacity++ {
		buf := NewBuffer(nil)
		err := buf.PushBlock(capacity, func() error {
			return buf.PushRaw([]byte("body"))
		})
		if err != nil {
			t.Fatalf("capacity %v: %v", capacity, err)
		}
		d := NewDecoder(buf.Bytes())
		body, err := d.Block(capacity)
		if err != nil {
			t.Fatalf("capacity %v: decode: %v", capacity, err)
		}
		if !bytes.Equal(body, []byte("body")) {
			t.Errorf("capacity %v: body %x", capacity, body)
		}
		if err := d.Close(); err != nil {
			t.Errorf("capacity %v: trailing data", capacity)
		}
		buf.Dispose()
	}
}

func TestBufferNestedBlocks(t *testing.T) {
	buf := NewBuffer(nil)
	err := buf.PushBlock(2, func() error {
		return buf.PushBlock(1, func() error {
			return buf.PushRaw([]byte("xy"))
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	expected := []byte{0, 3, 2, 'x', 'y'}
	if !bytes.Equal(buf.Bytes(), expected) {
		t.Errorf("got %x, expected %x", buf.Bytes(), expected)
	}
}

func TestBufferASN1Short(t *testing.T) {
	buf := NewBuffer(nil)
	err := buf.PushASN1Block(func() error {
		return buf.PushRaw(bytes.Repeat([]byte{0xaa}, 100))
	})
	if err != nil {
		t.Fatal(err)
	}
	if buf.Bytes()[0] != 100 {
		t.Errorf("short form length: %x", buf.Bytes()[0])
	}
	if buf.Len() != 101 {
		t.Errorf("length %v", buf.Len())
	}
}

func TestBufferASN1Long(t *testing.T) {
	buf := NewBuffer(nil)
	err := buf.PushASN1Block(func() error {
		return buf.PushRaw(bytes.Repeat([]byte{0xaa}, 300))
	})
	if err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	if data[0] != 0x82 {
		t.Errorf("length-of-length: %x", data[0])
	}
	if data[1] != 0x01 || data[2] != 0x2c {
		t.Errorf("long form length: %x %x", data[1], data[2])
	}
	if buf.Len() != 303 {
		t.Errorf("length %v", buf.Len())
	}
}

func TestBufferASN1UBigInt(t *testing.T) {
	// Leading zeros are stripped.
	buf := NewBuffer(nil)
	if err := buf.PushASN1UBigInt([]byte{0, 0, 0x7f}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0x02, 1, 0x7f}) {
		t.Errorf("got %x", buf.Bytes())
	}

	// A zero octet is prepended when the high bit is set.
	buf = NewBuffer(nil)
	if err := buf.PushASN1UBigInt([]byte{0x80, 1}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0x02, 3, 0, 0x80, 1}) {
		t.Errorf("got %x", buf.Bytes())
	}

	// Zero value.
	buf = NewBuffer(nil)
	if err := buf.PushASN1UBigInt([]byte{0, 0}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0x02, 1, 0}) {
		t.Errorf("got %x", buf.Bytes())
	}
}

func TestDecoderBounds(t *testing.T) {
	d := NewDecoder([]byte{1, 2})
	if _, err := d.Uint32(); err == nil {
		t.Errorf("Uint32 did not fail")
	} else if e, ok := err.(*Error); !ok ||
		e.Code != int(AlertDecodeError) {
		t.Errorf("unexpected error: %v", err)
	}

	d = NewDecoder([]byte{0, 5, 1, 2})
	if _, err := d.Block(2); err == nil {
		t.Errorf("truncated block did not fail")
	}

	d = NewDecoder([]byte{0, 2, 1, 2, 3})
	body, err := d.Block(2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, []byte{1, 2}) {
		t.Errorf("body %x", body)
	}
	if err := d.Close(); err == nil {
		t.Errorf("trailing data not detected")
	}
}
