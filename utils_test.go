//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestClearMemory(t *testing.T) {
	data := make([]byte, 1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}
	ClearMemory(data)
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %v not cleared", i)
		}
	}
}

func TestMemEqual(t *testing.T) {
	if !MemEqual(nil, nil) {
		t.Errorf("nil != nil")
	}
	if !MemEqual([]byte{}, nil) {
		t.Errorf("empty != nil")
	}
	if MemEqual([]byte{1}, []byte{1, 2}) {
		t.Errorf("length mismatch not detected")
	}

	// Equal iff byte-equal, regardless of the position of the
	// difference.
	for i := 0; i < 100; i++ {
		x := make([]byte, 64)
		if _, err := rand.Read(x); err != nil {
			t.Fatal(err)
		}
		y := append([]byte(nil), x...)
		if !MemEqual(x, y) {
			t.Fatalf("equal inputs compare unequal")
		}
		pos := i % len(x)
		y[pos] ^= 0x01
		if MemEqual(x, y) {
			t.Fatalf("difference at %v not detected", pos)
		}
	}
}

func TestHexdump(t *testing.T) {
	if Hexdump([]byte{0xde, 0xad, 0xbe, 0xef}) != "deadbeef" {
		t.Errorf("Hexdump: %v", Hexdump([]byte{0xde, 0xad, 0xbe,
			0xef}))
	}
}

func TestGetTime(t *testing.T) {
	ms := GetTime()
	// 2020-01-01 in milliseconds.
	if ms < 1577836800000 {
		t.Errorf("implausible time %v", ms)
	}
}

func TestSessionStateRoundTrip(t *testing.T) {
	state := &sessionState{
		issuedAt:           0x123456789a,
		suite:              CipherAES128GCMSHA256,
		maxEarlyDataSize:   16384,
		psk:                bytes.Repeat([]byte{0x7e}, 32),
		negotiatedProtocol: "h2",
		serverName:         "example.com",
	}
	buf := NewBuffer(nil)
	if err := state.encode(buf); err != nil {
		t.Fatal(err)
	}
	decoded, err := decodeSessionState(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if decoded.issuedAt != state.issuedAt ||
		decoded.suite != state.suite ||
		decoded.maxEarlyDataSize != state.maxEarlyDataSize ||
		!bytes.Equal(decoded.psk, state.psk) ||
		decoded.negotiatedProtocol != state.negotiatedProtocol ||
		decoded.serverName != state.serverName {
		t.Errorf("session state mismatch: %+v", decoded)
	}
}
