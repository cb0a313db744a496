//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package certcomp

import (
	"bytes"
	"testing"

	"github.com/markkurossi/tls13"
)

func TestRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("certificate "), 100)

	for _, algo := range Algorithms {
		compressed, err := Compress(algo, data)
		if err != nil {
			t.Fatalf("%v: %v", algo, err)
		}
		if len(compressed) >= len(data) {
			t.Errorf("%v: no compression: %v >= %v", algo,
				len(compressed), len(data))
		}
		output := make([]byte, len(data))
		if err := Decompress(algo, output, compressed); err != nil {
			t.Fatalf("%v: %v", algo, err)
		}
		if !bytes.Equal(output, data) {
			t.Errorf("%v: data mismatch", algo)
		}
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 100)
	compressed, err := Compress(tls13.CertCompressionZlib, data)
	if err != nil {
		t.Fatal(err)
	}

	short := make([]byte, len(data)-1)
	if err := Decompress(tls13.CertCompressionZlib, short,
		compressed); err == nil {
		t.Errorf("short output accepted")
	}

	long := make([]byte, len(data)+1)
	if err := Decompress(tls13.CertCompressionZlib, long,
		compressed); err == nil {
		t.Errorf("long output accepted")
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	if _, err := Compress(42, []byte("data")); err == nil {
		t.Errorf("unknown algorithm accepted")
	}
	if err := Decompress(42, make([]byte, 4),
		[]byte("data")); err == nil {
		t.Errorf("unknown algorithm accepted")
	}
}
