//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package certcomp implements the RFC 8879 certificate compression
// algorithms: zlib, brotli, and zstd.
package certcomp

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/markkurossi/tls13"
)

// Compress compresses data with the argument algorithm.
func Compress(algorithm tls13.CertificateCompressionAlgorithm,
	data []byte) ([]byte, error) {

	var buf bytes.Buffer
	var w io.WriteCloser
	var err error

	switch algorithm {
	case tls13.CertCompressionZlib:
		w = zlib.NewWriter(&buf)
	case tls13.CertCompressionBrotli:
		w = brotli.NewWriter(&buf)
	case tls13.CertCompressionZstd:
		w, err = zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("certcomp: unsupported algorithm %d",
			algorithm)
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress expands data into output, which must be sized to the
// advertised uncompressed length. A short or overlong result is an
// error.
func Decompress(algorithm tls13.CertificateCompressionAlgorithm,
	output, data []byte) error {

	var r io.Reader
	var err error

	switch algorithm {
	case tls13.CertCompressionZlib:
		r, err = zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return err
		}
	case tls13.CertCompressionBrotli:
		r = brotli.NewReader(bytes.NewReader(data))
	case tls13.CertCompressionZstd:
		var dec *zstd.Decoder
		dec, err = zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return err
		}
		defer dec.Close()
		r = dec
	default:
		return fmt.Errorf("certcomp: unsupported algorithm %d",
			algorithm)
	}

	if _, err := io.ReadFull(r, output); err != nil {
		return fmt.Errorf("certcomp: truncated certificate: %v", err)
	}
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n != 0 {
		return fmt.Errorf("certcomp: certificate length mismatch")
	}
	return nil
}

// Algorithms lists the supported algorithms in preference order.
var Algorithms = []tls13.CertificateCompressionAlgorithm{
	tls13.CertCompressionBrotli,
	tls13.CertCompressionZstd,
	tls13.CertCompressionZlib,
}

// NewDecompressor creates a DecompressCertificate callback that
// accepts all supported algorithms.
func NewDecompressor() *tls13.DecompressCertificate {
	return &tls13.DecompressCertificate{
		SupportedAlgorithms: Algorithms,
		Decompress: func(c *tls13.Conn,
			algorithm tls13.CertificateCompressionAlgorithm,
			output, input []byte) error {
			return Decompress(algorithm, output, input)
		},
	}
}

// NewCompressor creates a CompressCertificate callback for the
// argument algorithm.
func NewCompressor(
	algorithm tls13.CertificateCompressionAlgorithm) *tls13.CompressCertificate {

	return &tls13.CompressCertificate{
		Algorithm: algorithm,
		Compress: func(c *tls13.Conn, input []byte) ([]byte, error) {
			return Compress(algorithm, input)
		},
	}
}
