//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"crypto/cipher"
)

// aeadContext is a live AEAD instance: the cipher keyed for one
// traffic secret plus the static IV. The per-record nonce is the
// static IV XORed with the right-aligned 64-bit sequence number.
type aeadContext struct {
	algo     *AEADAlgorithm
	aead     cipher.AEAD
	staticIV []byte
}

// newAEADContext creates an AEAD context from a traffic secret,
// expanding the secret into a key and a static IV.
func newAEADContext(algo *AEADAlgorithm, hash *HashAlgorithm,
	secret []byte, labelPrefix string) (*aeadContext, error) {

	key := hkdfExpandLabel(hash, secret, "key", []byte{}, algo.KeySize,
		labelPrefix)
	defer ClearMemory(key)
	iv := hkdfExpandLabel(hash, secret, "iv", []byte{}, algo.IVSize,
		labelPrefix)

	aead, err := algo.New(key)
	if err != nil {
		return nil, internalErrorf(ErrorLibrary, "AEAD setup: %v", err)
	}
	return &aeadContext{
		algo:     algo,
		aead:     aead,
		staticIV: iv,
	}, nil
}

// buildIV computes the per-record nonce for the argument sequence
// number.
func (ctx *aeadContext) buildIV(seq uint64) []byte {
	iv := make([]byte, len(ctx.staticIV))
	copy(iv, ctx.staticIV)

	var seqbuf [8]byte
	bo.PutUint64(seqbuf[:], seq)

	for i := 0; i < len(seqbuf); i++ {
		iv[len(iv)-len(seqbuf)+i] ^= seqbuf[i]
	}
	return iv
}

// Seal encrypts plaintext with the record sequence number and
// additional data, appending the result to dst.
func (ctx *aeadContext) Seal(dst, plaintext, aad []byte,
	seq uint64) []byte {

	return ctx.aead.Seal(dst, ctx.buildIV(seq), plaintext, aad)
}

// Open decrypts ciphertext with the record sequence number and
// additional data.
func (ctx *aeadContext) Open(ciphertext, aad []byte,
	seq uint64) ([]byte, error) {

	plaintext, err := ctx.aead.Open(nil, ctx.buildIV(seq), ciphertext,
		aad)
	if err != nil {
		return nil, alertError(AlertBadRecordMAC)
	}
	return plaintext, nil
}

func (ctx *aeadContext) dispose() {
	ClearMemory(ctx.staticIV)
}

// trafficProtection is the per-direction record protection state: the
// AEAD context of the current epoch, the 64-bit record sequence, and
// the traffic secret the context was derived from.
type trafficProtection struct {
	ctx    *aeadContext
	secret []byte
	seq    uint64
	epoch  Epoch
}

// setup installs a new traffic secret, replacing the AEAD context and
// resetting the sequence number.
func (tp *trafficProtection) setup(suite *CipherSuite, secret []byte,
	epoch Epoch, labelPrefix string) error {

	ctx, err := newAEADContext(suite.AEAD, suite.Hash, secret,
		labelPrefix)
	if err != nil {
		return err
	}
	tp.dispose()

	tp.ctx = ctx
	tp.secret = append([]byte(nil), secret...)
	tp.seq = 0
	tp.epoch = epoch
	return nil
}

// next derives the successor traffic secret as per RFC 8446, Section
// 7.2 and installs it.
func (tp *trafficProtection) next(suite *CipherSuite,
	labelPrefix string) error {

	secret := hkdfExpandLabel(suite.Hash, tp.secret, "traffic upd",
		[]byte{}, suite.Hash.DigestSize, labelPrefix)
	defer ClearMemory(secret)
	return tp.setup(suite, secret, tp.epoch, labelPrefix)
}

func (tp *trafficProtection) active() bool {
	return tp.ctx != nil
}

func (tp *trafficProtection) dispose() {
	if tp.ctx != nil {
		tp.ctx.dispose()
		tp.ctx = nil
	}
	if tp.secret != nil {
		ClearMemory(tp.secret)
		tp.secret = nil
	}
}

// sealRecord frames data of the argument content type into one or
// more records, encrypting them under the traffic protection if it is
// active.
func sealRecord(buf *Buffer, tp *trafficProtection, ct ContentType,
	data []byte) error {

	if !tp.active() {
		// Unprotected records before the first key install.
		for {
			n := len(data)
			if n > maxPlaintext {
				n = maxPlaintext
			}
			if err := buf.PushUint8(uint8(ct)); err != nil {
				return err
			}
			buf.PushUint16(uint16(VersionTLS12))
			if err := buf.PushBlock(2, func() error {
				return buf.PushRaw(data[:n])
			}); err != nil {
				return err
			}
			data = data[n:]
			if len(data) == 0 {
				break
			}
		}
		return nil
	}

	for {
		n := len(data)
		if n > maxPlaintext {
			n = maxPlaintext
		}
		chunk := data[:n]
		data = data[n:]

		if tp.seq >= maxRecordsPerKey {
			return internalErrorf(ErrorLibrary,
				"traffic key overused; key update required")
		}

		// TLSInnerPlaintext: content || type, no padding.
		cipherLen := n + 1 + tp.ctx.algo.TagSize

		var hdr [recordHeaderLen]byte
		hdr[0] = byte(CTApplicationData)
		bo.PutUint16(hdr[1:3], uint16(VersionTLS12))
		bo.PutUint16(hdr[3:5], uint16(cipherLen))

		if err := buf.PushRaw(hdr[:]); err != nil {
			return err
		}
		if err := buf.Reserve(cipherLen); err != nil {
			return err
		}

		inner := make([]byte, n+1)
		copy(inner, chunk)
		inner[n] = byte(ct)

		sealed := tp.ctx.Seal(buf.base[buf.off:buf.off], inner, hdr[:],
			tp.seq)
		buf.off += len(sealed)
		tp.seq++
		ClearMemory(inner)

		if len(data) == 0 {
			break
		}
	}
	return nil
}

// openRecord parses and decrypts the first record within input. It
// returns the inner content type, the plaintext, and the number of
// input bytes consumed. ErrInProgress is returned when the record is
// incomplete.
func openRecord(tp *trafficProtection, input []byte) (ContentType,
	[]byte, int, error) {

	if len(input) < recordHeaderLen {
		return CTInvalid, nil, 0, ErrInProgress
	}
	ct := ContentType(input[0])
	length := int(bo.Uint16(input[3:5]))

	if length > maxCiphertext {
		return CTInvalid, nil, 0, alertError(AlertDecodeError)
	}
	if len(input) < recordHeaderLen+length {
		return CTInvalid, nil, 0, ErrInProgress
	}
	body := input[recordHeaderLen : recordHeaderLen+length]
	consumed := recordHeaderLen + length

	if !tp.active() {
		return ct, body, consumed, nil
	}
	if ct == CTChangeCipherSpec {
		return ct, body, consumed, nil
	}
	if ct != CTApplicationData {
		// Only ChangeCipherSpec may arrive unprotected once keys
		// are installed.
		return CTInvalid, nil, consumed,
			alertError(AlertUnexpectedMessage)
	}

	plaintext, err := tp.ctx.Open(body, input[:recordHeaderLen], tp.seq)
	if err != nil {
		return CTInvalid, nil, consumed, err
	}
	tp.seq++

	// Strip the zero padding and the inner content type.
	i := len(plaintext)
	for i > 0 && plaintext[i-1] == 0 {
		i--
	}
	if i == 0 {
		return CTInvalid, nil, consumed,
			alertError(AlertUnexpectedMessage)
	}
	inner := ContentType(plaintext[i-1])
	return inner, plaintext[:i-1], consumed, nil
}

// changeCipherSpecRecord is the middlebox-compatibility
// ChangeCipherSpec record.
var changeCipherSpecRecord = []byte{0x14, 0x03, 0x03, 0x00, 0x01, 0x01}
