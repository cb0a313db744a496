//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"testing"
)

var testAES128GCM = &AEADAlgorithm{
	Name:    "aes128gcm",
	KeySize: 16,
	IVSize:  12,
	TagSize: 16,
	New: func(key []byte) (cipher.AEAD, error) {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	},
}

var testSuite = &CipherSuite{
	ID:   CipherAES128GCMSHA256,
	AEAD: testAES128GCM,
	Hash: testSHA256,
}

func testProtectionPair(t *testing.T) (enc, dec *trafficProtection) {
	t.Helper()
	secret := bytes.Repeat([]byte{0x5a}, 32)
	enc = new(trafficProtection)
	dec = new(trafficProtection)
	if err := enc.setup(testSuite, secret, EpochApplication,
		""); err != nil {
		t.Fatal(err)
	}
	if err := dec.setup(testSuite, secret, EpochApplication,
		""); err != nil {
		t.Fatal(err)
	}
	return enc, dec
}

func TestRecordRoundTrip(t *testing.T) {
	enc, dec := testProtectionPair(t)

	buf := NewBuffer(nil)
	if err := sealRecord(buf, enc, CTApplicationData,
		[]byte("ping")); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	if ContentType(data[0]) != CTApplicationData {
		t.Errorf("outer type %v", ContentType(data[0]))
	}
	expectedLen := 4 + 1 + testAES128GCM.TagSize
	if int(bo.Uint16(data[3:5])) != expectedLen {
		t.Errorf("record length %v, expected %v",
			bo.Uint16(data[3:5]), expectedLen)
	}

	ct, plain, n, err := openRecord(dec, data)
	if err != nil {
		t.Fatal(err)
	}
	if ct != CTApplicationData {
		t.Errorf("inner type %v", ct)
	}
	if !bytes.Equal(plain, []byte("ping")) {
		t.Errorf("plaintext %x", plain)
	}
	if n != len(data) {
		t.Errorf("consumed %v of %v", n, len(data))
	}
}

func TestRecordBadMAC(t *testing.T) {
	enc, dec := testProtectionPair(t)

	buf := NewBuffer(nil)
	if err := sealRecord(buf, enc, CTApplicationData,
		[]byte("ping")); err != nil {
		t.Fatal(err)
	}
	data := append([]byte(nil), buf.Bytes()...)
	data[recordHeaderLen] ^= 0x01

	_, _, _, err := openRecord(dec, data)
	if err == nil {
		t.Fatal("tampered record accepted")
	}
	e, ok := err.(*Error)
	if !ok || e.Code != int(AlertBadRecordMAC) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRecordSequence(t *testing.T) {
	enc, dec := testProtectionPair(t)

	for i := 0; i < 3; i++ {
		buf := NewBuffer(nil)
		if err := sealRecord(buf, enc, CTApplicationData,
			[]byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
		ct, plain, _, err := openRecord(dec, buf.Bytes())
		if err != nil {
			t.Fatalf("record %v: %v", i, err)
		}
		if ct != CTApplicationData || len(plain) != 1 ||
			plain[0] != byte(i) {
			t.Errorf("record %v: %v %x", i, ct, plain)
		}
	}
	if enc.seq != 3 || dec.seq != 3 {
		t.Errorf("sequence: enc %v, dec %v", enc.seq, dec.seq)
	}

	// Wrong sequence number fails the MAC.
	buf := NewBuffer(nil)
	if err := sealRecord(buf, enc, CTApplicationData,
		[]byte("x")); err != nil {
		t.Fatal(err)
	}
	dec.seq = 0
	if _, _, _, err := openRecord(dec, buf.Bytes()); err == nil {
		t.Errorf("wrong sequence accepted")
	}
}

func TestRecordFragmentation(t *testing.T) {
	enc, dec := testProtectionPair(t)

	data := bytes.Repeat([]byte{0x42}, maxPlaintext+100)
	buf := NewBuffer(nil)
	if err := sealRecord(buf, enc, CTApplicationData, data); err != nil {
		t.Fatal(err)
	}

	var plain []byte
	input := buf.Bytes()
	for len(input) > 0 {
		_, chunk, n, err := openRecord(dec, input)
		if err != nil {
			t.Fatal(err)
		}
		plain = append(plain, chunk...)
		input = input[n:]
	}
	if !bytes.Equal(plain, data) {
		t.Errorf("fragmented data mismatch: %v bytes", len(plain))
	}
	if enc.seq != 2 {
		t.Errorf("expected 2 records, sequence %v", enc.seq)
	}
}

func TestRecordPartial(t *testing.T) {
	enc, dec := testProtectionPair(t)

	buf := NewBuffer(nil)
	if err := sealRecord(buf, enc, CTApplicationData,
		[]byte("ping")); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	for cut := 0; cut < len(data); cut++ {
		_, _, _, err := openRecord(dec, data[:cut])
		if err != ErrInProgress {
			t.Fatalf("cut %v: %v", cut, err)
		}
	}
	if _, _, _, err := openRecord(dec, data); err != nil {
		t.Fatal(err)
	}
}

func TestRecordPlaintext(t *testing.T) {
	tp := new(trafficProtection)

	buf := NewBuffer(nil)
	msg := []byte{byte(HTClientHello), 0, 0, 0}
	if err := sealRecord(buf, tp, CTHandshake, msg); err != nil {
		t.Fatal(err)
	}
	expected := []byte{0x16, 0x03, 0x03, 0x00, 0x04}
	if !bytes.Equal(buf.Bytes()[:5], expected) {
		t.Errorf("header %x", buf.Bytes()[:5])
	}

	ct, body, n, err := openRecord(tp, buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if ct != CTHandshake || !bytes.Equal(body, msg) ||
		n != buf.Len() {
		t.Errorf("plaintext record: %v %x %v", ct, body, n)
	}
}

func TestKeyUpdateDerivation(t *testing.T) {
	enc, dec := testProtectionPair(t)

	if err := enc.next(testSuite, ""); err != nil {
		t.Fatal(err)
	}
	if err := dec.next(testSuite, ""); err != nil {
		t.Fatal(err)
	}
	if enc.seq != 0 || dec.seq != 0 {
		t.Errorf("sequence not reset: %v %v", enc.seq, dec.seq)
	}

	buf := NewBuffer(nil)
	if err := sealRecord(buf, enc, CTApplicationData,
		[]byte("rekeyed")); err != nil {
		t.Fatal(err)
	}
	_, plain, _, err := openRecord(dec, buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plain, []byte("rekeyed")) {
		t.Errorf("plaintext %x", plain)
	}
}
