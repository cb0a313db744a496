//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

var testSHA256 = &HashAlgorithm{
	Name:       "sha256",
	BlockSize:  64,
	DigestSize: 32,
	New:        sha256.New,
}

func fromHex(t *testing.T, s string) []byte {
	t.Helper()
	data, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// The early secret of a handshake without a PSK and its "derived"
// expansion, from the RFC 8448 traces.
func TestKeyScheduleEarlySecret(t *testing.T) {
	sched := newKeySchedule("")
	sched.selectHash(testSHA256)
	sched.extract(nil)

	expected := fromHex(t,
		"33ad0a1c607ec03b09e6cd9893680ce210adf300aa1f2660e1b22e10f170f92a")
	if !bytes.Equal(sched.secret, expected) {
		t.Errorf("early secret: %x", sched.secret)
	}

	derived := hkdfExpandLabel(testSHA256, sched.secret, "derived",
		testSHA256.EmptyDigest(), 32, "")
	expected = fromHex(t,
		"6f2615a108c702c5678f54fc9dbab69716c076189c48250cebeac3576c3611ba")
	if !bytes.Equal(derived, expected) {
		t.Errorf("derived secret: %x", derived)
	}
}

func TestKeyScheduleTranscript(t *testing.T) {
	sched := newKeySchedule("")

	// Messages fed before hash selection are buffered.
	msg1 := []byte{byte(HTClientHello), 0, 0, 2, 0xaa, 0xbb}
	sched.updateHash(msg1)
	sched.selectHash(testSHA256)

	msg2 := []byte{byte(HTServerHello), 0, 0, 1, 0xcc}
	sched.updateHash(msg2)

	h := sha256.New()
	h.Write(msg1)
	h.Write(msg2)
	if !bytes.Equal(sched.transcriptHash(), h.Sum(nil)) {
		t.Errorf("transcript: %x", sched.transcriptHash())
	}

	// The snapshot does not disturb the running hash.
	msg3 := []byte{byte(HTFinished), 0, 0, 1, 0xdd}
	sched.updateHash(msg3)
	h.Write(msg3)
	if !bytes.Equal(sched.transcriptHash(), h.Sum(nil)) {
		t.Errorf("transcript after snapshot: %x",
			sched.transcriptHash())
	}
}

func TestKeyScheduleMessageHash(t *testing.T) {
	msg1 := []byte{byte(HTClientHello), 0, 0, 2, 0xaa, 0xbb}

	sched := newKeySchedule("")
	sched.selectHash(testSHA256)
	sched.updateHash(msg1)
	sched.rollMessageHash()

	digest := sha256.Sum256(msg1)
	h := sha256.New()
	h.Write([]byte{byte(HTMessageHash), 0, 0, 32})
	h.Write(digest[:])

	if !bytes.Equal(sched.transcriptHash(), h.Sum(nil)) {
		t.Errorf("message hash transcript: %x",
			sched.transcriptHash())
	}

	// The stateless-retry reconstruction produces the same
	// transcript.
	restored := newKeySchedule("")
	restored.selectHash(testSHA256)
	restored.injectMessageHash(digest[:])
	if !bytes.Equal(restored.transcriptHash(),
		sched.transcriptHash()) {
		t.Errorf("restored transcript mismatch")
	}
}

func TestFinishedMAC(t *testing.T) {
	sched := newKeySchedule("")
	sched.selectHash(testSHA256)
	sched.extract(nil)
	sched.updateHash([]byte{byte(HTClientHello), 0, 0, 1, 0x42})

	baseKey := bytes.Repeat([]byte{0x11}, 32)
	mac := sched.finishedMAC(baseKey)

	finishedKey := hkdfExpandLabel(testSHA256, baseKey, "finished",
		[]byte{}, 32, "")
	m := hmac.New(sha256.New, finishedKey)
	m.Write(sched.transcriptHash())
	if !bytes.Equal(mac, m.Sum(nil)) {
		t.Errorf("finished MAC: %x", mac)
	}
	if len(mac) != 32 {
		t.Errorf("finished MAC length %v", len(mac))
	}
}

func TestHKDFLabelPrefix(t *testing.T) {
	secret := bytes.Repeat([]byte{0x22}, 32)

	standard := hkdfExpandLabel(testSHA256, secret, "key", []byte{},
		16, "")
	dflt := hkdfExpandLabel(testSHA256, secret, "key", []byte{}, 16,
		hkdfLabelPrefix)
	if !bytes.Equal(standard, dflt) {
		t.Errorf("empty prefix does not select %q", hkdfLabelPrefix)
	}

	legacy := hkdfExpandLabel(testSHA256, secret, "key", []byte{}, 16,
		"quic ")
	if bytes.Equal(standard, legacy) {
		t.Errorf("legacy prefix ignored")
	}
}
