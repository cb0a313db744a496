//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"hash"

	"golang.org/x/crypto/hkdf"
)

// hkdfLabelPrefix is the label prefix of HKDF-Expand-Label as per
// RFC 8446, Section 7.1.
const hkdfLabelPrefix = "tls13 "

// hkdfExpandLabel implements HKDF-Expand-Label. An empty prefix
// selects the standard "tls13 " prefix; QUIC draft-17 and later
// consumers must use the standard prefix.
func hkdfExpandLabel(algo *HashAlgorithm, secret []byte, label string,
	hashValue []byte, length int, prefix string) []byte {

	if len(prefix) == 0 {
		prefix = hkdfLabelPrefix
	}

	// struct {
	//     uint16 length = Length;
	//     opaque label<7..255> = "tls13 " + Label;
	//     opaque context<0..255> = Context;
	// } HkdfLabel;

	var small [64]byte
	info := NewBuffer(small[:])
	defer info.Dispose()

	info.PushUint16(uint16(length))
	info.PushBlock(1, func() error {
		info.PushRaw([]byte(prefix))
		return info.PushRaw([]byte(label))
	})
	info.PushBlock(1, func() error {
		return info.PushRaw(hashValue)
	})

	out := make([]byte, length)
	n, err := hkdf.Expand(algo.New, secret, info.Bytes()).Read(out)
	if err != nil || n != length {
		panic("tls13: HKDF-Expand-Label failed unexpectedly")
	}
	return out
}

// hkdfExtract implements HKDF-Extract with the argument hash.
func hkdfExtract(algo *HashAlgorithm, ikm, salt []byte) []byte {
	return hkdf.Extract(algo.New, ikm, salt)
}

// keySchedule maintains the rolling transcript hash and the secret
// chain of RFC 8446, Section 7.1.
type keySchedule struct {
	hash        *HashAlgorithm
	transcript  hash.Hash
	secret      []byte
	generation  int
	labelPrefix string

	// handshake messages seen before the cipher suite selection
	// fixes the transcript hash
	pending []byte
}

// newKeySchedule creates a key schedule. The hash is selected later
// when the cipher suite is known; messages fed before that are
// buffered.
func newKeySchedule(labelPrefix string) *keySchedule {
	return &keySchedule{
		labelPrefix: labelPrefix,
	}
}

// selectHash finalizes the transcript hash algorithm on the first
// cipher-suite selection.
func (sched *keySchedule) selectHash(algo *HashAlgorithm) {
	if sched.transcript != nil {
		return
	}
	sched.hash = algo
	sched.transcript = algo.New()
	if len(sched.pending) > 0 {
		sched.transcript.Write(sched.pending)
		ClearMemory(sched.pending)
		sched.pending = nil
	}
	if sched.secret == nil {
		sched.secret = make([]byte, algo.DigestSize)
	}
}

// updateHash feeds a handshake message, including its 4-byte header,
// into the transcript.
func (sched *keySchedule) updateHash(data []byte) {
	if sched.transcript == nil {
		sched.pending = append(sched.pending, data...)
		return
	}
	sched.transcript.Write(data)
}

// transcriptHash returns a snapshot of the running transcript hash.
func (sched *keySchedule) transcriptHash() []byte {
	return sched.transcript.Sum(nil)
}

// rollMessageHash replaces the transcript with a synthetic
// message_hash message containing the digest of the messages so far.
// Performed when a HelloRetryRequest intervenes (RFC 8446, Section
// 4.4.1).
func (sched *keySchedule) rollMessageHash() {
	digest := sched.transcript.Sum(nil)

	hdr := [4]byte{
		byte(HTMessageHash), 0, 0, byte(sched.hash.DigestSize),
	}

	sched.transcript = sched.hash.New()
	sched.transcript.Write(hdr[:])
	sched.transcript.Write(digest)
}

// extract advances the secret chain: Early, Handshake, and Master
// secrets on successive calls. A nil ikm means the zero input of the
// corresponding chain step.
func (sched *keySchedule) extract(ikm []byte) {
	if ikm == nil {
		ikm = make([]byte, sched.hash.DigestSize)
	}
	if sched.generation != 0 {
		old := sched.secret
		sched.secret = hkdfExpandLabel(sched.hash, sched.secret,
			"derived", sched.hash.EmptyDigest(),
			sched.hash.DigestSize, sched.labelPrefix)
		ClearMemory(old)
	}
	sched.generation++

	old := sched.secret
	sched.secret = hkdfExtract(sched.hash, ikm, sched.secret)
	if &old[0] != &sched.secret[0] {
		ClearMemory(old)
	}
}

// injectMessageHash seeds a fresh transcript with a synthetic
// message_hash message carrying the argument digest. Used when
// restoring a stateless retry from a cookie.
func (sched *keySchedule) injectMessageHash(digest []byte) {
	hdr := [4]byte{
		byte(HTMessageHash), 0, 0, byte(len(digest)),
	}
	sched.transcript = sched.hash.New()
	sched.transcript.Write(hdr[:])
	sched.transcript.Write(digest)
}

// resetEarlySecret restarts the secret chain without a PSK: the
// client offered one but the server declined it. The transcript is
// left untouched.
func (sched *keySchedule) resetEarlySecret() {
	ClearMemory(sched.secret)
	sched.secret = make([]byte, sched.hash.DigestSize)
	sched.generation = 0
	sched.extract(nil)
}

// deriveSecret performs Derive-Secret over the current secret. A nil
// hashValue selects the running transcript snapshot.
func (sched *keySchedule) deriveSecret(label string,
	hashValue []byte) []byte {

	if hashValue == nil {
		hashValue = sched.transcriptHash()
	}
	return hkdfExpandLabel(sched.hash, sched.secret, label, hashValue,
		sched.hash.DigestSize, sched.labelPrefix)
}

// expandLabel performs HKDF-Expand-Label over an explicit secret with
// the schedule's hash and label prefix.
func (sched *keySchedule) expandLabel(secret []byte, label string,
	hashValue []byte, length int) []byte {

	return hkdfExpandLabel(sched.hash, secret, label, hashValue, length,
		sched.labelPrefix)
}

// finishedMAC computes the Finished verify_data for the argument base
// key over the current transcript: HMAC(finished_key,
// transcript_hash).
func (sched *keySchedule) finishedMAC(baseKey []byte) []byte {
	finishedKey := sched.expandLabel(baseKey, "finished", []byte{},
		sched.hash.DigestSize)
	defer ClearMemory(finishedKey)

	mac := sched.hash.HMAC(finishedKey)
	mac.Write(sched.transcriptHash())
	return mac.Sum(nil)
}

// dispose wipes the schedule's key material.
func (sched *keySchedule) dispose() {
	if sched.secret != nil {
		ClearMemory(sched.secret)
		sched.secret = nil
	}
	if sched.pending != nil {
		ClearMemory(sched.pending)
		sched.pending = nil
	}
}
