//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"crypto/cipher"
	"crypto/hmac"
	"hash"
	"io"
)

// HashAlgorithm describes a hash function and its properties. The
// descriptor is immutable and shared; hash contexts created via New
// are per-use and owned by the caller.
type HashAlgorithm struct {
	Name       string
	BlockSize  int
	DigestSize int
	New        func() hash.Hash
}

// Sum computes a one-shot digest of data.
func (algo *HashAlgorithm) Sum(data []byte) []byte {
	h := algo.New()
	h.Write(data)
	return h.Sum(nil)
}

// EmptyDigest returns the digest of zero-length input.
func (algo *HashAlgorithm) EmptyDigest() []byte {
	return algo.Sum(nil)
}

// HMAC creates an HMAC context keyed with key.
func (algo *HashAlgorithm) HMAC(key []byte) hash.Hash {
	return hmac.New(algo.New, key)
}

// AEADAlgorithm describes an AEAD cipher. Live contexts are created
// per connection and epoch; they carry a static IV that is XORed with
// the record sequence number to produce the per-record nonce.
type AEADAlgorithm struct {
	Name    string
	KeySize int
	IVSize  int
	TagSize int
	New     func(key []byte) (cipher.AEAD, error)
}

// CipherSuite combines an AEAD algorithm and a hash algorithm under a
// TLS 1.3 cipher suite identifier.
type CipherSuite struct {
	ID   CipherSuiteID
	AEAD *AEADAlgorithm
	Hash *HashAlgorithm
}

func (suite *CipherSuite) String() string {
	return suite.ID.String()
}

// KeyExchangeContext is a live key exchange: an algorithm plus a
// freshly generated key pair. It is created when the ClientHello is
// generated; the shared secret computation can be deferred until the
// ServerHello arrives, allowing hardware-backed key operations.
type KeyExchangeContext interface {
	// PublicKey returns the public key to be sent to the peer.
	PublicKey() []byte
	// Exchange computes the shared secret with the peer's public
	// key. The context stays alive and can perform further
	// exchanges until it is released.
	Exchange(peerKey []byte) ([]byte, error)
	// Release frees the context.
	Release()
}

// KeyExchangeAlgorithm describes a key exchange group. Create starts
// an asynchronous exchange; Exchange performs a synchronous one,
// generating an ephemeral key pair and computing the shared secret in
// one call.
type KeyExchangeAlgorithm struct {
	ID       NamedGroup
	Create   func(rand io.Reader) (KeyExchangeContext, error)
	Exchange func(rand io.Reader, peerKey []byte) (
		pubkey, secret []byte, err error)
}

func (algo *KeyExchangeAlgorithm) String() string {
	return algo.ID.String()
}
