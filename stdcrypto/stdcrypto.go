//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package stdcrypto provides crypto providers for the TLS 1.3 engine
// built on the Go standard library and golang.org/x/crypto: X25519
// and NIST curve key exchange, AES-GCM and ChaCha20-Poly1305 AEADs,
// the SHA-2 hashes, and certificate signing and verification.
package stdcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"crypto/sha512"
	"io"

	"github.com/markkurossi/tls13"
	"golang.org/x/crypto/chacha20poly1305"
)

// SHA256 is the SHA-256 hash algorithm.
var SHA256 = &tls13.HashAlgorithm{
	Name:       "sha256",
	BlockSize:  64,
	DigestSize: 32,
	New:        sha256.New,
}

// SHA384 is the SHA-384 hash algorithm.
var SHA384 = &tls13.HashAlgorithm{
	Name:       "sha384",
	BlockSize:  128,
	DigestSize: 48,
	New:        sha512.New384,
}

// AES128GCM is the AES-128-GCM AEAD.
var AES128GCM = &tls13.AEADAlgorithm{
	Name:    "aes128gcm",
	KeySize: 16,
	IVSize:  12,
	TagSize: 16,
	New:     newAESGCM,
}

// AES256GCM is the AES-256-GCM AEAD.
var AES256GCM = &tls13.AEADAlgorithm{
	Name:    "aes256gcm",
	KeySize: 32,
	IVSize:  12,
	TagSize: 16,
	New:     newAESGCM,
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// ChaCha20Poly1305 is the ChaCha20-Poly1305 AEAD.
var ChaCha20Poly1305 = &tls13.AEADAlgorithm{
	Name:    "chacha20poly1305",
	KeySize: 32,
	IVSize:  12,
	TagSize: 16,
	New:     chacha20poly1305.New,
}

// Cipher suites.
var (
	AES128GCMSHA256 = &tls13.CipherSuite{
		ID:   tls13.CipherAES128GCMSHA256,
		AEAD: AES128GCM,
		Hash: SHA256,
	}
	AES256GCMSHA384 = &tls13.CipherSuite{
		ID:   tls13.CipherAES256GCMSHA384,
		AEAD: AES256GCM,
		Hash: SHA384,
	}
	ChaCha20Poly1305SHA256 = &tls13.CipherSuite{
		ID:   tls13.CipherChaCha20Poly1305SHA256,
		AEAD: ChaCha20Poly1305,
		Hash: SHA256,
	}
)

// CipherSuites lists all supported cipher suites in the default
// preference order.
var CipherSuites = []*tls13.CipherSuite{
	AES128GCMSHA256,
	AES256GCMSHA384,
	ChaCha20Poly1305SHA256,
}

// ecdhKeyExchange implements tls13.KeyExchangeContext over
// crypto/ecdh.
type ecdhKeyExchange struct {
	curve ecdh.Curve
	priv  *ecdh.PrivateKey
}

func (keyex *ecdhKeyExchange) PublicKey() []byte {
	return keyex.priv.PublicKey().Bytes()
}

func (keyex *ecdhKeyExchange) Exchange(peerKey []byte) ([]byte, error) {
	pub, err := keyex.curve.NewPublicKey(peerKey)
	if err != nil {
		return nil, err
	}
	return keyex.priv.ECDH(pub)
}

func (keyex *ecdhKeyExchange) Release() {
	keyex.priv = nil
}

func newECDHAlgorithm(id tls13.NamedGroup,
	curve ecdh.Curve) *tls13.KeyExchangeAlgorithm {

	return &tls13.KeyExchangeAlgorithm{
		ID: id,
		Create: func(rand io.Reader) (tls13.KeyExchangeContext,
			error) {
			priv, err := curve.GenerateKey(rand)
			if err != nil {
				return nil, err
			}
			return &ecdhKeyExchange{
				curve: curve,
				priv:  priv,
			}, nil
		},
		Exchange: func(rand io.Reader, peerKey []byte) ([]byte,
			[]byte, error) {
			priv, err := curve.GenerateKey(rand)
			if err != nil {
				return nil, nil, err
			}
			pub, err := curve.NewPublicKey(peerKey)
			if err != nil {
				return nil, nil, err
			}
			secret, err := priv.ECDH(pub)
			if err != nil {
				return nil, nil, err
			}
			return priv.PublicKey().Bytes(), secret, nil
		},
	}
}

// Key exchange algorithms.
var (
	X25519    = newECDHAlgorithm(tls13.GroupX25519, ecdh.X25519())
	Secp256r1 = newECDHAlgorithm(tls13.GroupSecp256r1, ecdh.P256())
	Secp384r1 = newECDHAlgorithm(tls13.GroupSecp384r1, ecdh.P384())
	Secp521r1 = newECDHAlgorithm(tls13.GroupSecp521r1, ecdh.P521())
)

// KeyExchanges lists all supported key exchange algorithms in the
// default preference order.
var KeyExchanges = []*tls13.KeyExchangeAlgorithm{
	X25519,
	Secp256r1,
	Secp384r1,
	Secp521r1,
}
