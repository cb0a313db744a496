//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package stdcrypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/markkurossi/tls13"
)

func TestKeyExchangeRoundTrip(t *testing.T) {
	for _, algo := range KeyExchanges {
		keyex, err := algo.Create(rand.Reader)
		if err != nil {
			t.Fatalf("%v: %v", algo, err)
		}
		peerPub, peerSecret, err := algo.Exchange(rand.Reader,
			keyex.PublicKey())
		if err != nil {
			t.Fatalf("%v: %v", algo, err)
		}
		secret, err := keyex.Exchange(peerPub)
		if err != nil {
			t.Fatalf("%v: %v", algo, err)
		}
		if !bytes.Equal(secret, peerSecret) {
			t.Errorf("%v: shared secrets differ", algo)
		}
		keyex.Release()
	}
}

func TestAEADAlgorithms(t *testing.T) {
	for _, algo := range []*tls13.AEADAlgorithm{
		AES128GCM, AES256GCM, ChaCha20Poly1305,
	} {
		key := make([]byte, algo.KeySize)
		aead, err := algo.New(key)
		if err != nil {
			t.Fatalf("%v: %v", algo.Name, err)
		}
		if aead.Overhead() != algo.TagSize {
			t.Errorf("%v: tag size %v, expected %v", algo.Name,
				aead.Overhead(), algo.TagSize)
		}
		if aead.NonceSize() != algo.IVSize {
			t.Errorf("%v: nonce size %v, expected %v", algo.Name,
				aead.NonceSize(), algo.IVSize)
		}
	}
}

func TestHashAlgorithms(t *testing.T) {
	if len(SHA256.Sum(nil)) != SHA256.DigestSize {
		t.Errorf("sha256 digest size")
	}
	if len(SHA384.Sum(nil)) != SHA384.DigestSize {
		t.Errorf("sha384 digest size")
	}
}

func TestSignVerify(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "example.com",
		},
		DNSNames:              []string{"example.com"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl,
		&key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	signer := NewCertificateSigner(key, rand.Reader)
	data := []byte("transcript data to be signed")

	scheme, sig, err := signer(nil, []tls13.SignatureScheme{
		tls13.SigSchemeRsaPssRsaeSha256,
		tls13.SigSchemeEcdsaSecp256r1Sha256,
	}, data)
	if err != nil {
		t.Fatal(err)
	}
	if scheme != tls13.SigSchemeEcdsaSecp256r1Sha256 {
		t.Errorf("selected scheme %v", scheme)
	}

	verifier := NewCertificateVerifier(VerifyOptions{
		InsecureSkipVerify: true,
	})
	verify, err := verifier(nil, [][]byte{der})
	if err != nil {
		t.Fatal(err)
	}
	if err := verify(data, sig); err != nil {
		t.Errorf("verify: %v", err)
	}
	if err := verify([]byte("other data"), sig); err == nil {
		t.Errorf("bad data verified")
	}
}

func TestSignerNoMutualScheme(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer := NewCertificateSigner(key, rand.Reader)
	_, _, err = signer(nil, []tls13.SignatureScheme{
		tls13.SigSchemeEd25519,
	}, []byte("data"))
	if err == nil {
		t.Errorf("signed with no mutual scheme")
	}
}
