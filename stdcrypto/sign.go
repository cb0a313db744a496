//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package stdcrypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/markkurossi/tls13"
)

// schemeInfo maps a signature scheme to its signing parameters.
type schemeInfo struct {
	hash crypto.Hash
	opts crypto.SignerOpts
}

var schemeInfos = map[tls13.SignatureScheme]schemeInfo{
	tls13.SigSchemeEcdsaSecp256r1Sha256: {
		hash: crypto.SHA256,
		opts: crypto.SHA256,
	},
	tls13.SigSchemeEcdsaSecp384r1Sha384: {
		hash: crypto.SHA384,
		opts: crypto.SHA384,
	},
	tls13.SigSchemeEcdsaSecp521r1Sha512: {
		hash: crypto.SHA512,
		opts: crypto.SHA512,
	},
	tls13.SigSchemeEd25519: {
		hash: 0,
		opts: crypto.Hash(0),
	},
	tls13.SigSchemeRsaPssRsaeSha256: {
		hash: crypto.SHA256,
		opts: &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       crypto.SHA256,
		},
	},
	tls13.SigSchemeRsaPssRsaeSha384: {
		hash: crypto.SHA384,
		opts: &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       crypto.SHA384,
		},
	},
	tls13.SigSchemeRsaPssRsaeSha512: {
		hash: crypto.SHA512,
		opts: &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       crypto.SHA512,
		},
	},
}

// schemesForKey returns the signature schemes the private key can
// produce, in preference order.
func schemesForKey(key crypto.Signer) []tls13.SignatureScheme {
	switch pub := key.Public().(type) {
	case *ecdsa.PublicKey:
		switch pub.Curve {
		case elliptic.P256():
			return []tls13.SignatureScheme{
				tls13.SigSchemeEcdsaSecp256r1Sha256,
			}
		case elliptic.P384():
			return []tls13.SignatureScheme{
				tls13.SigSchemeEcdsaSecp384r1Sha384,
			}
		case elliptic.P521():
			return []tls13.SignatureScheme{
				tls13.SigSchemeEcdsaSecp521r1Sha512,
			}
		}
	case ed25519.PublicKey:
		return []tls13.SignatureScheme{tls13.SigSchemeEd25519}
	case *rsa.PublicKey:
		return []tls13.SignatureScheme{
			tls13.SigSchemeRsaPssRsaeSha256,
			tls13.SigSchemeRsaPssRsaeSha384,
			tls13.SigSchemeRsaPssRsaeSha512,
		}
	}
	return nil
}

// NewCertificateSigner creates a SignCertificate callback over the
// private key.
func NewCertificateSigner(key crypto.Signer, rand io.Reader) func(
	c *tls13.Conn, offered []tls13.SignatureScheme,
	data []byte) (tls13.SignatureScheme, []byte, error) {

	schemes := schemesForKey(key)

	return func(c *tls13.Conn, offered []tls13.SignatureScheme,
		data []byte) (tls13.SignatureScheme, []byte, error) {

		for _, own := range schemes {
			for _, scheme := range offered {
				if scheme != own {
					continue
				}
				info := schemeInfos[scheme]
				digest := data
				if info.hash != 0 {
					h := info.hash.New()
					h.Write(data)
					digest = h.Sum(nil)
				}
				sig, err := key.Sign(rand, digest, info.opts)
				if err != nil {
					return 0, nil, err
				}
				return scheme, sig, nil
			}
		}
		return 0, nil, errors.New(
			"stdcrypto: no mutual signature scheme")
	}
}

// verifySignature checks a CertificateVerify signature with the
// certificate public key.
func verifySignature(cert *x509.Certificate,
	scheme tls13.SignatureScheme, data, sig []byte) error {

	info, ok := schemeInfos[scheme]
	if !ok {
		return fmt.Errorf("stdcrypto: unsupported scheme %v", scheme)
	}
	digest := data
	if info.hash != 0 {
		h := info.hash.New()
		h.Write(data)
		digest = h.Sum(nil)
	}

	switch pub := cert.PublicKey.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pub, digest, sig) {
			return errors.New("stdcrypto: invalid ECDSA signature")
		}
		return nil
	case ed25519.PublicKey:
		if !ed25519.Verify(pub, data, sig) {
			return errors.New("stdcrypto: invalid Ed25519 signature")
		}
		return nil
	case *rsa.PublicKey:
		opts, ok := info.opts.(*rsa.PSSOptions)
		if !ok {
			return errors.New("stdcrypto: unsupported RSA scheme")
		}
		return rsa.VerifyPSS(pub, info.hash, digest, sig, opts)
	default:
		return errors.New("stdcrypto: unsupported public key type")
	}
}

// VerifyOptions configure NewCertificateVerifier.
type VerifyOptions struct {
	// Roots are the trusted root certificates; nil uses the system
	// pool.
	Roots *x509.CertPool
	// InsecureSkipVerify disables chain validation; the signature
	// over the handshake transcript is still checked.
	InsecureSkipVerify bool
	// Now overrides the validity check time.
	Now func() time.Time
}

// NewCertificateVerifier creates a VerifyCertificate callback that
// validates the peer chain with crypto/x509 and checks the
// CertificateVerify signature against the leaf key. The scheme used
// by the peer is not known at verification time, so the returned
// verifier accepts any scheme the leaf key supports.
func NewCertificateVerifier(opts VerifyOptions) func(c *tls13.Conn,
	certs [][]byte) (tls13.VerifySignFunc, error) {

	return func(c *tls13.Conn, certs [][]byte) (tls13.VerifySignFunc,
		error) {

		if len(certs) == 0 {
			return nil, errors.New("stdcrypto: empty certificate chain")
		}
		leaf, err := x509.ParseCertificate(certs[0])
		if err != nil {
			return nil, err
		}
		if !opts.InsecureSkipVerify {
			intermediates := x509.NewCertPool()
			for _, der := range certs[1:] {
				cert, err := x509.ParseCertificate(der)
				if err != nil {
					return nil, err
				}
				intermediates.AddCert(cert)
			}
			xopts := x509.VerifyOptions{
				Roots:         opts.Roots,
				Intermediates: intermediates,
				DNSName:       c.ServerName(),
				KeyUsages: []x509.ExtKeyUsage{
					x509.ExtKeyUsageAny,
				},
			}
			if opts.Now != nil {
				xopts.CurrentTime = opts.Now()
			}
			if _, err := leaf.Verify(xopts); err != nil {
				return nil, err
			}
		}

		var candidates []tls13.SignatureScheme
		switch pub := leaf.PublicKey.(type) {
		case *ecdsa.PublicKey:
			switch pub.Curve {
			case elliptic.P256():
				candidates = []tls13.SignatureScheme{
					tls13.SigSchemeEcdsaSecp256r1Sha256,
				}
			case elliptic.P384():
				candidates = []tls13.SignatureScheme{
					tls13.SigSchemeEcdsaSecp384r1Sha384,
				}
			case elliptic.P521():
				candidates = []tls13.SignatureScheme{
					tls13.SigSchemeEcdsaSecp521r1Sha512,
				}
			}
		case ed25519.PublicKey:
			candidates = []tls13.SignatureScheme{
				tls13.SigSchemeEd25519,
			}
		case *rsa.PublicKey:
			candidates = []tls13.SignatureScheme{
				tls13.SigSchemeRsaPssRsaeSha256,
				tls13.SigSchemeRsaPssRsaeSha384,
				tls13.SigSchemeRsaPssRsaeSha512,
			}
		}
		if len(candidates) == 0 {
			return nil, errors.New(
				"stdcrypto: unsupported public key type")
		}

		return func(data, sig []byte) error {
			if data == nil && sig == nil {
				// released without verification
				return nil
			}
			var lastErr error
			for _, scheme := range candidates {
				lastErr = verifySignature(leaf, scheme, data, sig)
				if lastErr == nil {
					return nil
				}
			}
			return lastErr
		}, nil
	}
}
