//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"encoding/binary"
	"fmt"
)

var bo = binary.BigEndian

// Record layer limits from RFC 8446, Section 5.1 and 5.2.
const (
	maxPlaintext    = 16384
	maxCiphertext   = 16384 + 256
	recordHeaderLen = 5
	maxHandshake    = 65536

	helloRandomSize = 32
	maxDigestSize   = 64

	// Sending more than 2^48 records under one key is forbidden;
	// rekey before getting close.
	maxRecordsPerKey = 1 << 48
)

// ContentType specifies record layer record types.
type ContentType uint8

// Record layer record types.
const (
	CTInvalid          ContentType = 0
	CTChangeCipherSpec ContentType = 20
	CTAlert            ContentType = 21
	CTHandshake        ContentType = 22
	CTApplicationData  ContentType = 23
)

func (ct ContentType) String() string {
	name, ok := contentTypes[ct]
	if ok {
		return name
	}
	return fmt.Sprintf("{ContentType %d}", uint8(ct))
}

var contentTypes = map[ContentType]string{
	CTInvalid:          "invalid",
	CTChangeCipherSpec: "change_cipher_spec",
	CTAlert:            "alert",
	CTHandshake:        "handshake",
	CTApplicationData:  "application_data",
}

// ProtocolVersion defines TLS protocol version.
type ProtocolVersion uint16

// Protocol versions.
const (
	VersionTLS12 ProtocolVersion = 0x0303
	VersionTLS13 ProtocolVersion = 0x0304
)

func (v ProtocolVersion) String() string {
	name, ok := protocolVersions[v]
	if ok {
		return name
	}
	return fmt.Sprintf("%04x", uint(v))
}

var protocolVersions = map[ProtocolVersion]string{
	0x0300: "SSL 3.0",
	0x0301: "TLS 1.0",
	0x0302: "TLS 1.1",
	0x0303: "TLS 1.2",
	0x0304: "TLS 1.3",
}

// HandshakeType defines handshake message types.
type HandshakeType uint8

// Handshake message types.
const (
	HTClientHello           HandshakeType = 1
	HTServerHello           HandshakeType = 2
	HTNewSessionTicket      HandshakeType = 4
	HTEndOfEarlyData        HandshakeType = 5
	HTEncryptedExtensions   HandshakeType = 8
	HTCertificate           HandshakeType = 11
	HTCertificateRequest    HandshakeType = 13
	HTCertificateVerify     HandshakeType = 15
	HTFinished              HandshakeType = 20
	HTKeyUpdate             HandshakeType = 24
	HTCompressedCertificate HandshakeType = 25
	HTMessageHash           HandshakeType = 254
)

func (ht HandshakeType) String() string {
	name, ok := handshakeTypes[ht]
	if ok {
		return name
	}
	return fmt.Sprintf("{HandshakeType %d}", uint8(ht))
}

var handshakeTypes = map[HandshakeType]string{
	HTClientHello:           "client_hello",
	HTServerHello:           "server_hello",
	HTNewSessionTicket:      "new_session_ticket",
	HTEndOfEarlyData:        "end_of_early_data",
	HTEncryptedExtensions:   "encrypted_extensions",
	HTCertificate:           "certificate",
	HTCertificateRequest:    "certificate_request",
	HTCertificateVerify:     "certificate_verify",
	HTFinished:              "finished",
	HTKeyUpdate:             "key_update",
	HTCompressedCertificate: "compressed_certificate",
	HTMessageHash:           "message_hash",
}

// CipherSuiteID defines the TLS 1.3 cipher suite identifiers.
type CipherSuiteID uint16

// Cipher suites.
const (
	CipherAES128GCMSHA256       CipherSuiteID = 0x1301
	CipherAES256GCMSHA384       CipherSuiteID = 0x1302
	CipherChaCha20Poly1305SHA256 CipherSuiteID = 0x1303
)

func (cs CipherSuiteID) String() string {
	name, ok := tls13CipherSuites[cs]
	if ok {
		return name
	}
	return fmt.Sprintf("{CipherSuite %#04x}", uint16(cs))
}

var tls13CipherSuites = map[CipherSuiteID]string{
	CipherAES128GCMSHA256:        "TLS_AES_128_GCM_SHA256",
	CipherAES256GCMSHA384:        "TLS_AES_256_GCM_SHA384",
	CipherChaCha20Poly1305SHA256: "TLS_CHACHA20_POLY1305_SHA256",
}

// NamedGroup defines named key exchange groups.
type NamedGroup uint16

// Named groups.
const (
	GroupSecp256r1 NamedGroup = 23
	GroupSecp384r1 NamedGroup = 24
	GroupSecp521r1 NamedGroup = 25
	GroupX25519    NamedGroup = 29
	GroupX448      NamedGroup = 30
)

func (group NamedGroup) String() string {
	name, ok := tls13NamedGroups[group]
	if ok {
		return name
	}
	return fmt.Sprintf("{NamedGroup %d}", uint16(group))
}

var tls13NamedGroups = map[NamedGroup]string{
	GroupSecp256r1: "secp256r1",
	GroupSecp384r1: "secp384r1",
	GroupSecp521r1: "secp521r1",
	GroupX25519:    "x25519",
	GroupX448:      "x448",
}

// SignatureScheme defines the signature algorithms for the
// signature_algorithms extension.
type SignatureScheme uint16

// Signature algorithms.
const (
	SigSchemeRsaPkcs1Sha1         SignatureScheme = 0x0201
	SigSchemeRsaPkcs1Sha256       SignatureScheme = 0x0401
	SigSchemeEcdsaSecp256r1Sha256 SignatureScheme = 0x0403
	SigSchemeEcdsaSecp384r1Sha384 SignatureScheme = 0x0503
	SigSchemeEcdsaSecp521r1Sha512 SignatureScheme = 0x0603
	SigSchemeRsaPssRsaeSha256     SignatureScheme = 0x0804
	SigSchemeRsaPssRsaeSha384     SignatureScheme = 0x0805
	SigSchemeRsaPssRsaeSha512     SignatureScheme = 0x0806
	SigSchemeEd25519              SignatureScheme = 0x0807
)

func (scheme SignatureScheme) String() string {
	name, ok := tls13SignatureSchemes[scheme]
	if ok {
		return name
	}
	return fmt.Sprintf("{SignatureScheme %#04x}", uint16(scheme))
}

var tls13SignatureSchemes = map[SignatureScheme]string{
	SigSchemeRsaPkcs1Sha1:         "rsa_pkcs1_sha1",
	SigSchemeRsaPkcs1Sha256:       "rsa_pkcs1_sha256",
	SigSchemeEcdsaSecp256r1Sha256: "ecdsa_secp256r1_sha256",
	SigSchemeEcdsaSecp384r1Sha384: "ecdsa_secp384r1_sha384",
	SigSchemeEcdsaSecp521r1Sha512: "ecdsa_secp521r1_sha512",
	SigSchemeRsaPssRsaeSha256:     "rsa_pss_rsae_sha256",
	SigSchemeRsaPssRsaeSha384:     "rsa_pss_rsae_sha384",
	SigSchemeRsaPssRsaeSha512:     "rsa_pss_rsae_sha512",
	SigSchemeEd25519:              "ed25519",
}

// ExtensionType defines the handshake protocol extensions.
type ExtensionType uint16

// Extension types.
const (
	ETServerName          ExtensionType = 0  // RFC 6066
	ETMaxFragmentLength   ExtensionType = 1  // RFC 6066
	ETStatusRequest       ExtensionType = 5  // RFC 6066
	ETSupportedGroups     ExtensionType = 10 // RFC 8422, 7919
	ETSignatureAlgorithms ExtensionType = 13 // RFC 8446
	ETALPN                ExtensionType = 16 // RFC 7301
	ETCompressCertificate ExtensionType = 27 // RFC 8879
	ETPreSharedKey        ExtensionType = 41 // RFC 8446
	ETEarlyData           ExtensionType = 42 // RFC 8446
	ETSupportedVersions   ExtensionType = 43 // RFC 8446
	ETCookie              ExtensionType = 44 // RFC 8446
	ETPSKKeyExchangeModes ExtensionType = 45 // RFC 8446
	ETSignatureAlgorithmsCert ExtensionType = 50 // RFC 8446
	ETKeyShare            ExtensionType = 51 // RFC 8446
	ETEncryptedServerName ExtensionType = 0xffce // ESNI draft-02
)

func (et ExtensionType) String() string {
	name, ok := extensionTypeNames[et]
	if ok {
		return name
	}
	return fmt.Sprintf("{ExtensionType %d}", uint16(et))
}

var extensionTypeNames = map[ExtensionType]string{
	ETServerName:              "server_name",
	ETMaxFragmentLength:       "max_fragment_length",
	ETStatusRequest:           "status_request",
	ETSupportedGroups:         "supported_groups",
	ETSignatureAlgorithms:     "signature_algorithms",
	ETALPN:                    "application_layer_protocol_negotiation",
	ETCompressCertificate:     "compress_certificate",
	ETPreSharedKey:            "pre_shared_key",
	ETEarlyData:               "early_data",
	ETSupportedVersions:       "supported_versions",
	ETCookie:                  "cookie",
	ETPSKKeyExchangeModes:     "psk_key_exchange_modes",
	ETSignatureAlgorithmsCert: "signature_algorithms_cert",
	ETKeyShare:                "key_share",
	ETEncryptedServerName:     "encrypted_server_name",
}

// PSKKeyExchangeMode defines the psk_key_exchange_modes values.
type PSKKeyExchangeMode uint8

// PSK key exchange modes.
const (
	PSKModeKE  PSKKeyExchangeMode = 0
	PSKModeDHE PSKKeyExchangeMode = 1
)

// CertificateCompressionAlgorithm defines the RFC 8879 compression
// algorithm identifiers.
type CertificateCompressionAlgorithm uint16

// Certificate compression algorithms.
const (
	CertCompressionZlib   CertificateCompressionAlgorithm = 1
	CertCompressionBrotli CertificateCompressionAlgorithm = 2
	CertCompressionZstd   CertificateCompressionAlgorithm = 3
)

// Epoch identifies the traffic-protection key set a record was
// produced under.
type Epoch int

// Epochs.
const (
	EpochInitial Epoch = iota
	EpochEarlyData
	EpochHandshake
	EpochApplication
	numEpochs
)

func (epoch Epoch) String() string {
	switch epoch {
	case EpochInitial:
		return "initial"
	case EpochEarlyData:
		return "early-data"
	case EpochHandshake:
		return "handshake"
	case EpochApplication:
		return "application"
	default:
		return fmt.Sprintf("{Epoch %d}", int(epoch))
	}
}

// ESNIVersionDraft02 is the supported ESNI version.
const ESNIVersionDraft02 = 0xff01

// helloRetryRequestRandom is the fixed ServerHello random of a
// HelloRetryRequest: SHA-256 of the ASCII string "HelloRetryRequest".
var helloRetryRequestRandom = [helloRandomSize]byte{
	0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11,
	0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
	0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E,
	0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
}
