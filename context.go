//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"io"

	"go.uber.org/zap"
)

// ClientHelloInfo carries the negotiation-relevant ClientHello values
// to the OnClientHello callback.
type ClientHelloInfo struct {
	// ServerName is the SNI value, or empty if the extension was
	// absent.
	ServerName string
	// NegotiatedProtocols lists the ALPN protocols offered by the
	// client.
	NegotiatedProtocols []string
	// SignatureAlgorithms lists the offered signature schemes.
	SignatureAlgorithms []SignatureScheme
	// CertificateCompressionAlgorithms lists the compression
	// algorithms the client accepts for the Certificate message.
	CertificateCompressionAlgorithms []CertificateCompressionAlgorithm
	// ESNI is set if the server name was carried in an
	// encrypted_server_name extension.
	ESNI bool
}

// VerifySignFunc verifies a CertificateVerify signature over the
// domain-separated data. The engine calls the function exactly once:
// with nil arguments if the handshake fails before CertificateVerify
// arrives, giving the verifier the opportunity to release temporary
// state.
type VerifySignFunc func(data, sign []byte) error

// DecompressCertificate decompresses CompressedCertificate messages
// (RFC 8879).
type DecompressCertificate struct {
	// SupportedAlgorithms lists the algorithms advertised in the
	// compress_certificate extension.
	SupportedAlgorithms []CertificateCompressionAlgorithm
	// Decompress expands input into output, which is pre-sized to
	// the advertised uncompressed length. A short or overlong
	// result is an error.
	Decompress func(c *Conn, algorithm CertificateCompressionAlgorithm,
		output, input []byte) error
}

// CompressCertificate compresses the Certificate message body when
// the peer advertises support for the algorithm.
type CompressCertificate struct {
	Algorithm CertificateCompressionAlgorithm
	Compress  func(c *Conn, input []byte) ([]byte, error)
}

// RawExtension is an opaque extension: type and payload.
type RawExtension struct {
	Type ExtensionType
	Data []byte
}

// Context is the shared configuration of a set of connections. The
// connection holds a reference and never mutates it; different
// connections may use the same context in parallel provided the
// callbacks are thread-safe.
type Context struct {
	// Random is the PRNG. Defaults to crypto/rand.Reader.
	Random io.Reader
	// Now returns the current time in milliseconds. Defaults to
	// GetTime.
	Now func() uint64
	// KeyExchanges lists the supported key exchange algorithms in
	// preference order.
	KeyExchanges []*KeyExchangeAlgorithm
	// CipherSuites lists the supported cipher suites in preference
	// order.
	CipherSuites []*CipherSuite
	// Certificates is the certificate chain, leaf first, in DER.
	Certificates [][]byte
	// ESNI lists the ESNI key sets of the server.
	ESNI []*ESNIContext

	// OnClientHello is called after the ClientHello has been
	// parsed, giving the server a chance to adjust negotiation. To
	// accept ALPN the callback calls SetNegotiatedProtocol; to
	// acknowledge SNI it calls SetServerName.
	OnClientHello func(c *Conn, info *ClientHelloInfo) error
	// EmitCertificate writes the body of the Certificate message.
	// When nil, the message is built from Certificates.
	EmitCertificate func(c *Conn, buf *Buffer, requestContext []byte,
		pushStatusRequest bool) error
	// SignCertificate signs the CertificateVerify input with one of
	// the offered signature schemes.
	SignCertificate func(c *Conn, offered []SignatureScheme,
		data []byte) (SignatureScheme, []byte, error)
	// VerifyCertificate validates the peer certificate chain and
	// returns the function that later verifies the
	// CertificateVerify signature.
	VerifyCertificate func(c *Conn, certs [][]byte) (VerifySignFunc,
		error)
	// EncryptTicket encrypts (or decrypts, when isEncrypt is
	// false) a session-ticket state blob (server only).
	EncryptTicket func(c *Conn, isEncrypt bool, dst *Buffer,
		src []byte) error
	// SaveTicket receives NewSessionTicket contents (client only).
	SaveTicket func(c *Conn, ticket []byte) error
	// LogEvent receives key-material events: a label and the
	// corresponding secret. The client random identifies the
	// connection.
	LogEvent func(c *Conn, label string, secret []byte)
	// Log receives handshake trace events.
	Log *zap.Logger
	// UpdateOpenCount is called with +1 on connection creation and
	// -1 on free.
	UpdateOpenCount func(delta int)
	// UpdateTrafficKey diverts traffic secrets to an external
	// record layer (QUIC). When set, the engine does not protect
	// records itself.
	UpdateTrafficKey func(c *Conn, isEnc bool, epoch Epoch,
		secret []byte) error
	// DecompressCertificate enables receiving
	// CompressedCertificate messages.
	DecompressCertificate *DecompressCertificate
	// CompressCertificate enables sending CompressedCertificate
	// messages to peers that advertise support.
	CompressCertificate *CompressCertificate
	// UpdateESNIKey is notified with the ESNI shared secret.
	UpdateESNIKey func(c *Conn, secret []byte, hash *HashAlgorithm,
		esniContentsHash []byte) error

	// TicketLifetime is the lifetime of an emitted session ticket
	// in seconds (server only). Zero disables tickets.
	TicketLifetime uint32
	// MaxEarlyDataSize is the maximum early-data size accepted
	// under a ticket (server only).
	MaxEarlyDataSize uint32
	// HKDFLabelPrefix is obsolete and should be left empty; a
	// non-empty value is used as the literal HKDF label prefix for
	// compatibility with legacy callers.
	//
	// Deprecated: QUIC draft-17 and all current consumers use the
	// standard prefix.
	HKDFLabelPrefix string

	// RequireDHEOnPSK forces (EC)DHE on PSK handshakes.
	RequireDHEOnPSK bool
	// UseExporter records exporter master secrets.
	UseExporter bool
	// SendChangeCipherSpec emits a ChangeCipherSpec record during
	// the handshake for middlebox compatibility.
	SendChangeCipherSpec bool
	// RequireClientAuthentication makes the server request a client
	// certificate.
	RequireClientAuthentication bool
	// OmitEndOfEarlyData disables the EndOfEarlyData message; the
	// early-data epoch ends on the first handshake-epoch record.
	OmitEndOfEarlyData bool
}

func (ctx *Context) random() io.Reader {
	if ctx.Random != nil {
		return ctx.Random
	}
	return defaultRandom
}

func (ctx *Context) now() uint64 {
	if ctx.Now != nil {
		return ctx.Now()
	}
	return GetTime()
}

func (ctx *Context) log() *zap.Logger {
	if ctx.Log != nil {
		return ctx.Log
	}
	return zap.NewNop()
}

func (ctx *Context) labelPrefix() string {
	return ctx.HKDFLabelPrefix
}

// suiteByID returns the context's cipher suite with the argument
// identifier.
func (ctx *Context) suiteByID(id CipherSuiteID) *CipherSuite {
	for _, suite := range ctx.CipherSuites {
		if suite.ID == id {
			return suite
		}
	}
	return nil
}

// keyExchangeByGroup returns the context's key exchange algorithm for
// the argument group.
func (ctx *Context) keyExchangeByGroup(
	group NamedGroup) *KeyExchangeAlgorithm {

	for _, algo := range ctx.KeyExchanges {
		if algo.ID == group {
			return algo
		}
	}
	return nil
}

// HandshakeProperties are the per-handshake options.
type HandshakeProperties struct {
	Client ClientProperties
	Server ServerProperties

	// AdditionalExtensions are sent in ClientHello (client) or
	// EncryptedExtensions (server).
	AdditionalExtensions []RawExtension
	// CollectExtension reports whether an unknown extension should
	// be collected for CollectedExtensions.
	CollectExtension func(c *Conn, typ ExtensionType) bool
	// CollectedExtensions receives the collected extensions.
	CollectedExtensions func(c *Conn, extensions []RawExtension) error
}

// ClientProperties are the client-side handshake options.
type ClientProperties struct {
	// NegotiatedProtocols is the ALPN offer.
	NegotiatedProtocols []string
	// SessionTicket is a ticket previously received via SaveTicket.
	SessionTicket []byte
	// MaxEarlyDataSize, if non-nil, receives the amount of early
	// data that can be sent immediately; zero if early data cannot
	// be used. Leaving the field nil disables early data.
	MaxEarlyDataSize *uint32
	// EarlyDataAcceptedByPeer is set when the server has accepted
	// the early_data extension.
	EarlyDataAcceptedByPeer bool
	// NegotiateBeforeKeyExchange sends a ClientHello without a key
	// share, negotiating the group through a retry.
	NegotiateBeforeKeyExchange bool
	// ESNIKeys is the peer's ESNIKeys structure (the value of the
	// DNS TXT record after base64 decoding).
	ESNIKeys []byte
}

// ServerProperties are the server-side handshake options.
type ServerProperties struct {
	// SelectedPSKBinder receives the binder of the selected PSK.
	SelectedPSKBinder []byte
	// Cookie configures the HelloRetryRequest cookie extension.
	Cookie CookieProperties
	// EnforceRetry forces a HelloRetryRequest round-trip.
	EnforceRetry bool
	// RetryUsesCookie makes the retry stateless: the handshake
	// state is carried in the cookie and the first connection can
	// be discarded after ErrStatelessRetry.
	RetryUsesCookie bool
}

// CookieProperties configure the integrity protection of the HRR
// cookie.
type CookieProperties struct {
	// Key is the HMAC key; it should be as long as the digest of
	// the first configured cipher suite.
	Key []byte
	// AdditionalData is bound into the cookie HMAC.
	AdditionalData []byte
}
