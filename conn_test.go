//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/markkurossi/tls13"
	"github.com/markkurossi/tls13/certcomp"
	"github.com/markkurossi/tls13/stdcrypto"
	"github.com/markkurossi/tls13/ticketstore"
	"github.com/stretchr/testify/require"
)

type testCertificate struct {
	der   []byte
	key   *ecdsa.PrivateKey
	roots *x509.CertPool
}

func newTestCertificate(t *testing.T, name string) *testCertificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: name,
		},
		DNSNames:  []string{name},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(24 * time.Hour),
		KeyUsage: x509.KeyUsageDigitalSignature |
			x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl,
		&key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	roots := x509.NewCertPool()
	roots.AddCert(cert)

	return &testCertificate{
		der:   der,
		key:   key,
		roots: roots,
	}
}

func newServerContext(t *testing.T,
	cert *testCertificate) *tls13.Context {

	t.Helper()
	return &tls13.Context{
		KeyExchanges: []*tls13.KeyExchangeAlgorithm{
			stdcrypto.X25519,
		},
		CipherSuites: []*tls13.CipherSuite{
			stdcrypto.AES128GCMSHA256,
		},
		Certificates:    [][]byte{cert.der},
		SignCertificate: stdcrypto.NewCertificateSigner(cert.key, rand.Reader),
	}
}

func newClientContext(t *testing.T,
	cert *testCertificate) *tls13.Context {

	t.Helper()
	return &tls13.Context{
		KeyExchanges: []*tls13.KeyExchangeAlgorithm{
			stdcrypto.X25519,
		},
		CipherSuites: []*tls13.CipherSuite{
			stdcrypto.AES128GCMSHA256,
		},
		VerifyCertificate: stdcrypto.NewCertificateVerifier(
			stdcrypto.VerifyOptions{
				Roots: cert.roots,
			}),
	}
}

func clone(data []byte) []byte {
	return append([]byte(nil), data...)
}

// runHandshake pipes the two engines' send buffers into each other
// until both report handshake completion.
func runHandshake(t *testing.T, client, server *tls13.Conn,
	cprops, sprops *tls13.HandshakeProperties) {

	t.Helper()

	cbuf := tls13.NewBuffer(nil)
	_, err := client.Handshake(cbuf, nil, cprops)
	require.Equal(t, tls13.ErrInProgress, err)
	toServer := clone(cbuf.Bytes())

	for rounds := 0; ; rounds++ {
		require.Less(t, rounds, 8, "handshake did not converge")

		sbuf := tls13.NewBuffer(nil)
		n, err := server.Handshake(sbuf, toServer, sprops)
		if err != nil {
			require.Equal(t, tls13.ErrInProgress, err)
		}
		require.Equal(t, len(toServer), n)
		toClient := clone(sbuf.Bytes())
		toServer = nil

		if client.HandshakeIsComplete() {
			if len(toClient) > 0 {
				// Post-handshake messages (session tickets).
				pbuf := tls13.NewBuffer(nil)
				_, err := client.Receive(pbuf, toClient)
				if err != nil {
					require.Equal(t, tls13.ErrInProgress, err)
				}
				require.Zero(t, pbuf.Len())
			}
		} else {
			cbuf := tls13.NewBuffer(nil)
			n, err := client.Handshake(cbuf, toClient, cprops)
			if err != nil {
				require.Equal(t, tls13.ErrInProgress, err)
			}
			if n < len(toClient) {
				require.True(t, client.HandshakeIsComplete())
				pbuf := tls13.NewBuffer(nil)
				_, err := client.Receive(pbuf, toClient[n:])
				if err != nil {
					require.Equal(t, tls13.ErrInProgress, err)
				}
			}
			toServer = clone(cbuf.Bytes())
		}

		if client.HandshakeIsComplete() &&
			server.HandshakeIsComplete() && len(toServer) == 0 {
			return
		}
	}
}

// sendRecv seals msg on from and opens it on to.
func sendRecv(t *testing.T, from, to *tls13.Conn, msg []byte) []byte {
	t.Helper()

	sbuf := tls13.NewBuffer(nil)
	require.NoError(t, from.Send(sbuf, msg))

	pbuf := tls13.NewBuffer(nil)
	_, err := to.Receive(pbuf, sbuf.Bytes())
	require.NoError(t, err)
	return clone(pbuf.Bytes())
}

func TestFullHandshake(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	serverCtx := newServerContext(t, cert)
	clientCtx := newClientContext(t, cert)

	server := tls13.New(serverCtx, true)
	defer server.Free()
	client := tls13.New(clientCtx, false)
	defer client.Free()
	client.SetServerName("example.com")

	runHandshake(t, client, server, nil, nil)

	require.True(t, client.HandshakeIsComplete())
	require.True(t, server.HandshakeIsComplete())
	require.False(t, client.IsPSKHandshake())
	require.False(t, server.IsPSKHandshake())
	require.Equal(t, tls13.CipherAES128GCMSHA256, client.Cipher().ID)
	require.Equal(t, tls13.GroupX25519, client.NegotiatedGroup())
	require.Equal(t, "example.com", server.ServerName())
	require.True(t, server.IsServer())
	require.False(t, client.IsServer())
	require.Equal(t, client.RecordOverhead(), server.RecordOverhead())

	require.Equal(t, []byte("ping"),
		sendRecv(t, client, server, []byte("ping")))
	require.Equal(t, []byte("pong"),
		sendRecv(t, server, client, []byte("pong")))
}

func TestHandshakeALPN(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	serverCtx := newServerContext(t, cert)
	serverCtx.OnClientHello = func(c *tls13.Conn,
		info *tls13.ClientHelloInfo) error {

		for _, proto := range info.NegotiatedProtocols {
			if proto == "h2" {
				c.SetNegotiatedProtocol(proto)
				return nil
			}
		}
		return nil
	}
	clientCtx := newClientContext(t, cert)

	server := tls13.New(serverCtx, true)
	defer server.Free()
	client := tls13.New(clientCtx, false)
	defer client.Free()
	client.SetServerName("example.com")

	cprops := &tls13.HandshakeProperties{}
	cprops.Client.NegotiatedProtocols = []string{"h3", "h2"}

	runHandshake(t, client, server, cprops, nil)
	require.Equal(t, "h2", client.NegotiatedProtocol())
	require.Equal(t, "h2", server.NegotiatedProtocol())
}

func TestHelloRetryRequest(t *testing.T) {
	cert := newTestCertificate(t, "example.com")

	serverCtx := newServerContext(t, cert)
	serverCtx.KeyExchanges = []*tls13.KeyExchangeAlgorithm{
		stdcrypto.Secp256r1,
		stdcrypto.X25519,
	}
	clientCtx := newClientContext(t, cert)
	clientCtx.KeyExchanges = []*tls13.KeyExchangeAlgorithm{
		stdcrypto.X25519,
		stdcrypto.Secp256r1,
	}

	server := tls13.New(serverCtx, true)
	defer server.Free()
	client := tls13.New(clientCtx, false)
	defer client.Free()
	client.SetServerName("example.com")

	runHandshake(t, client, server, nil, nil)

	// The retry moved the exchange to the server's preferred
	// group.
	require.Equal(t, tls13.GroupSecp256r1, client.NegotiatedGroup())
	require.Equal(t, tls13.GroupSecp256r1, server.NegotiatedGroup())

	require.Equal(t, []byte("ping"),
		sendRecv(t, client, server, []byte("ping")))
}

func TestStatelessRetry(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	serverCtx := newServerContext(t, cert)
	clientCtx := newClientContext(t, cert)

	cookieKey := make([]byte, 32)
	_, err := rand.Read(cookieKey)
	require.NoError(t, err)

	sprops := &tls13.HandshakeProperties{}
	sprops.Server.EnforceRetry = true
	sprops.Server.RetryUsesCookie = true
	sprops.Server.Cookie.Key = cookieKey
	sprops.Server.Cookie.AdditionalData = []byte("test-transport")

	client := tls13.New(clientCtx, false)
	defer client.Free()
	client.SetServerName("example.com")

	cbuf := tls13.NewBuffer(nil)
	_, err = client.Handshake(cbuf, nil, nil)
	require.Equal(t, tls13.ErrInProgress, err)

	// The first server connection emits a stateless retry and is
	// discarded.
	server1 := tls13.New(serverCtx, true)
	sbuf := tls13.NewBuffer(nil)
	_, err = server1.Handshake(sbuf, cbuf.Bytes(), sprops)
	require.Equal(t, tls13.ErrStatelessRetry, err)
	hrr := clone(sbuf.Bytes())
	server1.Free()

	cbuf2 := tls13.NewBuffer(nil)
	_, err = client.Handshake(cbuf2, hrr, nil)
	require.Equal(t, tls13.ErrInProgress, err)

	// A fresh connection restores the handshake from the cookie.
	server2 := tls13.New(serverCtx, true)
	defer server2.Free()
	sbuf2 := tls13.NewBuffer(nil)
	_, err = server2.Handshake(sbuf2, cbuf2.Bytes(), sprops)
	require.Equal(t, tls13.ErrInProgress, err)

	cbuf3 := tls13.NewBuffer(nil)
	n, err := client.Handshake(cbuf3, sbuf2.Bytes(), nil)
	require.NoError(t, err)
	require.Equal(t, sbuf2.Len(), n)
	require.True(t, client.HandshakeIsComplete())

	sbuf3 := tls13.NewBuffer(nil)
	_, err = server2.Handshake(sbuf3, cbuf3.Bytes(), sprops)
	require.NoError(t, err)
	require.True(t, server2.HandshakeIsComplete())

	require.Equal(t, []byte("ping"),
		sendRecv(t, client, server2, []byte("ping")))
}

func TestResumptionEarlyData(t *testing.T) {
	cert := newTestCertificate(t, "example.com")

	sealer, err := ticketstore.NewSealer(make([]byte, 32))
	require.NoError(t, err)

	serverCtx := newServerContext(t, cert)
	serverCtx.TicketLifetime = 7200
	serverCtx.MaxEarlyDataSize = 16384
	serverCtx.EncryptTicket = sealer.Callback()

	var savedTicket []byte
	clientCtx := newClientContext(t, cert)
	clientCtx.SaveTicket = func(c *tls13.Conn, ticket []byte) error {
		savedTicket = clone(ticket)
		return nil
	}

	// Initial full handshake distributes the ticket.
	server := tls13.New(serverCtx, true)
	client := tls13.New(clientCtx, false)
	client.SetServerName("example.com")
	runHandshake(t, client, server, nil, nil)
	client.Free()
	server.Free()
	require.NotNil(t, savedTicket)

	// Resumption with 0-RTT.
	server = tls13.New(serverCtx, true)
	defer server.Free()
	client = tls13.New(clientCtx, false)
	defer client.Free()
	client.SetServerName("example.com")

	var maxEarly uint32
	cprops := &tls13.HandshakeProperties{}
	cprops.Client.SessionTicket = savedTicket
	cprops.Client.MaxEarlyDataSize = &maxEarly

	cbuf := tls13.NewBuffer(nil)
	_, err = client.Handshake(cbuf, nil, cprops)
	require.Equal(t, tls13.ErrInProgress, err)
	require.Equal(t, uint32(16384), maxEarly)

	// Early data rides behind the ClientHello.
	require.NoError(t, client.Send(cbuf, []byte("early")))

	sprops := &tls13.HandshakeProperties{}
	sbuf := tls13.NewBuffer(nil)
	n, err := server.Handshake(sbuf, cbuf.Bytes(), sprops)
	require.Equal(t, tls13.ErrInProgress, err)
	require.Equal(t, cbuf.Len(), n)
	require.NotEmpty(t, sprops.Server.SelectedPSKBinder)

	pbuf := tls13.NewBuffer(nil)
	_, err = server.Receive(pbuf, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("early"), pbuf.Bytes())

	cbuf2 := tls13.NewBuffer(nil)
	_, err = client.Handshake(cbuf2, sbuf.Bytes(), cprops)
	require.NoError(t, err)
	require.True(t, client.HandshakeIsComplete())
	require.True(t, cprops.Client.EarlyDataAcceptedByPeer)

	sbuf2 := tls13.NewBuffer(nil)
	_, err = server.Handshake(sbuf2, cbuf2.Bytes(), sprops)
	require.NoError(t, err)
	require.True(t, server.HandshakeIsComplete())

	require.True(t, client.IsPSKHandshake())
	require.True(t, server.IsPSKHandshake())

	require.Equal(t, []byte("ping"),
		sendRecv(t, client, server, []byte("ping")))
	require.Equal(t, []byte("pong"),
		sendRecv(t, server, client, []byte("pong")))
}

func TestBadRecordMAC(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	server := tls13.New(newServerContext(t, cert), true)
	defer server.Free()
	client := tls13.New(newClientContext(t, cert), false)
	defer client.Free()
	client.SetServerName("example.com")

	runHandshake(t, client, server, nil, nil)

	sbuf := tls13.NewBuffer(nil)
	require.NoError(t, server.Send(sbuf, []byte("data")))
	tampered := clone(sbuf.Bytes())
	tampered[len(tampered)-1] ^= 0x01

	pbuf := tls13.NewBuffer(nil)
	_, err := client.Receive(pbuf, tampered)
	require.Error(t, err)
	e, ok := err.(*tls13.Error)
	require.True(t, ok)
	require.Equal(t, int(tls13.AlertBadRecordMAC), e.Code)

	// The connection is unusable afterwards.
	_, err = client.Receive(pbuf, nil)
	require.Error(t, err)
	require.Error(t, client.Send(tls13.NewBuffer(nil), []byte("x")))
}

func TestKeyUpdate(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	server := tls13.New(newServerContext(t, cert), true)
	defer server.Free()
	client := tls13.New(newClientContext(t, cert), false)
	defer client.Free()
	client.SetServerName("example.com")

	runHandshake(t, client, server, nil, nil)

	// Client rekeys and asks the server to do the same.
	require.NoError(t, client.UpdateKey(true))
	require.Equal(t, []byte("ping"),
		sendRecv(t, client, server, []byte("ping")))

	// The server's response carries its own KeyUpdate before the
	// data.
	sbuf := tls13.NewBuffer(nil)
	require.NoError(t, server.Send(sbuf, []byte("pong")))
	records := countRecords(t, sbuf.Bytes())
	require.Equal(t, 2, records)

	pbuf := tls13.NewBuffer(nil)
	_, err := client.Receive(pbuf, sbuf.Bytes())
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), pbuf.Bytes())

	// Traffic continues under the new keys in both directions.
	require.Equal(t, []byte("ping2"),
		sendRecv(t, client, server, []byte("ping2")))
	require.Equal(t, []byte("pong2"),
		sendRecv(t, server, client, []byte("pong2")))
}

func countRecords(t *testing.T, data []byte) int {
	t.Helper()
	count := 0
	for len(data) > 0 {
		require.GreaterOrEqual(t, len(data), 5)
		length := int(data[3])<<8 | int(data[4])
		require.GreaterOrEqual(t, len(data), 5+length)
		data = data[5+length:]
		count++
	}
	return count
}

func TestVersionMismatch(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	server := tls13.New(newServerContext(t, cert), true)
	defer server.Free()

	// A ClientHello without supported_versions.
	body := tls13.NewBuffer(nil)
	body.PushUint16(0x0303)
	random := make([]byte, 32)
	_, err := rand.Read(random)
	require.NoError(t, err)
	body.PushRaw(random)
	body.PushBlock(1, func() error {
		return nil
	})
	body.PushBlock(2, func() error {
		return body.PushUint16(0x1301)
	})
	body.PushBlock(1, func() error {
		return body.PushUint8(0)
	})
	body.PushBlock(2, func() error {
		return nil
	})

	msg := tls13.NewBuffer(nil)
	msg.PushUint8(1)
	msg.PushBlock(3, func() error {
		return msg.PushRaw(body.Bytes())
	})

	record := tls13.NewBuffer(nil)
	record.PushUint8(0x16)
	record.PushUint16(0x0303)
	record.PushBlock(2, func() error {
		return record.PushRaw(msg.Bytes())
	})

	sbuf := tls13.NewBuffer(nil)
	_, err = server.Handshake(sbuf, record.Bytes(), nil)
	require.Error(t, err)
	e, ok := err.(*tls13.Error)
	require.True(t, ok)
	require.Equal(t, int(tls13.AlertProtocolVersion), e.Code)

	// The send buffer carries the fatal alert.
	require.Equal(t,
		[]byte{0x15, 0x03, 0x03, 0x00, 0x02, 0x02, 0x46},
		sbuf.Bytes())
}

func TestCloseNotify(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	server := tls13.New(newServerContext(t, cert), true)
	defer server.Free()
	client := tls13.New(newClientContext(t, cert), false)
	defer client.Free()
	client.SetServerName("example.com")

	runHandshake(t, client, server, nil, nil)

	sbuf := tls13.NewBuffer(nil)
	require.NoError(t, client.SendAlert(sbuf, tls13.AlertLevelWarning,
		tls13.AlertCloseNotify))

	pbuf := tls13.NewBuffer(nil)
	_, err := server.Receive(pbuf, sbuf.Bytes())
	require.Error(t, err)
	e, ok := err.(*tls13.Error)
	require.True(t, ok)
	require.Equal(t, tls13.ErrorClassPeerAlert+
		int(tls13.AlertCloseNotify), e.Code)
}

func TestExporter(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	serverCtx := newServerContext(t, cert)
	serverCtx.UseExporter = true
	clientCtx := newClientContext(t, cert)
	clientCtx.UseExporter = true

	server := tls13.New(serverCtx, true)
	defer server.Free()
	client := tls13.New(clientCtx, false)
	defer client.Free()
	client.SetServerName("example.com")

	runHandshake(t, client, server, nil, nil)

	ckey, err := client.ExportSecret("EXPORTER-test", []byte("ctx"),
		32, false)
	require.NoError(t, err)
	skey, err := server.ExportSecret("EXPORTER-test", []byte("ctx"),
		32, false)
	require.NoError(t, err)
	require.Equal(t, ckey, skey)
	require.Len(t, ckey, 32)

	other, err := client.ExportSecret("EXPORTER-other", []byte("ctx"),
		32, false)
	require.NoError(t, err)
	require.NotEqual(t, ckey, other)
}

func TestCompressedCertificate(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	serverCtx := newServerContext(t, cert)
	serverCtx.CompressCertificate = certcomp.NewCompressor(
		tls13.CertCompressionBrotli)
	clientCtx := newClientContext(t, cert)
	clientCtx.DecompressCertificate = certcomp.NewDecompressor()

	server := tls13.New(serverCtx, true)
	defer server.Free()
	client := tls13.New(clientCtx, false)
	defer client.Free()
	client.SetServerName("example.com")

	runHandshake(t, client, server, nil, nil)
	require.Equal(t, []byte("ping"),
		sendRecv(t, client, server, []byte("ping")))
}

func TestClientAuthentication(t *testing.T) {
	serverCert := newTestCertificate(t, "example.com")
	clientCert := newTestCertificate(t, "client.example.com")

	serverCtx := newServerContext(t, serverCert)
	serverCtx.RequireClientAuthentication = true
	serverCtx.VerifyCertificate = stdcrypto.NewCertificateVerifier(
		stdcrypto.VerifyOptions{
			Roots:              clientCert.roots,
			InsecureSkipVerify: true,
		})

	clientCtx := newClientContext(t, serverCert)
	clientCtx.Certificates = [][]byte{clientCert.der}
	clientCtx.SignCertificate = stdcrypto.NewCertificateSigner(
		clientCert.key, rand.Reader)

	server := tls13.New(serverCtx, true)
	defer server.Free()
	client := tls13.New(clientCtx, false)
	defer client.Free()
	client.SetServerName("example.com")

	runHandshake(t, client, server, nil, nil)
	require.Equal(t, []byte("ping"),
		sendRecv(t, client, server, []byte("ping")))
}

func TestChangeCipherSpecCompat(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	serverCtx := newServerContext(t, cert)
	serverCtx.SendChangeCipherSpec = true
	clientCtx := newClientContext(t, cert)
	clientCtx.SendChangeCipherSpec = true

	server := tls13.New(serverCtx, true)
	defer server.Free()
	client := tls13.New(clientCtx, false)
	defer client.Free()
	client.SetServerName("example.com")

	runHandshake(t, client, server, nil, nil)
	require.Equal(t, []byte("ping"),
		sendRecv(t, client, server, []byte("ping")))
}

func TestOpenCount(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	count := 0
	ctx := newServerContext(t, cert)
	ctx.UpdateOpenCount = func(delta int) {
		count += delta
	}
	c := tls13.New(ctx, true)
	require.Equal(t, 1, count)
	c.Free()
	require.Equal(t, 0, count)
}

func TestESNI(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	serverCtx := newServerContext(t, cert)

	// Server-side ESNI key pair.
	kex, err := stdcrypto.X25519.Create(rand.Reader)
	require.NoError(t, err)

	keys := tls13.NewBuffer(nil)
	keys.PushUint16(tls13.ESNIVersionDraft02)
	keys.PushRaw([]byte{0, 0, 0, 0})
	keys.PushBlock(2, func() error {
		if err := keys.PushUint16(
			uint16(tls13.GroupX25519)); err != nil {
			return err
		}
		return keys.PushBlock(2, func() error {
			return keys.PushRaw(kex.PublicKey())
		})
	})
	keys.PushBlock(2, func() error {
		return keys.PushUint16(uint16(tls13.CipherAES128GCMSHA256))
	})
	keys.PushUint16(260)
	keys.PushUint64(0)
	keys.PushUint64(1 << 62)
	keys.PushBlock(2, func() error {
		return nil
	})

	esni, err := tls13.InitESNIContext(serverCtx, keys.Bytes(),
		[]tls13.KeyExchangeContext{kex})
	require.NoError(t, err)
	defer esni.Dispose()
	serverCtx.ESNI = []*tls13.ESNIContext{esni}

	var esniSecret []byte
	serverCtx.UpdateESNIKey = func(c *tls13.Conn, secret []byte,
		hash *tls13.HashAlgorithm, contents []byte) error {
		esniSecret = clone(secret)
		return nil
	}

	clientCtx := newClientContext(t, cert)
	clientCtx.VerifyCertificate = stdcrypto.NewCertificateVerifier(
		stdcrypto.VerifyOptions{
			InsecureSkipVerify: true,
		})

	var esniUsed bool
	serverCtx.OnClientHello = func(c *tls13.Conn,
		info *tls13.ClientHelloInfo) error {
		esniUsed = info.ESNI
		return nil
	}

	server := tls13.New(serverCtx, true)
	defer server.Free()
	client := tls13.New(clientCtx, false)
	defer client.Free()
	client.SetServerName("secret.example.org")

	cprops := &tls13.HandshakeProperties{}
	cprops.Client.ESNIKeys = keys.Bytes()

	runHandshake(t, client, server, cprops, nil)

	require.True(t, esniUsed)
	require.NotEmpty(t, esniSecret)
	require.Equal(t, "secret.example.org", server.ServerName())
	require.Equal(t, []byte("ping"),
		sendRecv(t, client, server, []byte("ping")))
}

func TestHandleMessage(t *testing.T) {
	cert := newTestCertificate(t, "example.com")

	type secretKey struct {
		isEnc bool
		epoch tls13.Epoch
	}
	record := func(dst map[secretKey][]byte) func(c *tls13.Conn,
		isEnc bool, epoch tls13.Epoch, secret []byte) error {
		return func(c *tls13.Conn, isEnc bool, epoch tls13.Epoch,
			secret []byte) error {
			dst[secretKey{isEnc, epoch}] = clone(secret)
			return nil
		}
	}

	clientSecrets := make(map[secretKey][]byte)
	serverSecrets := make(map[secretKey][]byte)

	serverCtx := newServerContext(t, cert)
	serverCtx.UpdateTrafficKey = record(serverSecrets)
	clientCtx := newClientContext(t, cert)
	clientCtx.UpdateTrafficKey = record(clientSecrets)

	server := tls13.New(serverCtx, true)
	defer server.Free()
	client := tls13.New(clientCtx, false)
	defer client.Free()
	client.SetServerName("example.com")

	var coff, soff [5]int
	cbuf := tls13.NewBuffer(nil)
	err := client.HandleMessage(cbuf, &coff, 0, nil, nil)
	require.Equal(t, tls13.ErrInProgress, err)
	require.Equal(t, cbuf.Len(), coff[1])

	sbuf := tls13.NewBuffer(nil)
	err = server.HandleMessage(sbuf, &soff, 0,
		cbuf.Bytes()[coff[0]:coff[1]], nil)
	require.Equal(t, tls13.ErrInProgress, err)

	// ServerHello is an epoch-0 message; the encrypted flight
	// belongs to the handshake epoch.
	require.Greater(t, soff[1], 0)
	require.Equal(t, soff[1], soff[2])
	require.Greater(t, soff[3], soff[2])

	cbuf2 := tls13.NewBuffer(nil)
	var coff2 [5]int
	err = client.HandleMessage(cbuf2, &coff2, 0,
		sbuf.Bytes()[soff[0]:soff[1]], nil)
	require.Equal(t, tls13.ErrInProgress, err)
	require.Equal(t, tls13.EpochHandshake, client.ReadEpoch())

	err = client.HandleMessage(cbuf2, &coff2, 2,
		sbuf.Bytes()[soff[1]:soff[3]], nil)
	require.NoError(t, err)
	require.True(t, client.HandshakeIsComplete())

	// The client's Finished is a handshake-epoch message.
	require.Greater(t, coff2[3], coff2[2])

	sbuf2 := tls13.NewBuffer(nil)
	var soff2 [5]int
	err = server.HandleMessage(sbuf2, &soff2, 2,
		cbuf2.Bytes()[coff2[2]:coff2[3]], nil)
	require.NoError(t, err)
	require.True(t, server.HandshakeIsComplete())

	// Both sides derived the same traffic secrets.
	for _, epoch := range []tls13.Epoch{
		tls13.EpochHandshake, tls13.EpochApplication,
	} {
		require.Equal(t,
			clientSecrets[secretKey{true, epoch}],
			serverSecrets[secretKey{false, epoch}],
			"client->server secrets, epoch %v", epoch)
		require.Equal(t,
			clientSecrets[secretKey{false, epoch}],
			serverSecrets[secretKey{true, epoch}],
			"server->client secrets, epoch %v", epoch)
	}
}

func TestKeyLogWriter(t *testing.T) {
	cert := newTestCertificate(t, "example.com")
	var log testWriter
	serverCtx := newServerContext(t, cert)
	serverCtx.LogEvent = tls13.NewKeyLogWriter(&log)

	server := tls13.New(serverCtx, true)
	defer server.Free()
	client := tls13.New(newClientContext(t, cert), false)
	defer client.Free()
	client.SetServerName("example.com")

	runHandshake(t, client, server, nil, nil)

	require.Contains(t, log.String(),
		"SERVER_HANDSHAKE_TRAFFIC_SECRET")
	require.Contains(t, log.String(), "CLIENT_TRAFFIC_SECRET_0")
	require.Contains(t, log.String(),
		fmt.Sprintf("%x", client.ClientRandom()))
}

type testWriter struct {
	data []byte
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *testWriter) String() string {
	return string(w.data)
}
