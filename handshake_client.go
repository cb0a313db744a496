//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"go.uber.org/zap"
)

// defaultSignatureSchemes is the signature_algorithms offer.
var defaultSignatureSchemes = []SignatureScheme{
	SigSchemeEcdsaSecp256r1Sha256,
	SigSchemeEcdsaSecp384r1Sha384,
	SigSchemeEcdsaSecp521r1Sha512,
	SigSchemeEd25519,
	SigSchemeRsaPssRsaeSha256,
	SigSchemeRsaPssRsaeSha384,
	SigSchemeRsaPssRsaeSha512,
	SigSchemeRsaPkcs1Sha256,
}

// clientHandshake is the client-side handshake state, released when
// the handshake completes.
type clientHandshake struct {
	props           *HandshakeProperties
	keyShareCtx     KeyExchangeContext
	offeredAlgo     *KeyExchangeAlgorithm
	legacySessionID []byte
	cookie          []byte
	certReq         *certificateRequest
	verifySign      VerifySignFunc
	clientHsSecret  []byte
	serverHsSecret  []byte
	ticket          *savedTicket
	obfuscatedAge   uint32
	offeredPSK      bool
	usingEarlyData  bool
	earlyAccepted   bool
	retried         bool
	esni            *esniClientState
}

func (hs *clientHandshake) dispose() {
	if hs.keyShareCtx != nil {
		hs.keyShareCtx.Release()
		hs.keyShareCtx = nil
	}
	if hs.verifySign != nil {
		hs.verifySign(nil, nil)
		hs.verifySign = nil
	}
	for _, secret := range [][]byte{hs.clientHsSecret,
		hs.serverHsSecret} {
		if secret != nil {
			ClearMemory(secret)
		}
	}
	hs.clientHsSecret = nil
	hs.serverHsSecret = nil
}

// clientSendClientHello emits a ClientHello. The hrr argument is nil
// on the first flight and the received HelloRetryRequest on the
// second.
func (c *Conn) clientSendClientHello(em emitter,
	props *HandshakeProperties, hrr *serverHello) error {

	if hrr == nil {
		if err := c.clientInitHandshake(props); err != nil {
			return err
		}
	} else {
		if err := c.clientInitRetry(hrr); err != nil {
			return err
		}
	}
	hs := c.hsc

	body, err := c.clientHelloBody(props, hrr)
	if err != nil {
		return err
	}
	msg, err := buildMessage(HTClientHello, func(buf *Buffer) error {
		return buf.PushRaw(body)
	})
	if err != nil {
		return err
	}

	if hs.offeredPSK {
		// Compute the PSK binder over the truncated ClientHello
		// and patch it into the message.
		digestSize := c.suite.Hash.DigestSize
		bindersLen := 2 + 1 + digestSize
		trunc := len(msg) - bindersLen

		c.sched.updateHash(msg[:trunc])
		binderKey := c.sched.deriveSecret("res binder",
			c.suite.Hash.EmptyDigest())
		binder := c.sched.finishedMAC(binderKey)
		ClearMemory(binderKey)

		copy(msg[trunc+3:], binder)
		c.sched.updateHash(msg[trunc:])
	} else {
		c.sched.updateHash(msg)
	}

	if err := em.emit(c, nil, HTClientHello, func(buf *Buffer) error {
		return buf.PushRaw(msg[4:])
	}); err != nil {
		return err
	}

	if hs.usingEarlyData && hrr == nil {
		earlyTraffic := c.sched.deriveSecret("c e traffic", nil)
		defer ClearMemory(earlyTraffic)
		if c.ctx.UseExporter {
			c.earlyExporterMaster = c.sched.deriveSecret(
				"e exp master", nil)
		}
		if err := c.setTrafficSecret(true, EpochEarlyData,
			earlyTraffic); err != nil {
			return err
		}
	}

	if hrr == nil {
		c.state = stateClientExpectServerHello
	} else {
		c.state = stateClientExpectSecondServerHello
	}
	return nil
}

// clientInitHandshake sets up the client handshake state and the key
// schedule for the first ClientHello.
func (c *Conn) clientInitHandshake(props *HandshakeProperties) error {
	if len(c.ctx.CipherSuites) == 0 {
		return internalErrorf(ErrorNotAvailable,
			"no cipher suites configured")
	}
	hs := &clientHandshake{
		props: props,
	}
	c.hsc = hs

	random := c.ctx.random()
	if _, err := random.Read(c.clientRandom[:]); err != nil {
		return internalErrorf(ErrorLibrary, "random: %v", err)
	}
	if c.ctx.SendChangeCipherSpec {
		hs.legacySessionID = make([]byte, 32)
		if _, err := random.Read(hs.legacySessionID); err != nil {
			return internalErrorf(ErrorLibrary, "random: %v", err)
		}
	}

	c.sched = newKeySchedule(c.ctx.labelPrefix())

	if props.Client.MaxEarlyDataSize != nil {
		*props.Client.MaxEarlyDataSize = 0
	}

	if len(props.Client.SessionTicket) > 0 {
		if err := c.clientInitResumption(props); err != nil {
			c.ctx.log().Debug("resumption unusable", zap.Error(err))
		}
	}

	if len(props.Client.ESNIKeys) > 0 {
		esni, err := c.parseESNIKeys(props.Client.ESNIKeys)
		if err != nil {
			return err
		}
		hs.esni = esni
	}

	if !props.Client.NegotiateBeforeKeyExchange {
		if len(c.ctx.KeyExchanges) == 0 {
			return internalErrorf(ErrorNotAvailable,
				"no key exchanges configured")
		}
		hs.offeredAlgo = c.ctx.KeyExchanges[0]
		keyex, err := hs.offeredAlgo.Create(random)
		if err != nil {
			return internalErrorf(ErrorLibrary,
				"key exchange: %v", err)
		}
		hs.keyShareCtx = keyex
	}
	return nil
}

// clientInitResumption loads the saved ticket and primes the key
// schedule with its pre-shared key.
func (c *Conn) clientInitResumption(props *HandshakeProperties) error {
	hs := c.hsc

	ticket, err := decodeSavedTicket(props.Client.SessionTicket)
	if err != nil {
		return err
	}
	suite := c.ctx.suiteByID(ticket.suite)
	if suite == nil {
		return internalErrorf(ErrorSessionNotFound,
			"ticket cipher suite %v not configured", ticket.suite)
	}

	now := c.ctx.now()
	age := now - ticket.receivedAt
	if age/1000 >= uint64(ticket.nst.lifetime) {
		return internalErrorf(ErrorSessionNotFound, "ticket expired")
	}
	hs.obfuscatedAge = uint32(age) + ticket.nst.ageAdd

	hs.ticket = ticket
	hs.offeredPSK = true
	c.suite = suite
	c.sched.selectHash(suite.Hash)
	c.sched.extract(ticket.psk)

	if props.Client.MaxEarlyDataSize != nil {
		*props.Client.MaxEarlyDataSize = ticket.nst.maxEarlyDataSize
		hs.usingEarlyData = ticket.nst.maxEarlyDataSize > 0
	}
	return nil
}

// clientInitRetry reconfigures the handshake for the second
// ClientHello after a HelloRetryRequest.
func (c *Conn) clientInitRetry(hrr *serverHello) error {
	hs := c.hsc
	hs.retried = true
	hs.cookie = hrr.cookie

	// Early data is not allowed after a retry.
	if hs.usingEarlyData {
		hs.usingEarlyData = false
		c.out.dispose()
		c.outEpoch = EpochInitial
	}

	if hrr.retryGroup != 0 {
		algo := c.ctx.keyExchangeByGroup(hrr.retryGroup)
		if algo == nil {
			return alertErrorf(AlertIllegalParameter,
				"retry group %v not supported", hrr.retryGroup)
		}
		if hs.keyShareCtx != nil {
			if algo == hs.offeredAlgo {
				return alertErrorf(AlertIllegalParameter,
					"retry requests offered group %v",
					hrr.retryGroup)
			}
			hs.keyShareCtx.Release()
			hs.keyShareCtx = nil
		}
		hs.offeredAlgo = algo
	} else if hs.keyShareCtx == nil && hs.offeredAlgo == nil {
		return alertError(AlertIllegalParameter)
	}
	if hs.keyShareCtx == nil {
		keyex, err := hs.offeredAlgo.Create(c.ctx.random())
		if err != nil {
			return internalErrorf(ErrorLibrary,
				"key exchange: %v", err)
		}
		hs.keyShareCtx = keyex
	}
	return nil
}

// clientHelloBody builds the ClientHello message body.
func (c *Conn) clientHelloBody(props *HandshakeProperties,
	hrr *serverHello) ([]byte, error) {

	hs := c.hsc
	buf := NewBuffer(nil)

	if err := buf.PushUint16(uint16(VersionTLS12)); err != nil {
		return nil, err
	}
	if err := buf.PushRaw(c.clientRandom[:]); err != nil {
		return nil, err
	}
	if err := buf.PushBlock(1, func() error {
		return buf.PushRaw(hs.legacySessionID)
	}); err != nil {
		return nil, err
	}
	if err := buf.PushBlock(2, func() error {
		if hs.ticket != nil {
			if err := buf.PushUint16(
				uint16(hs.ticket.suite)); err != nil {
				return err
			}
		}
		for _, suite := range c.ctx.CipherSuites {
			if hs.ticket != nil && suite.ID == hs.ticket.suite {
				continue
			}
			if err := buf.PushUint16(uint16(suite.ID)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := buf.PushBlock(1, func() error {
		return buf.PushUint8(0)
	}); err != nil {
		return nil, err
	}

	err := buf.PushBlock(2, func() error {
		return c.clientHelloExtensions(buf, props, hrr)
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Conn) clientHelloExtensions(buf *Buffer,
	props *HandshakeProperties, hrr *serverHello) error {

	hs := c.hsc

	if len(c.serverName) > 0 && hs.esni == nil {
		err := pushExtension(buf, ETServerName, func() error {
			return buf.PushBlock(2, func() error {
				if err := buf.PushUint8(0); err != nil {
					return err
				}
				return buf.PushBlock(2, func() error {
					return buf.PushRaw([]byte(c.serverName))
				})
			})
		})
		if err != nil {
			return err
		}
	}
	if hs.esni != nil {
		err := pushExtension(buf, ETEncryptedServerName,
			func() error {
				return c.pushESNIExtension(buf, hs.esni,
					c.serverName, c.clientRandom[:])
			})
		if err != nil {
			return err
		}
	}
	if len(props.Client.NegotiatedProtocols) > 0 {
		err := pushExtension(buf, ETALPN, func() error {
			return buf.PushBlock(2, func() error {
				for _, proto := range props.Client.NegotiatedProtocols {
					if err := buf.PushBlock(1, func() error {
						return buf.PushRaw([]byte(proto))
					}); err != nil {
						return err
					}
				}
				return nil
			})
		})
		if err != nil {
			return err
		}
	}
	err := pushExtension(buf, ETSupportedGroups, func() error {
		return buf.PushBlock(2, func() error {
			for _, algo := range c.ctx.KeyExchanges {
				if err := buf.PushUint16(uint16(algo.ID)); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	err = pushExtension(buf, ETSignatureAlgorithms, func() error {
		return buf.PushBlock(2, func() error {
			for _, scheme := range defaultSignatureSchemes {
				if err := buf.PushUint16(uint16(scheme)); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	err = pushExtension(buf, ETSupportedVersions, func() error {
		return buf.PushBlock(1, func() error {
			return buf.PushUint16(uint16(VersionTLS13))
		})
	})
	if err != nil {
		return err
	}
	if c.ctx.DecompressCertificate != nil {
		err = pushExtension(buf, ETCompressCertificate, func() error {
			return buf.PushBlock(1, func() error {
				algos := c.ctx.DecompressCertificate.SupportedAlgorithms
				for _, algo := range algos {
					if err := buf.PushUint16(uint16(algo)); err != nil {
						return err
					}
				}
				return nil
			})
		})
		if err != nil {
			return err
		}
	}
	if len(hs.cookie) > 0 {
		err = pushExtension(buf, ETCookie, func() error {
			return buf.PushBlock(2, func() error {
				return buf.PushRaw(hs.cookie)
			})
		})
		if err != nil {
			return err
		}
	}
	err = pushExtension(buf, ETKeyShare, func() error {
		return buf.PushBlock(2, func() error {
			if hs.keyShareCtx == nil {
				return nil
			}
			if err := buf.PushUint16(
				uint16(hs.offeredAlgo.ID)); err != nil {
				return err
			}
			return buf.PushBlock(2, func() error {
				return buf.PushRaw(hs.keyShareCtx.PublicKey())
			})
		})
	})
	if err != nil {
		return err
	}
	for _, ext := range props.AdditionalExtensions {
		err = pushExtension(buf, ext.Type, func() error {
			return buf.PushRaw(ext.Data)
		})
		if err != nil {
			return err
		}
	}
	if hs.usingEarlyData && hrr == nil {
		err = pushExtension(buf, ETEarlyData, func() error {
			return nil
		})
		if err != nil {
			return err
		}
	}
	if hs.offeredPSK {
		err = pushExtension(buf, ETPSKKeyExchangeModes, func() error {
			return buf.PushBlock(1, func() error {
				if !c.ctx.RequireDHEOnPSK {
					if err := buf.PushUint8(
						uint8(PSKModeKE)); err != nil {
						return err
					}
				}
				return buf.PushUint8(uint8(PSKModeDHE))
			})
		})
		if err != nil {
			return err
		}

		// pre_shared_key must be the last extension.
		err = pushExtension(buf, ETPreSharedKey, func() error {
			if err := buf.PushBlock(2, func() error {
				if err := buf.PushBlock(2, func() error {
					return buf.PushRaw(hs.ticket.nst.ticket)
				}); err != nil {
					return err
				}
				return buf.PushUint32(hs.obfuscatedAge)
			}); err != nil {
				return err
			}
			return buf.PushBlock(2, func() error {
				return buf.PushBlock(1, func() error {
					// Placeholder, patched after the binder
					// is computed over the truncated hello.
					zero := make([]byte,
						c.suite.Hash.DigestSize)
					return buf.PushRaw(zero)
				})
			})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// clientHandleServerHello processes a ServerHello or
// HelloRetryRequest.
func (c *Conn) clientHandleServerHello(em emitter, msg []byte,
	props *HandshakeProperties) error {

	hs := c.hsc
	sh, err := decodeServerHello(msg[4:])
	if err != nil {
		return err
	}
	suite := c.ctx.suiteByID(sh.cipherSuite)
	if suite == nil {
		return alertErrorf(AlertIllegalParameter,
			"cipher suite %v not offered", sh.cipherSuite)
	}
	if !MemEqual(sh.legacySessionID, hs.legacySessionID) {
		return alertErrorf(AlertIllegalParameter,
			"legacy_session_id mismatch")
	}
	if c.sched.hash != nil && c.sched.hash != suite.Hash {
		return alertErrorf(AlertIllegalParameter,
			"cipher suite hash changed")
	}
	c.sched.selectHash(suite.Hash)

	if sh.isHelloRetryRequest() {
		if hs.retried {
			return alertError(AlertUnexpectedMessage)
		}
		c.suite = suite

		c.sched.rollMessageHash()
		c.sched.updateHash(msg)

		return c.clientSendClientHello(em, props, sh)
	}

	c.suite = suite
	c.negotiatedGroup = 0

	if sh.hasPSK {
		if !hs.offeredPSK || sh.pskIdentity != 0 {
			return alertErrorf(AlertIllegalParameter,
				"invalid pre_shared_key selection")
		}
		c.pskUsed = true
	} else if hs.offeredPSK {
		// The server declined the PSK; restart the secret chain
		// without it. The transcript is unaffected.
		c.sched.resetEarlySecret()
		hs.usingEarlyData = false
		if c.outEpoch == EpochEarlyData {
			c.out.dispose()
			c.outEpoch = EpochInitial
		}
	}

	var sharedSecret []byte
	if sh.keyShare != nil {
		if hs.keyShareCtx == nil ||
			sh.keyShare.group != hs.offeredAlgo.ID {
			return alertErrorf(AlertIllegalParameter,
				"key_share group %v not offered",
				sh.keyShare.group)
		}
		sharedSecret, err = hs.keyShareCtx.Exchange(
			sh.keyShare.keyExchange)
		hs.keyShareCtx.Release()
		hs.keyShareCtx = nil
		if err != nil {
			return alertErrorf(AlertIllegalParameter,
				"key exchange: %v", err)
		}
		c.negotiatedGroup = sh.keyShare.group
	} else if !c.pskUsed || c.ctx.RequireDHEOnPSK {
		return alertError(AlertMissingExtension)
	}

	c.sched.updateHash(msg)
	if c.sched.generation == 0 {
		// No PSK: the early secret is extracted from the zero input.
		c.sched.extract(nil)
	}
	c.sched.extract(sharedSecret)
	if sharedSecret != nil {
		ClearMemory(sharedSecret)
	}

	hs.clientHsSecret = c.sched.deriveSecret("c hs traffic", nil)
	hs.serverHsSecret = c.sched.deriveSecret("s hs traffic", nil)

	if err := c.setTrafficSecret(false, EpochHandshake,
		hs.serverHsSecret); err != nil {
		return err
	}

	c.state = stateClientExpectEncryptedExtensions
	return nil
}

// clientHandleEncryptedExtensions processes EncryptedExtensions.
func (c *Conn) clientHandleEncryptedExtensions(em emitter, msg []byte,
	props *HandshakeProperties) error {

	hs := c.hsc
	ee, err := decodeEncryptedExtensions(c, msg[4:], props)
	if err != nil {
		return err
	}
	c.sched.updateHash(msg)

	if len(ee.alpn) > 0 {
		offered := false
		for _, proto := range props.Client.NegotiatedProtocols {
			if proto == ee.alpn {
				offered = true
				break
			}
		}
		if !offered {
			return alertErrorf(AlertIllegalParameter,
				"ALPN protocol %q not offered", ee.alpn)
		}
		c.negotiatedProtocol = ee.alpn
	}

	if ee.earlyData {
		if !hs.usingEarlyData {
			return alertError(AlertIllegalParameter)
		}
		hs.earlyAccepted = true
		hs.props.Client.EarlyDataAcceptedByPeer = true
	}

	if hs.esni != nil {
		if !MemEqual(ee.esniNonce, hs.esni.nonce[:]) {
			return alertErrorf(AlertIllegalParameter,
				"ESNI nonce mismatch")
		}
	}

	if len(ee.collected) > 0 && props.CollectedExtensions != nil {
		if err := props.CollectedExtensions(c, ee.collected); err != nil {
			return err
		}
	}

	if c.pskUsed {
		c.state = stateClientExpectFinished
	} else {
		c.state = stateClientExpectCertificateRequestOrCertificate
	}
	return nil
}

// clientHandleCertificateRequest processes CertificateRequest.
func (c *Conn) clientHandleCertificateRequest(msg []byte) error {
	cr, err := decodeCertificateRequest(msg[4:])
	if err != nil {
		return err
	}
	c.sched.updateHash(msg)
	c.hsc.certReq = cr
	c.state = stateClientExpectCertificate
	return nil
}

// clientHandleCertificate processes Certificate or
// CompressedCertificate.
func (c *Conn) clientHandleCertificate(msg []byte,
	compressed bool) error {

	hs := c.hsc
	body := msg[4:]
	if compressed {
		var err error
		body, err = c.decompressCertificate(body)
		if err != nil {
			return err
		}
	}
	cert, err := decodeCertificate(body)
	if err != nil {
		return err
	}
	c.sched.updateHash(msg)

	if len(cert.chain) == 0 {
		return alertError(AlertIllegalParameter)
	}
	verifySign, err := c.handlePeerCertificate(cert)
	if err != nil {
		return err
	}
	hs.verifySign = verifySign

	c.state = stateClientExpectCertificateVerify
	return nil
}

// clientHandleCertificateVerify processes CertificateVerify.
func (c *Conn) clientHandleCertificateVerify(msg []byte) error {
	hs := c.hsc
	cv, err := decodeCertificateVerify(msg[4:])
	if err != nil {
		return err
	}
	data := certVerifyData(certVerifyContextServer,
		c.sched.transcriptHash())

	if hs.verifySign != nil {
		verify := hs.verifySign
		hs.verifySign = nil
		if err := verify(data, cv.signature); err != nil {
			if e, ok := err.(*Error); ok {
				return e
			}
			return alertErrorf(AlertDecryptError, "%v", err)
		}
	}
	c.sched.updateHash(msg)

	c.state = stateClientExpectFinished
	return nil
}

// clientHandleFinished verifies the server Finished and sends the
// client's final flight.
func (c *Conn) clientHandleFinished(em emitter, msg []byte,
	props *HandshakeProperties) error {

	hs := c.hsc

	expected := c.sched.finishedMAC(hs.serverHsSecret)
	if !MemEqual(expected, msg[4:]) {
		return alertErrorf(AlertDecryptError, "bad finished MAC")
	}
	c.sched.updateHash(msg)

	c.sched.extract(nil)
	serverAppSecret := c.sched.deriveSecret("s ap traffic", nil)
	clientAppSecret := c.sched.deriveSecret("c ap traffic", nil)
	defer ClearMemory(serverAppSecret)
	defer ClearMemory(clientAppSecret)
	if c.ctx.UseExporter {
		c.exporterMaster = c.sched.deriveSecret("exp master", nil)
	}

	if err := c.setTrafficSecret(false, EpochApplication,
		serverAppSecret); err != nil {
		return err
	}

	if err := em.pushChangeCipherSpec(c); err != nil {
		return err
	}
	if hs.earlyAccepted && !c.ctx.OmitEndOfEarlyData {
		err := em.emit(c, c.sched, HTEndOfEarlyData,
			func(buf *Buffer) error {
				return nil
			})
		if err != nil {
			return err
		}
	}
	if err := c.setTrafficSecret(true, EpochHandshake,
		hs.clientHsSecret); err != nil {
		return err
	}

	if hs.certReq != nil {
		if err := c.emitCertificate(em, hs.certReq.requestContext,
			nil, false); err != nil {
			return err
		}
		if len(c.ctx.Certificates) > 0 ||
			c.ctx.EmitCertificate != nil {
			err := c.emitCertificateVerify(em,
				certVerifyContextClient,
				hs.certReq.signatureAlgorithms)
			if err != nil {
				return err
			}
		}
	}

	finished := c.sched.finishedMAC(hs.clientHsSecret)
	err := em.emit(c, c.sched, HTFinished, func(buf *Buffer) error {
		return buf.PushRaw(finished)
	})
	if err != nil {
		return err
	}

	c.resumptionMaster = c.sched.deriveSecret("res master", nil)

	if err := c.setTrafficSecret(true, EpochApplication,
		clientAppSecret); err != nil {
		return err
	}

	c.handshakeComplete = true
	c.state = statePostHandshake

	hs.dispose()
	c.hsc = nil

	c.ctx.log().Debug("handshake complete",
		zap.Bool("server", c.server),
		zap.Stringer("cipher", c.suite.ID),
		zap.Bool("psk", c.pskUsed))
	return nil
}

// clientHandleNewSessionTicket processes a post-handshake
// NewSessionTicket.
func (c *Conn) clientHandleNewSessionTicket(msg []byte) error {
	nst, err := decodeNewSessionTicket(msg[4:])
	if err != nil {
		return err
	}
	if c.ctx.SaveTicket == nil {
		return nil
	}

	psk := hkdfExpandLabel(c.suite.Hash, c.resumptionMaster,
		"resumption", nst.nonce, c.suite.Hash.DigestSize,
		c.ctx.labelPrefix())
	defer ClearMemory(psk)

	ticket := &savedTicket{
		receivedAt: c.ctx.now(),
		group:      c.negotiatedGroup,
		suite:      c.suite.ID,
		nstBody:    msg[4:],
		psk:        psk,
	}
	buf := NewBuffer(nil)
	defer buf.Dispose()
	if err := ticket.encode(buf); err != nil {
		return err
	}
	return c.ctx.SaveTicket(c, buf.Bytes())
}
