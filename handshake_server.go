//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"go.uber.org/zap"
)

// serverHandshake is the server-side handshake state, released when
// the handshake completes.
type serverHandshake struct {
	props             *HandshakeProperties
	verifySign        VerifySignFunc
	clientHsSecret    []byte
	clientAppSecret   []byte
	earlyDataAccepted bool
	esniNonce         []byte
	firstHello        *clientHello
}

func (hs *serverHandshake) dispose() {
	if hs.verifySign != nil {
		hs.verifySign(nil, nil)
		hs.verifySign = nil
	}
	for _, secret := range [][]byte{hs.clientHsSecret,
		hs.clientAppSecret} {
		if secret != nil {
			ClearMemory(secret)
		}
	}
	hs.clientHsSecret = nil
	hs.clientAppSecret = nil
}

// serverHandleClientHello processes a ClientHello: it either emits a
// HelloRetryRequest or the full server flight through Finished.
func (c *Conn) serverHandleClientHello(em emitter, msg []byte,
	props *HandshakeProperties) error {

	secondFlight := c.state == stateServerExpectSecondClientHello
	if c.hss == nil {
		c.hss = &serverHandshake{
			props: props,
		}
	}
	hs := c.hss

	ch, err := decodeClientHello(c, msg, props)
	if err != nil {
		return err
	}
	if ch.legacyVersion != VersionTLS12 {
		return alertError(AlertProtocolVersion)
	}
	offers13 := false
	for _, vers := range ch.supportedVersions {
		if vers == VersionTLS13 {
			offers13 = true
			break
		}
	}
	if !offers13 {
		return alertError(AlertProtocolVersion)
	}
	if len(ch.compressionMethods) != 1 ||
		ch.compressionMethods[0] != 0 {
		return alertError(AlertIllegalParameter)
	}
	copy(c.clientRandom[:], ch.random[:])

	// Cipher suite: the first of our preference present in the
	// offer.
	var suite *CipherSuite
	for _, own := range c.ctx.CipherSuites {
		for _, offered := range ch.cipherSuites {
			if own.ID == offered {
				suite = own
				break
			}
		}
		if suite != nil {
			break
		}
	}
	if suite == nil {
		return alertErrorf(AlertHandshakeFailure,
			"no mutual cipher suite")
	}
	if c.suite != nil && c.suite != suite {
		return alertError(AlertIllegalParameter)
	}
	c.suite = suite

	esniUsed := false
	if len(ch.esni) > 0 && len(c.ctx.ESNI) > 0 {
		name, nonce, err := c.esniDecrypt(ch.esni, ch.random[:])
		if err != nil {
			return err
		}
		c.serverName = name
		hs.esniNonce = nonce
		esniUsed = true
	} else if len(ch.serverName) > 0 {
		c.serverName = ch.serverName
	}

	if len(ch.collected) > 0 && props.CollectedExtensions != nil {
		err := props.CollectedExtensions(c, ch.collected)
		if err != nil {
			return err
		}
	}
	if c.ctx.OnClientHello != nil {
		err := c.ctx.OnClientHello(c, &ClientHelloInfo{
			ServerName:          c.serverName,
			NegotiatedProtocols: ch.alpn,
			SignatureAlgorithms: ch.signatureAlgorithms,
			CertificateCompressionAlgorithms: ch.compressAlgos,
			ESNI:                esniUsed,
		})
		if err != nil {
			return err
		}
	}

	// Group selection: the first of our key exchanges the client
	// supports; usable directly only with a matching key share.
	var negotiated *KeyExchangeAlgorithm
	var clientShare *keyShareEntry
	for _, algo := range c.ctx.KeyExchanges {
		supported := false
		for _, group := range ch.supportedGroups {
			if group == algo.ID {
				supported = true
				break
			}
		}
		if !supported {
			continue
		}
		negotiated = algo
		for i := range ch.keyShares {
			if ch.keyShares[i].group == algo.ID {
				clientShare = &ch.keyShares[i]
				break
			}
		}
		break
	}

	// Stateless retry: a cookie on the first observed ClientHello
	// resumes a discarded connection.
	if !secondFlight && len(ch.cookie) > 0 &&
		len(props.Server.Cookie.Key) > 0 {
		if err := c.serverRestoreRetry(ch, props); err != nil {
			return err
		}
		secondFlight = true
	}

	if !secondFlight &&
		(clientShare == nil || props.Server.EnforceRetry) {
		if negotiated == nil {
			return alertErrorf(AlertHandshakeFailure,
				"no mutual key exchange group")
		}
		hs.firstHello = ch
		// A retry that is not changing the group carries only the
		// cookie; naming a group the client offered a share for is
		// a protocol violation.
		shareGroup := negotiated.ID
		if clientShare != nil {
			shareGroup = 0
		}
		return c.serverSendRetry(em, msg, ch, negotiated, shareGroup,
			props)
	}
	if secondFlight {
		if err := c.serverCheckSecondHello(ch); err != nil {
			return err
		}
		if clientShare == nil || negotiated == nil ||
			clientShare.group != c.negotiatedGroup {
			return alertErrorf(AlertIllegalParameter,
				"retry did not produce key share for %v",
				c.negotiatedGroup)
		}
	}
	if negotiated != nil {
		c.negotiatedGroup = negotiated.ID
	}
	hs.firstHello = ch

	if c.sched == nil {
		c.sched = newKeySchedule(c.ctx.labelPrefix())
	}
	c.sched.selectHash(suite.Hash)

	// PSK selection before transcript update: the binder MAC
	// covers the hello truncated at the binders list.
	var session *sessionState
	var selectedIdentity int
	if len(ch.pskIdentities) > 0 && c.ctx.EncryptTicket != nil {
		session, selectedIdentity = c.serverSelectPSK(ch)
	}

	var pskOK bool
	if session != nil {
		modeOK := false
		needDHE := c.ctx.RequireDHEOnPSK
		for _, mode := range ch.pskModes {
			if mode == PSKModeDHE {
				modeOK = true
				needDHE = needDHE || clientShare != nil
				break
			}
			if mode == PSKModeKE && !c.ctx.RequireDHEOnPSK {
				modeOK = true
			}
		}
		if needDHE && clientShare == nil {
			modeOK = false
		}
		if modeOK {
			c.sched.updateHash(msg[:ch.bindersOffset])
			c.sched.extract(session.psk)

			binderKey := c.sched.deriveSecret("res binder",
				suite.Hash.EmptyDigest())
			expected := c.sched.finishedMAC(binderKey)
			ClearMemory(binderKey)

			if !MemEqual(expected, ch.pskBinders[selectedIdentity]) {
				return alertErrorf(AlertDecryptError,
					"PSK binder mismatch")
			}
			props.Server.SelectedPSKBinder = append(
				props.Server.SelectedPSKBinder[:0], expected...)
			c.sched.updateHash(msg[ch.bindersOffset:])
			c.pskUsed = true
			pskOK = true

			if len(session.negotiatedProtocol) > 0 {
				c.negotiatedProtocol = session.negotiatedProtocol
			}
			if ch.earlyData && selectedIdentity == 0 &&
				!secondFlight && session.maxEarlyDataSize > 0 {
				hs.earlyDataAccepted = true
			}
		}
	}
	if !pskOK {
		c.sched.updateHash(msg)
		c.sched.extract(nil)
		if ch.earlyData {
			// Early data rejected; skip records we cannot open.
			c.skipEarlyData = true
			c.maxSkipBytes = int(c.ctx.MaxEarlyDataSize) + 65536
		}
	}
	if c.pskUsed && c.ctx.RequireClientAuthentication {
		return alertErrorf(AlertHandshakeFailure,
			"client authentication requires a certificate handshake")
	}

	// Early traffic secrets derive from the hello transcript.
	var earlySecret []byte
	if hs.earlyDataAccepted {
		earlySecret = c.sched.deriveSecret("c e traffic", nil)
		if c.ctx.UseExporter {
			c.earlyExporterMaster = c.sched.deriveSecret(
				"e exp master", nil)
		}
	}

	// Key exchange.
	var sharedSecret, serverShare []byte
	if clientShare != nil && (!pskOK || pskDHESelected(ch) ||
		c.ctx.RequireDHEOnPSK) {
		serverShare, sharedSecret, err = negotiated.Exchange(
			c.ctx.random(), clientShare.keyExchange)
		if err != nil {
			return alertErrorf(AlertIllegalParameter,
				"key exchange: %v", err)
		}
	} else if !pskOK {
		return alertError(AlertMissingExtension)
	}

	return c.serverSendFlight(em, ch, props, session, selectedIdentity,
		serverShare, sharedSecret, earlySecret, esniUsed)
}

// pskDHESelected reports whether the handshake uses the psk_dhe_ke
// mode.
func pskDHESelected(ch *clientHello) bool {
	for _, mode := range ch.pskModes {
		if mode == PSKModeDHE {
			return true
		}
	}
	return false
}

// serverSelectPSK decrypts the offered ticket identities and returns
// the first usable session state.
func (c *Conn) serverSelectPSK(ch *clientHello) (*sessionState, int) {
	now := c.ctx.now()
	for i, identity := range ch.pskIdentities {
		buf := NewBuffer(nil)
		err := c.ctx.EncryptTicket(c, false, buf, identity.identity)
		if err != nil {
			buf.Dispose()
			continue
		}
		session, err := decodeSessionState(buf.Bytes())
		if err != nil {
			buf.Dispose()
			continue
		}
		if session.suite != c.suite.ID {
			continue
		}
		age := now - session.issuedAt
		if age/1000 >= uint64(c.ctx.TicketLifetime) {
			continue
		}
		return session, i
	}
	return nil, 0
}

// cookieMAC computes the cookie integrity MAC over the negotiation
// state.
func (c *Conn) cookieMAC(ch1Hash []byte, group, shareGroup NamedGroup,
	props *HandshakeProperties) []byte {

	mac := c.suite.Hash.HMAC(props.Server.Cookie.Key)
	var scratch [6]byte
	bo.PutUint16(scratch[0:2], uint16(c.suite.ID))
	bo.PutUint16(scratch[2:4], uint16(group))
	bo.PutUint16(scratch[4:6], uint16(shareGroup))
	mac.Write(scratch[:])
	mac.Write(ch1Hash)
	mac.Write(props.Server.Cookie.AdditionalData)
	return mac.Sum(nil)
}

// hrrCookie seals the first-hello transcript hash, the selected
// group, and the retry shape under the cookie HMAC key.
func (c *Conn) hrrCookie(ch1Hash []byte, group, shareGroup NamedGroup,
	props *HandshakeProperties) []byte {

	sum := c.cookieMAC(ch1Hash, group, shareGroup, props)

	buf := NewBuffer(nil)
	buf.PushUint16(uint16(group))
	buf.PushUint16(uint16(shareGroup))
	buf.PushBlock(1, func() error {
		return buf.PushRaw(ch1Hash)
	})
	buf.PushBlock(1, func() error {
		return buf.PushRaw(sum)
	})
	return buf.Bytes()
}

// verifyHRRCookie authenticates a cookie and returns the selected
// group, the group named in the retry's key_share extension (zero if
// absent), and the first-hello transcript hash.
func (c *Conn) verifyHRRCookie(cookie []byte,
	props *HandshakeProperties) (NamedGroup, NamedGroup, []byte,
	error) {

	d := NewDecoder(cookie)
	group, err := d.Uint16()
	if err != nil {
		return 0, 0, nil, err
	}
	shareGroup, err := d.Uint16()
	if err != nil {
		return 0, 0, nil, err
	}
	ch1Hash, err := d.Block(1)
	if err != nil {
		return 0, 0, nil, err
	}
	sum, err := d.Block(1)
	if err != nil {
		return 0, 0, nil, err
	}
	if err := d.Close(); err != nil {
		return 0, 0, nil, err
	}

	expected := c.cookieMAC(ch1Hash, NamedGroup(group),
		NamedGroup(shareGroup), props)
	if !MemEqual(expected, sum) {
		return 0, 0, nil, alertErrorf(AlertHandshakeFailure,
			"cookie verification failed")
	}
	return NamedGroup(group), NamedGroup(shareGroup), ch1Hash, nil
}

// hrrBody writes the HelloRetryRequest message body.
func (c *Conn) hrrBody(buf *Buffer, sessionID []byte, group NamedGroup,
	cookie []byte) error {

	if err := buf.PushUint16(uint16(VersionTLS12)); err != nil {
		return err
	}
	if err := buf.PushRaw(helloRetryRequestRandom[:]); err != nil {
		return err
	}
	if err := buf.PushBlock(1, func() error {
		return buf.PushRaw(sessionID)
	}); err != nil {
		return err
	}
	if err := buf.PushUint16(uint16(c.suite.ID)); err != nil {
		return err
	}
	if err := buf.PushUint8(0); err != nil {
		return err
	}
	return buf.PushBlock(2, func() error {
		err := pushExtension(buf, ETSupportedVersions, func() error {
			return buf.PushUint16(uint16(VersionTLS13))
		})
		if err != nil {
			return err
		}
		if group != 0 {
			err = pushExtension(buf, ETKeyShare, func() error {
				return buf.PushUint16(uint16(group))
			})
			if err != nil {
				return err
			}
		}
		if len(cookie) > 0 {
			err = pushExtension(buf, ETCookie, func() error {
				return buf.PushBlock(2, func() error {
					return buf.PushRaw(cookie)
				})
			})
		}
		return err
	})
}

// serverSendRetry emits a HelloRetryRequest. The shareGroup names
// the group of the retry's key_share extension; zero omits the
// extension for a cookie-only retry.
func (c *Conn) serverSendRetry(em emitter, msg []byte,
	ch *clientHello, negotiated *KeyExchangeAlgorithm,
	shareGroup NamedGroup, props *HandshakeProperties) error {

	if props.Server.RetryUsesCookie &&
		len(props.Server.Cookie.Key) == 0 {
		return internalErrorf(ErrorNotAvailable,
			"stateless retry requires a cookie key")
	}
	if shareGroup == 0 && !props.Server.RetryUsesCookie {
		// The retry must change something the client can act on.
		return internalErrorf(ErrorNotAvailable,
			"retry without group change requires a cookie")
	}

	c.sched = newKeySchedule(c.ctx.labelPrefix())
	c.sched.selectHash(c.suite.Hash)
	c.sched.updateHash(msg)
	ch1Hash := c.sched.transcriptHash()
	c.sched.rollMessageHash()

	var cookie []byte
	if props.Server.RetryUsesCookie {
		cookie = c.hrrCookie(ch1Hash, negotiated.ID, shareGroup,
			props)
	}

	err := em.emit(c, c.sched, HTServerHello, func(buf *Buffer) error {
		return c.hrrBody(buf, ch.legacySessionID, shareGroup, cookie)
	})
	if err != nil {
		return err
	}
	if err := em.pushChangeCipherSpec(c); err != nil {
		return err
	}

	c.negotiatedGroup = negotiated.ID
	c.state = stateServerExpectSecondClientHello
	if ch.earlyData {
		// Early data cannot survive a retry; skip it.
		c.skipEarlyData = true
		c.maxSkipBytes = int(c.ctx.MaxEarlyDataSize) + 65536
	}

	c.ctx.log().Debug("sent HelloRetryRequest",
		zap.Stringer("group", negotiated.ID),
		zap.Bool("stateless", props.Server.RetryUsesCookie))

	if props.Server.RetryUsesCookie {
		return ErrStatelessRetry
	}
	return nil
}

// serverRestoreRetry reconstructs the handshake transcript of a
// stateless retry from the client's cookie.
func (c *Conn) serverRestoreRetry(ch *clientHello,
	props *HandshakeProperties) error {

	group, shareGroup, ch1Hash, err := c.verifyHRRCookie(ch.cookie,
		props)
	if err != nil {
		return err
	}
	c.negotiatedGroup = group

	c.sched = newKeySchedule(c.ctx.labelPrefix())
	c.sched.selectHash(c.suite.Hash)
	c.sched.injectMessageHash(ch1Hash)

	hrr, err := buildMessage(HTServerHello, func(buf *Buffer) error {
		return c.hrrBody(buf, ch.legacySessionID, shareGroup,
			ch.cookie)
	})
	if err != nil {
		return err
	}
	c.sched.updateHash(hrr)
	return nil
}

// serverCheckSecondHello rejects parameter changes between the two
// ClientHellos of a retried handshake.
func (c *Conn) serverCheckSecondHello(ch *clientHello) error {
	first := c.hss.firstHello
	if first == nil {
		// Stateless retry: the first hello is bound through the
		// cookie transcript hash instead.
		return nil
	}
	if ch.random != first.random {
		return alertErrorf(AlertIllegalParameter,
			"client random changed on retry")
	}
	if !MemEqual(ch.legacySessionID, first.legacySessionID) {
		return alertErrorf(AlertIllegalParameter,
			"legacy_session_id changed on retry")
	}
	if len(ch.cipherSuites) != len(first.cipherSuites) {
		return alertErrorf(AlertIllegalParameter,
			"cipher suites changed on retry")
	}
	for i, suite := range ch.cipherSuites {
		if suite != first.cipherSuites[i] {
			return alertErrorf(AlertIllegalParameter,
				"cipher suites changed on retry")
		}
	}
	if ch.serverName != first.serverName {
		return alertErrorf(AlertIllegalParameter,
			"server name changed on retry")
	}
	return nil
}

// serverSendFlight emits ServerHello through Finished and installs
// the handshake and application secrets.
func (c *Conn) serverSendFlight(em emitter, ch *clientHello,
	props *HandshakeProperties, session *sessionState,
	selectedIdentity int, serverShare, sharedSecret,
	earlySecret []byte, esniUsed bool) error {

	hs := c.hss
	random := c.ctx.random()

	var serverRandom [helloRandomSize]byte
	if _, err := random.Read(serverRandom[:]); err != nil {
		return internalErrorf(ErrorLibrary, "random: %v", err)
	}

	err := em.emit(c, c.sched, HTServerHello, func(buf *Buffer) error {
		if err := buf.PushUint16(uint16(VersionTLS12)); err != nil {
			return err
		}
		if err := buf.PushRaw(serverRandom[:]); err != nil {
			return err
		}
		if err := buf.PushBlock(1, func() error {
			return buf.PushRaw(ch.legacySessionID)
		}); err != nil {
			return err
		}
		if err := buf.PushUint16(uint16(c.suite.ID)); err != nil {
			return err
		}
		if err := buf.PushUint8(0); err != nil {
			return err
		}
		return buf.PushBlock(2, func() error {
			err := pushExtension(buf, ETSupportedVersions,
				func() error {
					return buf.PushUint16(uint16(VersionTLS13))
				})
			if err != nil {
				return err
			}
			if serverShare != nil {
				err = pushExtension(buf, ETKeyShare, func() error {
					if err := buf.PushUint16(
						uint16(c.negotiatedGroup)); err != nil {
						return err
					}
					return buf.PushBlock(2, func() error {
						return buf.PushRaw(serverShare)
					})
				})
				if err != nil {
					return err
				}
			}
			if c.pskUsed {
				err = pushExtension(buf, ETPreSharedKey,
					func() error {
						return buf.PushUint16(
							uint16(selectedIdentity))
					})
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	if err := em.pushChangeCipherSpec(c); err != nil {
		return err
	}

	// Handshake secrets cover the transcript through ServerHello.
	c.sched.extract(sharedSecret)
	if sharedSecret != nil {
		ClearMemory(sharedSecret)
	}
	hs.clientHsSecret = c.sched.deriveSecret("c hs traffic", nil)
	serverHsSecret := c.sched.deriveSecret("s hs traffic", nil)
	defer ClearMemory(serverHsSecret)

	if err := c.setTrafficSecret(true, EpochHandshake,
		serverHsSecret); err != nil {
		return err
	}
	if hs.earlyDataAccepted {
		if err := c.setTrafficSecret(false, EpochEarlyData,
			earlySecret); err != nil {
			return err
		}
		ClearMemory(earlySecret)
		// The inbound handshake epoch starts when early data
		// ends.
		c.pendingInSecret = append([]byte(nil),
			hs.clientHsSecret...)
	} else {
		if err := c.setTrafficSecret(false, EpochHandshake,
			hs.clientHsSecret); err != nil {
			return err
		}
	}

	err = em.emit(c, c.sched, HTEncryptedExtensions,
		func(buf *Buffer) error {
			return buf.PushBlock(2, func() error {
				return c.encryptedExtensionsBody(buf, props,
					esniUsed)
			})
		})
	if err != nil {
		return err
	}

	if !c.pskUsed {
		if c.ctx.RequireClientAuthentication {
			err = em.emit(c, c.sched, HTCertificateRequest,
				func(buf *Buffer) error {
					if err := buf.PushBlock(1, func() error {
						return nil
					}); err != nil {
						return err
					}
					return buf.PushBlock(2, func() error {
						return pushExtension(buf,
							ETSignatureAlgorithms, func() error {
								return buf.PushBlock(2, func() error {
									for _, s := range defaultSignatureSchemes {
										if err := buf.PushUint16(
											uint16(s)); err != nil {
											return err
										}
									}
									return nil
								})
							})
					})
				})
			if err != nil {
				return err
			}
		}
		err = c.emitCertificate(em, nil, ch.compressAlgos,
			ch.statusRequest)
		if err != nil {
			return err
		}
		err = c.emitCertificateVerify(em, certVerifyContextServer,
			ch.signatureAlgorithms)
		if err != nil {
			return err
		}
	}

	finished := c.sched.finishedMAC(serverHsSecret)
	err = em.emit(c, c.sched, HTFinished, func(buf *Buffer) error {
		return buf.PushRaw(finished)
	})
	if err != nil {
		return err
	}

	// Application secrets cover the transcript through the server
	// Finished.
	c.sched.extract(nil)
	serverAppSecret := c.sched.deriveSecret("s ap traffic", nil)
	defer ClearMemory(serverAppSecret)
	hs.clientAppSecret = c.sched.deriveSecret("c ap traffic", nil)
	if c.ctx.UseExporter {
		c.exporterMaster = c.sched.deriveSecret("exp master", nil)
	}

	if err := c.setTrafficSecret(true, EpochApplication,
		serverAppSecret); err != nil {
		return err
	}

	if hs.earlyDataAccepted {
		c.state = stateServerExpectEndOfEarlyData
	} else if c.ctx.RequireClientAuthentication {
		c.state = stateServerExpectCertificate
	} else {
		c.state = stateServerExpectFinished
	}
	return nil
}

// encryptedExtensionsBody writes the extension list of
// EncryptedExtensions.
func (c *Conn) encryptedExtensionsBody(buf *Buffer,
	props *HandshakeProperties, esniUsed bool) error {

	hs := c.hss

	if len(c.serverName) > 0 && !esniUsed {
		err := pushExtension(buf, ETServerName, func() error {
			return nil
		})
		if err != nil {
			return err
		}
	}
	if esniUsed && hs.esniNonce != nil {
		err := pushExtension(buf, ETEncryptedServerName,
			func() error {
				return buf.PushRaw(hs.esniNonce)
			})
		if err != nil {
			return err
		}
	}
	if len(c.negotiatedProtocol) > 0 {
		err := pushExtension(buf, ETALPN, func() error {
			return buf.PushBlock(2, func() error {
				return buf.PushBlock(1, func() error {
					return buf.PushRaw(
						[]byte(c.negotiatedProtocol))
				})
			})
		})
		if err != nil {
			return err
		}
	}
	if hs.earlyDataAccepted {
		err := pushExtension(buf, ETEarlyData, func() error {
			return nil
		})
		if err != nil {
			return err
		}
	}
	for _, ext := range props.AdditionalExtensions {
		err := pushExtension(buf, ext.Type, func() error {
			return buf.PushRaw(ext.Data)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// serverHandleEndOfEarlyData processes EndOfEarlyData and switches
// the inbound protection to the handshake epoch.
func (c *Conn) serverHandleEndOfEarlyData(msg []byte) error {
	if c.ctx.OmitEndOfEarlyData {
		return alertError(AlertUnexpectedMessage)
	}
	if len(msg) != 4 {
		return alertError(AlertDecodeError)
	}
	c.sched.updateHash(msg)
	return c.installPendingInSecret()
}

// serverHandleClientCertificate processes the client Certificate.
func (c *Conn) serverHandleClientCertificate(msg []byte) error {
	hs := c.hss
	cert, err := decodeCertificate(msg[4:])
	if err != nil {
		return err
	}
	c.sched.updateHash(msg)

	if len(cert.chain) == 0 {
		return alertErrorf(AlertCertificateRequired,
			"client certificate required")
	}
	verifySign, err := c.handlePeerCertificate(cert)
	if err != nil {
		return err
	}
	hs.verifySign = verifySign

	c.state = stateServerExpectCertificateVerify
	return nil
}

// serverHandleClientCertificateVerify processes the client
// CertificateVerify.
func (c *Conn) serverHandleClientCertificateVerify(msg []byte) error {
	hs := c.hss
	cv, err := decodeCertificateVerify(msg[4:])
	if err != nil {
		return err
	}
	data := certVerifyData(certVerifyContextClient,
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

	c.state = stateServerExpectFinished
	return nil
}

// serverHandleFinished verifies the client Finished, completes the
// handshake, and emits a NewSessionTicket.
func (c *Conn) serverHandleFinished(em emitter, msg []byte) error {
	hs := c.hss

	expected := c.sched.finishedMAC(hs.clientHsSecret)
	if !MemEqual(expected, msg[4:]) {
		return alertErrorf(AlertDecryptError, "bad finished MAC")
	}
	c.sched.updateHash(msg)

	c.resumptionMaster = c.sched.deriveSecret("res master", nil)

	if err := c.setTrafficSecret(false, EpochApplication,
		hs.clientAppSecret); err != nil {
		return err
	}

	c.handshakeComplete = true
	c.state = statePostHandshake
	c.skipEarlyData = false

	err := c.serverSendNewSessionTicket(em)
	if err != nil {
		return err
	}

	hs.dispose()
	c.hss = nil

	c.ctx.log().Debug("handshake complete",
		zap.Bool("server", c.server),
		zap.Stringer("cipher", c.suite.ID),
		zap.Bool("psk", c.pskUsed))
	return nil
}

// serverSendNewSessionTicket emits one NewSessionTicket when tickets
// are configured.
func (c *Conn) serverSendNewSessionTicket(em emitter) error {
	if c.ctx.TicketLifetime == 0 || c.ctx.EncryptTicket == nil {
		return nil
	}

	nonce := []byte{0}
	psk := hkdfExpandLabel(c.suite.Hash, c.resumptionMaster,
		"resumption", nonce, c.suite.Hash.DigestSize,
		c.ctx.labelPrefix())
	defer ClearMemory(psk)

	state := &sessionState{
		issuedAt:           c.ctx.now(),
		suite:              c.suite.ID,
		maxEarlyDataSize:   c.ctx.MaxEarlyDataSize,
		psk:                psk,
		negotiatedProtocol: c.negotiatedProtocol,
		serverName:         c.serverName,
	}
	plain := NewBuffer(nil)
	defer plain.Dispose()
	if err := state.encode(plain); err != nil {
		return err
	}

	sealed := NewBuffer(nil)
	defer sealed.Dispose()
	err := c.ctx.EncryptTicket(c, true, sealed, plain.Bytes())
	if err != nil {
		return err
	}

	var ageAdd [4]byte
	if _, err := c.ctx.random().Read(ageAdd[:]); err != nil {
		return internalErrorf(ErrorLibrary, "random: %v", err)
	}

	return em.emit(c, nil, HTNewSessionTicket,
		func(buf *Buffer) error {
			if err := buf.PushUint32(
				c.ctx.TicketLifetime); err != nil {
				return err
			}
			if err := buf.PushUint32(bo.Uint32(ageAdd[:])); err != nil {
				return err
			}
			if err := buf.PushBlock(1, func() error {
				return buf.PushRaw(nonce)
			}); err != nil {
				return err
			}
			if err := buf.PushBlock(2, func() error {
				return buf.PushRaw(sealed.Bytes())
			}); err != nil {
				return err
			}
			return buf.PushBlock(2, func() error {
				if c.ctx.MaxEarlyDataSize == 0 {
					return nil
				}
				return pushExtension(buf, ETEarlyData,
					func() error {
						return buf.PushUint32(
							c.ctx.MaxEarlyDataSize)
					})
			})
		})
}
