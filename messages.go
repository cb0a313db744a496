//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

// keyShareEntry is a key_share extension entry.
type keyShareEntry struct {
	group       NamedGroup
	keyExchange []byte
}

// pskIdentity is a pre_shared_key identity.
type pskIdentity struct {
	identity            []byte
	obfuscatedTicketAge uint32
}

// extensionSet tracks seen extension types for duplicate detection.
type extensionSet map[ExtensionType]bool

func (set extensionSet) add(typ ExtensionType) error {
	if set[typ] {
		return alertErrorf(AlertIllegalParameter,
			"duplicate extension %v", typ)
	}
	set[typ] = true
	return nil
}

// decodeExtensions walks a 2-byte length-prefixed extension list,
// calling the handler for each extension. Duplicates are fatal.
func decodeExtensions(d *Decoder,
	handler func(typ ExtensionType, data *Decoder) error) error {

	exts, err := d.OpenBlock(2)
	if err != nil {
		return err
	}
	seen := make(extensionSet)
	for !exts.Empty() {
		typ, err := exts.Uint16()
		if err != nil {
			return err
		}
		body, err := exts.OpenBlock(2)
		if err != nil {
			return err
		}
		if err := seen.add(ExtensionType(typ)); err != nil {
			return err
		}
		if err := handler(ExtensionType(typ), body); err != nil {
			return err
		}
	}
	return nil
}

// pushExtension writes one extension: type and 2-byte length-prefixed
// body.
func pushExtension(buf *Buffer, typ ExtensionType,
	body func() error) error {

	if err := buf.PushUint16(uint16(typ)); err != nil {
		return err
	}
	return buf.PushBlock(2, body)
}

// clientHello is the decoded client_hello message.
type clientHello struct {
	legacyVersion      ProtocolVersion
	random             [helloRandomSize]byte
	legacySessionID    []byte
	cipherSuites       []CipherSuiteID
	compressionMethods []byte

	serverName          string
	esni                []byte
	alpn                []string
	supportedGroups     []NamedGroup
	signatureAlgorithms []SignatureScheme
	supportedVersions   []ProtocolVersion
	keyShares           []keyShareEntry
	pskModes            []PSKKeyExchangeMode
	pskIdentities       []pskIdentity
	pskBinders          [][]byte
	// bindersOffset is the offset of the binders list within the
	// full handshake message (including the 4-byte header); zero
	// when no pre_shared_key extension is present.
	bindersOffset int
	earlyData     bool
	cookie        []byte
	compressAlgos []CertificateCompressionAlgorithm
	statusRequest bool
	collected     []RawExtension
}

// decodeClientHello parses the body of a client_hello message. The
// msg argument is the full message including the 4-byte header; it is
// needed to compute the binder offset for PSK verification.
func decodeClientHello(c *Conn, msg []byte,
	props *HandshakeProperties) (*clientHello, error) {

	ch := new(clientHello)
	d := NewDecoder(msg[4:])

	vers, err := d.Uint16()
	if err != nil {
		return nil, err
	}
	ch.legacyVersion = ProtocolVersion(vers)

	random, err := d.Raw(helloRandomSize)
	if err != nil {
		return nil, err
	}
	copy(ch.random[:], random)

	ch.legacySessionID, err = d.Block(1)
	if err != nil {
		return nil, err
	}
	if len(ch.legacySessionID) > 32 {
		return nil, alertError(AlertDecodeError)
	}

	suites, err := d.OpenBlock(2)
	if err != nil {
		return nil, err
	}
	for !suites.Empty() {
		id, err := suites.Uint16()
		if err != nil {
			return nil, err
		}
		ch.cipherSuites = append(ch.cipherSuites, CipherSuiteID(id))
	}

	ch.compressionMethods, err = d.Block(1)
	if err != nil {
		return nil, err
	}

	err = decodeExtensions(d, func(typ ExtensionType,
		data *Decoder) error {

		if ch.bindersOffset != 0 {
			// pre_shared_key was not the last extension.
			return alertErrorf(AlertIllegalParameter,
				"%v after pre_shared_key", typ)
		}
		switch typ {
		case ETServerName:
			return ch.decodeServerName(data)

		case ETEncryptedServerName:
			ch.esni = data.Rest()
			return nil

		case ETALPN:
			list, err := data.OpenBlock(2)
			if err != nil {
				return err
			}
			for !list.Empty() {
				name, err := list.Block(1)
				if err != nil {
					return err
				}
				ch.alpn = append(ch.alpn, string(name))
			}
			return data.Close()

		case ETSupportedGroups:
			list, err := data.OpenBlock(2)
			if err != nil {
				return err
			}
			for !list.Empty() {
				group, err := list.Uint16()
				if err != nil {
					return err
				}
				ch.supportedGroups = append(ch.supportedGroups,
					NamedGroup(group))
			}
			return data.Close()

		case ETSignatureAlgorithms:
			list, err := data.OpenBlock(2)
			if err != nil {
				return err
			}
			for !list.Empty() {
				scheme, err := list.Uint16()
				if err != nil {
					return err
				}
				ch.signatureAlgorithms =
					append(ch.signatureAlgorithms,
						SignatureScheme(scheme))
			}
			return data.Close()

		case ETSupportedVersions:
			list, err := data.OpenBlock(1)
			if err != nil {
				return err
			}
			for !list.Empty() {
				vers, err := list.Uint16()
				if err != nil {
					return err
				}
				ch.supportedVersions = append(ch.supportedVersions,
					ProtocolVersion(vers))
			}
			return data.Close()

		case ETKeyShare:
			list, err := data.OpenBlock(2)
			if err != nil {
				return err
			}
			for !list.Empty() {
				group, err := list.Uint16()
				if err != nil {
					return err
				}
				key, err := list.Block(2)
				if err != nil {
					return err
				}
				ch.keyShares = append(ch.keyShares, keyShareEntry{
					group:       NamedGroup(group),
					keyExchange: key,
				})
			}
			return data.Close()

		case ETPSKKeyExchangeModes:
			list, err := data.OpenBlock(1)
			if err != nil {
				return err
			}
			for !list.Empty() {
				mode, err := list.Uint8()
				if err != nil {
					return err
				}
				ch.pskModes = append(ch.pskModes,
					PSKKeyExchangeMode(mode))
			}
			return data.Close()

		case ETPreSharedKey:
			return ch.decodePreSharedKey(msg, data)

		case ETEarlyData:
			ch.earlyData = true
			return data.Close()

		case ETCookie:
			cookie, err := data.Block(2)
			if err != nil {
				return err
			}
			if len(cookie) == 0 {
				return alertError(AlertDecodeError)
			}
			ch.cookie = cookie
			return data.Close()

		case ETCompressCertificate:
			list, err := data.OpenBlock(1)
			if err != nil {
				return err
			}
			for !list.Empty() {
				algo, err := list.Uint16()
				if err != nil {
					return err
				}
				ch.compressAlgos = append(ch.compressAlgos,
					CertificateCompressionAlgorithm(algo))
			}
			return data.Close()

		case ETStatusRequest:
			ch.statusRequest = true
			return nil

		default:
			// Unknown extensions are ignored, optionally
			// collected for the caller.
			if props != nil && props.CollectExtension != nil &&
				props.CollectExtension(c, typ) {
				ch.collected = append(ch.collected, RawExtension{
					Type: typ,
					Data: append([]byte(nil), data.Rest()...),
				})
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	if err := d.Close(); err != nil {
		return nil, err
	}
	return ch, nil
}

func (ch *clientHello) decodeServerName(data *Decoder) error {
	list, err := data.OpenBlock(2)
	if err != nil {
		return err
	}
	for !list.Empty() {
		typ, err := list.Uint8()
		if err != nil {
			return err
		}
		name, err := list.Block(2)
		if err != nil {
			return err
		}
		if typ == 0 {
			if len(name) == 0 {
				return alertError(AlertDecodeError)
			}
			ch.serverName = string(name)
		}
	}
	return data.Close()
}

func (ch *clientHello) decodePreSharedKey(msg []byte,
	data *Decoder) error {

	identities, err := data.OpenBlock(2)
	if err != nil {
		return err
	}
	for !identities.Empty() {
		identity, err := identities.Block(2)
		if err != nil {
			return err
		}
		age, err := identities.Uint32()
		if err != nil {
			return err
		}
		ch.pskIdentities = append(ch.pskIdentities, pskIdentity{
			identity:            identity,
			obfuscatedTicketAge: age,
		})
	}

	// The binders list begins here; everything before it is
	// covered by the binder MACs.
	ch.bindersOffset = len(msg) - data.Avail()

	binders, err := data.OpenBlock(2)
	if err != nil {
		return err
	}
	for !binders.Empty() {
		binder, err := binders.Block(1)
		if err != nil {
			return err
		}
		ch.pskBinders = append(ch.pskBinders, binder)
	}
	if len(ch.pskBinders) != len(ch.pskIdentities) {
		return alertError(AlertIllegalParameter)
	}
	return data.Close()
}

// serverHello is the decoded server_hello message, which doubles as
// HelloRetryRequest.
type serverHello struct {
	random          [helloRandomSize]byte
	legacySessionID []byte
	cipherSuite     CipherSuiteID

	selectedVersion ProtocolVersion
	keyShare        *keyShareEntry
	retryGroup      NamedGroup
	cookie          []byte
	pskIdentity     int
	hasPSK          bool
}

// isHelloRetryRequest reports whether the message is a
// HelloRetryRequest.
func (sh *serverHello) isHelloRetryRequest() bool {
	return sh.random == helloRetryRequestRandom
}

// decodeServerHello parses the body of a server_hello message.
func decodeServerHello(body []byte) (*serverHello, error) {
	sh := &serverHello{
		pskIdentity: -1,
	}
	d := NewDecoder(body)

	vers, err := d.Uint16()
	if err != nil {
		return nil, err
	}
	if ProtocolVersion(vers) != VersionTLS12 {
		return nil, alertError(AlertIllegalParameter)
	}

	random, err := d.Raw(helloRandomSize)
	if err != nil {
		return nil, err
	}
	copy(sh.random[:], random)

	sh.legacySessionID, err = d.Block(1)
	if err != nil {
		return nil, err
	}

	suite, err := d.Uint16()
	if err != nil {
		return nil, err
	}
	sh.cipherSuite = CipherSuiteID(suite)

	compression, err := d.Uint8()
	if err != nil {
		return nil, err
	}
	if compression != 0 {
		return nil, alertError(AlertIllegalParameter)
	}

	hrr := sh.isHelloRetryRequest()

	err = decodeExtensions(d, func(typ ExtensionType,
		data *Decoder) error {

		switch typ {
		case ETSupportedVersions:
			vers, err := data.Uint16()
			if err != nil {
				return err
			}
			sh.selectedVersion = ProtocolVersion(vers)
			return data.Close()

		case ETKeyShare:
			if hrr {
				group, err := data.Uint16()
				if err != nil {
					return err
				}
				sh.retryGroup = NamedGroup(group)
				return data.Close()
			}
			group, err := data.Uint16()
			if err != nil {
				return err
			}
			key, err := data.Block(2)
			if err != nil {
				return err
			}
			sh.keyShare = &keyShareEntry{
				group:       NamedGroup(group),
				keyExchange: key,
			}
			return data.Close()

		case ETCookie:
			if !hrr {
				return alertError(AlertUnexpectedMessage)
			}
			cookie, err := data.Block(2)
			if err != nil {
				return err
			}
			sh.cookie = cookie
			return data.Close()

		case ETPreSharedKey:
			if hrr {
				return alertError(AlertIllegalParameter)
			}
			identity, err := data.Uint16()
			if err != nil {
				return err
			}
			sh.pskIdentity = int(identity)
			sh.hasPSK = true
			return data.Close()

		default:
			return alertErrorf(AlertIllegalParameter,
				"extension %v in ServerHello", typ)
		}
	})
	if err != nil {
		return nil, err
	}
	if err := d.Close(); err != nil {
		return nil, err
	}
	if sh.selectedVersion != VersionTLS13 {
		return nil, alertError(AlertProtocolVersion)
	}
	return sh, nil
}

// encryptedExtensions is the decoded encrypted_extensions message.
type encryptedExtensions struct {
	alpn          string
	earlyData     bool
	serverNameAck bool
	esniNonce     []byte
	collected     []RawExtension
}

func decodeEncryptedExtensions(c *Conn, body []byte,
	props *HandshakeProperties) (*encryptedExtensions, error) {

	ee := new(encryptedExtensions)
	d := NewDecoder(body)

	err := decodeExtensions(d, func(typ ExtensionType,
		data *Decoder) error {

		switch typ {
		case ETServerName:
			// Empty acknowledgement of SNI.
			ee.serverNameAck = true
			return data.Close()

		case ETALPN:
			list, err := data.OpenBlock(2)
			if err != nil {
				return err
			}
			name, err := list.Block(1)
			if err != nil {
				return err
			}
			if err := list.Close(); err != nil {
				return err
			}
			ee.alpn = string(name)
			return data.Close()

		case ETEarlyData:
			ee.earlyData = true
			return data.Close()

		case ETEncryptedServerName:
			ee.esniNonce = data.Rest()
			return nil

		case ETSupportedGroups, ETMaxFragmentLength:
			// Informational; ignored.
			return nil

		default:
			if props != nil && props.CollectExtension != nil &&
				props.CollectExtension(c, typ) {
				ee.collected = append(ee.collected, RawExtension{
					Type: typ,
					Data: append([]byte(nil), data.Rest()...),
				})
				return nil
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	if err := d.Close(); err != nil {
		return nil, err
	}
	return ee, nil
}

// certificateEntry is one entry of a certificate message chain.
type certificateEntry struct {
	data          []byte
	statusRequest []byte
}

// certificateMessage is the decoded certificate message.
type certificateMessage struct {
	requestContext []byte
	chain          []certificateEntry
}

func decodeCertificate(body []byte) (*certificateMessage, error) {
	cert := new(certificateMessage)
	d := NewDecoder(body)

	var err error
	cert.requestContext, err = d.Block(1)
	if err != nil {
		return nil, err
	}

	list, err := d.OpenBlock(3)
	if err != nil {
		return nil, err
	}
	for !list.Empty() {
		data, err := list.Block(3)
		if err != nil {
			return nil, err
		}
		entry := certificateEntry{
			data: data,
		}
		exts, err := list.OpenBlock(2)
		if err != nil {
			return nil, err
		}
		seen := make(extensionSet)
		for !exts.Empty() {
			typ, err := exts.Uint16()
			if err != nil {
				return nil, err
			}
			extData, err := exts.Block(2)
			if err != nil {
				return nil, err
			}
			if err := seen.add(ExtensionType(typ)); err != nil {
				return nil, err
			}
			if ExtensionType(typ) == ETStatusRequest {
				entry.statusRequest = extData
			}
		}
		cert.chain = append(cert.chain, entry)
	}
	if err := d.Close(); err != nil {
		return nil, err
	}
	return cert, nil
}

// certificateRequest is the decoded certificate_request message.
type certificateRequest struct {
	requestContext      []byte
	signatureAlgorithms []SignatureScheme
}

func decodeCertificateRequest(body []byte) (*certificateRequest, error) {
	cr := new(certificateRequest)
	d := NewDecoder(body)

	var err error
	cr.requestContext, err = d.Block(1)
	if err != nil {
		return nil, err
	}

	err = decodeExtensions(d, func(typ ExtensionType,
		data *Decoder) error {

		switch typ {
		case ETSignatureAlgorithms:
			list, err := data.OpenBlock(2)
			if err != nil {
				return err
			}
			for !list.Empty() {
				scheme, err := list.Uint16()
				if err != nil {
					return err
				}
				cr.signatureAlgorithms =
					append(cr.signatureAlgorithms,
						SignatureScheme(scheme))
			}
			return data.Close()

		default:
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	if err := d.Close(); err != nil {
		return nil, err
	}
	if len(cr.signatureAlgorithms) == 0 {
		return nil, alertError(AlertMissingExtension)
	}
	return cr, nil
}

// certificateVerify is the decoded certificate_verify message.
type certificateVerify struct {
	algorithm SignatureScheme
	signature []byte
}

func decodeCertificateVerify(body []byte) (*certificateVerify, error) {
	cv := new(certificateVerify)
	d := NewDecoder(body)

	algo, err := d.Uint16()
	if err != nil {
		return nil, err
	}
	cv.algorithm = SignatureScheme(algo)

	cv.signature, err = d.Block(2)
	if err != nil {
		return nil, err
	}
	if err := d.Close(); err != nil {
		return nil, err
	}
	return cv, nil
}

// newSessionTicket is the decoded new_session_ticket message.
type newSessionTicket struct {
	lifetime         uint32
	ageAdd           uint32
	nonce            []byte
	ticket           []byte
	maxEarlyDataSize uint32
}

func decodeNewSessionTicket(body []byte) (*newSessionTicket, error) {
	nst := new(newSessionTicket)
	d := NewDecoder(body)

	var err error
	nst.lifetime, err = d.Uint32()
	if err != nil {
		return nil, err
	}
	nst.ageAdd, err = d.Uint32()
	if err != nil {
		return nil, err
	}
	nst.nonce, err = d.Block(1)
	if err != nil {
		return nil, err
	}
	nst.ticket, err = d.Block(2)
	if err != nil {
		return nil, err
	}
	if len(nst.ticket) == 0 {
		return nil, alertError(AlertDecodeError)
	}

	err = decodeExtensions(d, func(typ ExtensionType,
		data *Decoder) error {

		if typ == ETEarlyData {
			size, err := data.Uint32()
			if err != nil {
				return err
			}
			nst.maxEarlyDataSize = size
			return data.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := d.Close(); err != nil {
		return nil, err
	}
	return nst, nil
}

// compressedCertificate is the decoded compressed_certificate
// message.
type compressedCertificate struct {
	algorithm        CertificateCompressionAlgorithm
	uncompressedSize int
	compressed       []byte
}

func decodeCompressedCertificate(
	body []byte) (*compressedCertificate, error) {

	cc := new(compressedCertificate)
	d := NewDecoder(body)

	algo, err := d.Uint16()
	if err != nil {
		return nil, err
	}
	cc.algorithm = CertificateCompressionAlgorithm(algo)

	size, err := d.Uint24()
	if err != nil {
		return nil, err
	}
	cc.uncompressedSize = int(size)
	if cc.uncompressedSize > maxHandshake {
		return nil, alertError(AlertBadCertificate)
	}

	cc.compressed, err = d.Block(3)
	if err != nil {
		return nil, err
	}
	if err := d.Close(); err != nil {
		return nil, err
	}
	return cc, nil
}
