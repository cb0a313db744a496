//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

// ESNICipherSuite pairs a cipher suite with the record digest of the
// ESNIKeys structure it came from.
type ESNICipherSuite struct {
	Suite        *CipherSuite
	RecordDigest []byte
}

// ESNIContext holds a server's ESNIKeys and the corresponding key
// exchange contexts.
type ESNIContext struct {
	KeyExchanges []KeyExchangeContext
	CipherSuites []*ESNICipherSuite
	PaddedLength uint16
	NotBefore    uint64
	NotAfter     uint64
}

// Dispose releases the key exchange contexts.
func (esni *ESNIContext) Dispose() {
	for _, keyex := range esni.KeyExchanges {
		keyex.Release()
	}
	esni.KeyExchanges = nil
}

// esniNonceSize is the nonce prepended to the padded SNI.
const esniNonceSize = 16

// InitESNIContext initializes an ESNI context from the binary
// ESNIKeys structure (draft-02) and the private key exchange contexts
// corresponding to its key shares. The record digests are computed
// over the ESNIKeys bytes with each supported cipher suite hash.
func InitESNIContext(ctx *Context, esniKeys []byte,
	keyExchanges []KeyExchangeContext) (*ESNIContext, error) {

	esni := &ESNIContext{
		KeyExchanges: keyExchanges,
	}

	d := NewDecoder(esniKeys)
	version, err := d.Uint16()
	if err != nil {
		return nil, err
	}
	if version != ESNIVersionDraft02 {
		return nil, internalErrorf(ErrorNotAvailable,
			"unsupported ESNI version %#04x", version)
	}
	// checksum
	if _, err := d.Raw(4); err != nil {
		return nil, err
	}
	// key shares; the private halves arrive via keyExchanges
	if _, err := d.Block(2); err != nil {
		return nil, err
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
		suite := ctx.suiteByID(CipherSuiteID(id))
		if suite == nil {
			continue
		}
		esni.CipherSuites = append(esni.CipherSuites, &ESNICipherSuite{
			Suite:        suite,
			RecordDigest: suite.Hash.Sum(esniKeys),
		})
	}
	esni.PaddedLength, err = d.Uint16()
	if err != nil {
		return nil, err
	}
	esni.NotBefore, err = d.Uint64()
	if err != nil {
		return nil, err
	}
	esni.NotAfter, err = d.Uint64()
	if err != nil {
		return nil, err
	}
	// extensions
	if _, err := d.Block(2); err != nil {
		return nil, err
	}
	if err := d.Close(); err != nil {
		return nil, err
	}
	return esni, nil
}

// esniSecrets is the derived ESNI key material.
type esniSecrets struct {
	zx       []byte
	key      []byte
	iv       []byte
	contents []byte // Hash(ESNIContents)
}

// deriveESNISecrets computes Zx and the AEAD key and IV from the
// shared secret, the record digest, the client's ESNI key share, and
// the client hello random.
func deriveESNISecrets(suite *CipherSuite, sharedSecret, recordDigest,
	esniKeyShare []byte, clientRandom []byte,
	labelPrefix string) (*esniSecrets, error) {

	var small [256]byte
	contents := NewBuffer(small[:])
	defer contents.Dispose()

	contents.PushBlock(2, func() error {
		return contents.PushRaw(recordDigest)
	})
	contents.PushRaw(esniKeyShare)
	contents.PushRaw(clientRandom)

	secrets := &esniSecrets{
		zx:       hkdfExtract(suite.Hash, sharedSecret, nil),
		contents: suite.Hash.Sum(contents.Bytes()),
	}
	secrets.key = hkdfExpandLabel(suite.Hash, secrets.zx, "esni key",
		secrets.contents, suite.AEAD.KeySize, labelPrefix)
	secrets.iv = hkdfExpandLabel(suite.Hash, secrets.zx, "esni iv",
		secrets.contents, suite.AEAD.IVSize, labelPrefix)
	return secrets, nil
}

func (secrets *esniSecrets) dispose() {
	ClearMemory(secrets.zx)
	ClearMemory(secrets.key)
	ClearMemory(secrets.iv)
}

// esniDecrypt opens the encrypted SNI of a ClientHello. The aad is
// the client's key_share extension contents.
func (c *Conn) esniDecrypt(esniExt []byte,
	clientRandom []byte) (serverName string, nonce []byte, err error) {

	d := NewDecoder(esniExt)
	suiteID, err := d.Uint16()
	if err != nil {
		return "", nil, err
	}
	group, err := d.Uint16()
	if err != nil {
		return "", nil, err
	}
	clientShare, err := d.Block(2)
	if err != nil {
		return "", nil, err
	}
	recordDigest, err := d.Block(2)
	if err != nil {
		return "", nil, err
	}
	encryptedSNI, err := d.Block(2)
	if err != nil {
		return "", nil, err
	}
	if err := d.Close(); err != nil {
		return "", nil, err
	}

	// The AAD covers the client's key_share entry as sent.
	var aadSmall [128]byte
	aad := NewBuffer(aadSmall[:])
	defer aad.Dispose()
	aad.PushUint16(group)
	aad.PushBlock(2, func() error {
		return aad.PushRaw(clientShare)
	})

	for _, esni := range c.ctx.ESNI {
		var esniSuite *ESNICipherSuite
		for _, s := range esni.CipherSuites {
			if s.Suite.ID == CipherSuiteID(suiteID) &&
				MemEqual(s.RecordDigest, recordDigest) {
				esniSuite = s
				break
			}
		}
		if esniSuite == nil {
			continue
		}
		now := c.ctx.now() / 1000
		if now < esni.NotBefore || esni.NotAfter < now {
			continue
		}
		for _, keyex := range esni.KeyExchanges {
			shared, err := keyex.Exchange(clientShare)
			if err != nil {
				continue
			}
			name, n, err := esniOpen(c, esniSuite, shared,
				recordDigest, aad.Bytes(), clientRandom,
				encryptedSNI)
			ClearMemory(shared)
			if err != nil {
				continue
			}
			return name, n, nil
		}
	}
	return "", nil, alertErrorf(AlertIllegalParameter,
		"no matching ESNI key")
}

func esniOpen(c *Conn, esniSuite *ESNICipherSuite,
	shared, recordDigest, aad, clientRandom,
	encryptedSNI []byte) (string, []byte, error) {

	suite := esniSuite.Suite
	secrets, err := deriveESNISecrets(suite, shared, recordDigest, aad,
		clientRandom, c.ctx.labelPrefix())
	if err != nil {
		return "", nil, err
	}
	defer secrets.dispose()

	aead, err := suite.AEAD.New(secrets.key)
	if err != nil {
		return "", nil, internalErrorf(ErrorLibrary, "AEAD: %v", err)
	}
	inner, err := aead.Open(nil, secrets.iv, encryptedSNI, aad)
	if err != nil {
		return "", nil, alertError(AlertDecryptError)
	}

	if c.ctx.UpdateESNIKey != nil {
		err = c.ctx.UpdateESNIKey(c, secrets.zx, suite.Hash,
			secrets.contents)
		if err != nil {
			return "", nil, err
		}
	}

	d := NewDecoder(inner)
	nonce, err := d.Raw(esniNonceSize)
	if err != nil {
		return "", nil, err
	}
	list, err := d.OpenBlock(2)
	if err != nil {
		return "", nil, err
	}
	var serverName string
	for !list.Empty() {
		typ, err := list.Uint8()
		if err != nil {
			return "", nil, err
		}
		name, err := list.Block(2)
		if err != nil {
			return "", nil, err
		}
		if typ == 0 {
			serverName = string(name)
		}
	}
	// The rest is padding; it must be all zeros.
	for _, b := range d.Rest() {
		if b != 0 {
			return "", nil, alertError(AlertIllegalParameter)
		}
	}
	return serverName, append([]byte(nil), nonce...), nil
}

// esniClientState is the client-side ESNI state: the chosen suite and
// key share plus the nonce to be echoed by the server.
type esniClientState struct {
	suite        *CipherSuite
	group        *KeyExchangeAlgorithm
	peerShare    []byte
	recordDigest []byte
	paddedLength uint16
	nonce        [esniNonceSize]byte
}

// parseESNIKeys parses the peer's ESNIKeys and selects a mutually
// supported key share and cipher suite.
func (c *Conn) parseESNIKeys(esniKeys []byte) (*esniClientState, error) {
	state := new(esniClientState)

	d := NewDecoder(esniKeys)
	version, err := d.Uint16()
	if err != nil {
		return nil, err
	}
	if version != ESNIVersionDraft02 {
		return nil, internalErrorf(ErrorNotAvailable,
			"unsupported ESNI version %#04x", version)
	}
	if _, err := d.Raw(4); err != nil {
		return nil, err
	}
	shares, err := d.OpenBlock(2)
	if err != nil {
		return nil, err
	}
	for !shares.Empty() {
		group, err := shares.Uint16()
		if err != nil {
			return nil, err
		}
		key, err := shares.Block(2)
		if err != nil {
			return nil, err
		}
		if state.group == nil {
			algo := c.ctx.keyExchangeByGroup(NamedGroup(group))
			if algo != nil {
				state.group = algo
				state.peerShare = append([]byte(nil), key...)
			}
		}
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
		if state.suite == nil {
			state.suite = c.ctx.suiteByID(CipherSuiteID(id))
		}
	}
	state.paddedLength, err = d.Uint16()
	if err != nil {
		return nil, err
	}
	notBefore, err := d.Uint64()
	if err != nil {
		return nil, err
	}
	notAfter, err := d.Uint64()
	if err != nil {
		return nil, err
	}
	if _, err := d.Block(2); err != nil {
		return nil, err
	}
	if err := d.Close(); err != nil {
		return nil, err
	}

	if state.group == nil || state.suite == nil {
		return nil, internalErrorf(ErrorNotAvailable,
			"no mutual ESNI key share or cipher suite")
	}
	now := c.ctx.now() / 1000
	if now < notBefore || notAfter < now {
		return nil, internalErrorf(ErrorNotAvailable,
			"ESNI keys not within validity period")
	}
	state.recordDigest = state.suite.Hash.Sum(esniKeys)
	return state, nil
}

// pushESNIExtension writes the encrypted_server_name extension body
// for serverName. It runs a fresh key exchange against the server's
// ESNI key share; the resulting key share entry doubles as the AAD.
func (c *Conn) pushESNIExtension(buf *Buffer, state *esniClientState,
	serverName string, clientRandom []byte) error {

	if int(state.paddedLength) < len(serverName)+5 {
		return internalErrorf(ErrorNotAvailable,
			"server name longer than ESNI padded length")
	}

	algo := state.group
	pubkey, shared, err := algo.Exchange(c.ctx.random(),
		state.peerShare)
	if err != nil {
		return internalErrorf(ErrorLibrary, "ESNI exchange: %v", err)
	}
	defer ClearMemory(shared)

	if _, err := c.ctx.random().Read(state.nonce[:]); err != nil {
		return internalErrorf(ErrorLibrary, "random: %v", err)
	}

	// The client's ESNI key share entry, also the AAD.
	var aadSmall [128]byte
	aad := NewBuffer(aadSmall[:])
	defer aad.Dispose()
	aad.PushUint16(uint16(algo.ID))
	aad.PushBlock(2, func() error {
		return aad.PushRaw(pubkey)
	})

	secrets, err := deriveESNISecrets(state.suite, shared,
		state.recordDigest, aad.Bytes(), clientRandom,
		c.ctx.labelPrefix())
	if err != nil {
		return err
	}
	defer secrets.dispose()

	// ClientESNIInner: nonce, SNI list, zero padding.
	inner := NewBuffer(nil)
	defer inner.Dispose()
	inner.PushRaw(state.nonce[:])
	inner.PushBlock(2, func() error {
		if err := inner.PushUint8(0); err != nil {
			return err
		}
		return inner.PushBlock(2, func() error {
			return inner.PushRaw([]byte(serverName))
		})
	})
	pad := int(state.paddedLength) - (inner.Len() - esniNonceSize)
	if err := inner.Reserve(pad); err != nil {
		return err
	}
	for i := 0; i < pad; i++ {
		inner.PushUint8(0)
	}

	aead, err := state.suite.AEAD.New(secrets.key)
	if err != nil {
		return internalErrorf(ErrorLibrary, "AEAD: %v", err)
	}
	encrypted := aead.Seal(nil, secrets.iv, inner.Bytes(), aad.Bytes())

	buf.PushUint16(uint16(state.suite.ID))
	buf.PushRaw(aad.Bytes())
	buf.PushBlock(2, func() error {
		return buf.PushRaw(state.recordDigest)
	})
	return buf.PushBlock(2, func() error {
		return buf.PushRaw(encrypted)
	})
}
