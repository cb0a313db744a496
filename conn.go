//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"fmt"

	"go.uber.org/zap"
)

// handshakeState enumerates the handshake state machine states.
type handshakeState int

// Handshake states.
const (
	stateClientStart handshakeState = iota
	stateClientExpectServerHello
	stateClientExpectSecondServerHello
	stateClientExpectEncryptedExtensions
	stateClientExpectCertificateRequestOrCertificate
	stateClientExpectCertificate
	stateClientExpectCertificateVerify
	stateClientExpectFinished
	stateServerExpectClientHello
	stateServerExpectSecondClientHello
	stateServerExpectEndOfEarlyData
	stateServerExpectCertificate
	stateServerExpectCertificateVerify
	stateServerExpectFinished
	statePostHandshake
	stateClosed
)

func (state handshakeState) String() string {
	name, ok := handshakeStates[state]
	if ok {
		return name
	}
	return fmt.Sprintf("{handshakeState %d}", int(state))
}

var handshakeStates = map[handshakeState]string{
	stateClientStart:                "CLIENT_START",
	stateClientExpectServerHello:    "WAIT_SH",
	stateClientExpectSecondServerHello: "WAIT_SH2",
	stateClientExpectEncryptedExtensions: "WAIT_EE",
	stateClientExpectCertificateRequestOrCertificate: "WAIT_CERT_CR",
	stateClientExpectCertificate:       "WAIT_CERT",
	stateClientExpectCertificateVerify: "WAIT_CV",
	stateClientExpectFinished:          "WAIT_FINISHED",
	stateServerExpectClientHello:       "RECV_CH",
	stateServerExpectSecondClientHello: "RECV_CH2",
	stateServerExpectEndOfEarlyData:    "WAIT_EOED",
	stateServerExpectCertificate:       "WAIT_CLIENT_CERT",
	stateServerExpectCertificateVerify: "WAIT_CLIENT_CV",
	stateServerExpectFinished:          "WAIT_CLIENT_FINISHED",
	statePostHandshake:                 "CONNECTED",
	stateClosed:                        "CLOSED",
}

// Conn is a TLS 1.3 connection: the handshake state machine, the key
// schedule, and the record protection state. A connection and its
// buffers must not be accessed concurrently from multiple threads.
type Conn struct {
	ctx    *Context
	server bool
	state  handshakeState

	clientRandom       [helloRandomSize]byte
	suite              *CipherSuite
	negotiatedGroup    NamedGroup
	serverName         string
	negotiatedProtocol string

	sched *keySchedule
	in    trafficProtection
	out   trafficProtection

	// read/write epochs; mirror the traffic protections except
	// when an external record layer is installed
	inEpoch  Epoch
	outEpoch Epoch

	// pendingInSecret is the next inbound traffic secret, installed
	// when the early-data epoch ends
	pendingInSecret []byte
	skipEarlyData   bool
	maxSkipBytes    int

	recvBuf      []byte // partial record
	msgBuf       []byte // partial handshake messages
	earlyDataBuf []byte // decrypted early data awaiting delivery

	// bytes buffered for future epochs (message-oriented entry)
	futureEpochs [numEpochs][]byte

	handshakeComplete bool
	pskUsed           bool

	exporterMaster      []byte
	earlyExporterMaster []byte
	resumptionMaster    []byte

	needKeyUpdate    bool
	keyUpdateRequest bool

	hsc *clientHandshake
	hss *serverHandshake

	failed *Error
	data   interface{}
}

// New creates a connection for the argument configuration. A client
// connection needs a server name via SetServerName before the
// handshake starts.
func New(ctx *Context, isServer bool) *Conn {
	c := &Conn{
		ctx:    ctx,
		server: isServer,
		sched:  nil,
	}
	if isServer {
		c.state = stateServerExpectClientHello
	} else {
		c.state = stateClientStart
	}
	if ctx.UpdateOpenCount != nil {
		ctx.UpdateOpenCount(1)
	}
	return c
}

// Free releases every resource owned by the connection. Outstanding
// certificate verifiers are released by invoking them with nil
// arguments.
func (c *Conn) Free() {
	if c.hsc != nil {
		c.hsc.dispose()
		c.hsc = nil
	}
	if c.hss != nil {
		c.hss.dispose()
		c.hss = nil
	}
	if c.sched != nil {
		c.sched.dispose()
		c.sched = nil
	}
	c.in.dispose()
	c.out.dispose()
	for _, secret := range [][]byte{
		c.pendingInSecret, c.exporterMaster, c.earlyExporterMaster,
		c.resumptionMaster,
	} {
		if secret != nil {
			ClearMemory(secret)
		}
	}
	c.pendingInSecret = nil
	c.exporterMaster = nil
	c.earlyExporterMaster = nil
	c.resumptionMaster = nil
	c.state = stateClosed

	if c.ctx.UpdateOpenCount != nil {
		c.ctx.UpdateOpenCount(-1)
	}
}

// Context returns the configuration the connection is using.
func (c *Conn) Context() *Context {
	return c.ctx
}

// SetContext updates the configuration of the connection. It can be
// called from the OnClientHello callback.
func (c *Conn) SetContext(ctx *Context) {
	c.ctx = ctx
}

// ClientRandom returns the client random.
func (c *Conn) ClientRandom() []byte {
	return c.clientRandom[:]
}

// Cipher returns the negotiated cipher suite, or nil.
func (c *Conn) Cipher() *CipherSuite {
	return c.suite
}

// ServerName returns the SNI server name, or the empty string.
func (c *Conn) ServerName() string {
	return c.serverName
}

// SetServerName sets the server name. On the client the value is sent
// as an SNI extension and used for certificate validation; on the
// server it can be called from OnClientHello to acknowledge the SNI
// extension.
func (c *Conn) SetServerName(name string) {
	c.serverName = name
}

// NegotiatedGroup returns the negotiated key exchange group, or zero
// for a PSK-only handshake.
func (c *Conn) NegotiatedGroup() NamedGroup {
	return c.negotiatedGroup
}

// NegotiatedProtocol returns the ALPN protocol, or the empty string.
func (c *Conn) NegotiatedProtocol() string {
	return c.negotiatedProtocol
}

// SetNegotiatedProtocol sets the ALPN protocol; servers call it from
// OnClientHello.
func (c *Conn) SetNegotiatedProtocol(protocol string) {
	c.negotiatedProtocol = protocol
}

// HandshakeIsComplete reports whether the handshake has completed.
func (c *Conn) HandshakeIsComplete() bool {
	return c.handshakeComplete
}

// IsPSKHandshake reports whether a PSK (or PSK-DHE) handshake was
// performed.
func (c *Conn) IsPSKHandshake() bool {
	return c.pskUsed
}

// IsServer reports whether this is a server connection.
func (c *Conn) IsServer() bool {
	return c.server
}

// RecordOverhead returns the per-record overhead of the negotiated
// cipher.
func (c *Conn) RecordOverhead() int {
	if c.suite == nil {
		return 0
	}
	return recordHeaderLen + 1 + c.suite.AEAD.TagSize
}

// ReadEpoch returns the epoch the peer is currently writing from.
func (c *Conn) ReadEpoch() Epoch {
	return c.inEpoch
}

// Data returns the user data associated with the connection.
func (c *Conn) Data() interface{} {
	return c.data
}

// SetData associates user data with the connection.
func (c *Conn) SetData(data interface{}) {
	c.data = data
}

// setTrafficSecret installs a traffic secret for one direction and
// epoch: it logs the key material, notifies an external record layer,
// or keys the engine's own record protection.
func (c *Conn) setTrafficSecret(isEnc bool, epoch Epoch,
	secret []byte) error {

	c.logSecret(isEnc, epoch, secret)

	if isEnc {
		c.outEpoch = epoch
	} else {
		c.inEpoch = epoch
	}
	if c.ctx.UpdateTrafficKey != nil {
		return c.ctx.UpdateTrafficKey(c, isEnc, epoch, secret)
	}
	tp := &c.in
	if isEnc {
		tp = &c.out
	}
	return tp.setup(c.suite, secret, epoch, c.ctx.labelPrefix())
}

// logSecret reports the traffic secret through LogEvent using the NSS
// key log labels.
func (c *Conn) logSecret(isEnc bool, epoch Epoch, secret []byte) {
	if c.ctx.LogEvent == nil {
		return
	}
	clientSecret := isEnc != c.server
	var label string
	switch epoch {
	case EpochEarlyData:
		label = "CLIENT_EARLY_TRAFFIC_SECRET"
	case EpochHandshake:
		if clientSecret {
			label = "CLIENT_HANDSHAKE_TRAFFIC_SECRET"
		} else {
			label = "SERVER_HANDSHAKE_TRAFFIC_SECRET"
		}
	case EpochApplication:
		if clientSecret {
			label = "CLIENT_TRAFFIC_SECRET_0"
		} else {
			label = "SERVER_TRAFFIC_SECRET_0"
		}
	default:
		return
	}
	c.ctx.LogEvent(c, label, secret)
}

// emitter writes handshake messages either as records (the engine's
// record layer) or as raw epoch-tagged messages (external record
// layers).
type emitter interface {
	// emit writes one handshake message. The body callback writes
	// the message body; the transcript is updated unless sched is
	// nil.
	emit(c *Conn, sched *keySchedule, typ HandshakeType,
		body func(buf *Buffer) error) error
	// pushChangeCipherSpec emits the middlebox-compatibility
	// ChangeCipherSpec record where applicable.
	pushChangeCipherSpec(c *Conn) error
}

// buildMessage formats a handshake message: type, 24-bit length, and
// body.
func buildMessage(typ HandshakeType,
	body func(buf *Buffer) error) ([]byte, error) {

	buf := NewBuffer(nil)
	if err := buf.PushUint8(uint8(typ)); err != nil {
		return nil, err
	}
	if err := buf.PushBlock(3, func() error {
		return body(buf)
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// recordEmitter seals handshake messages into records under the
// current write protection.
type recordEmitter struct {
	buf *Buffer
}

func (em *recordEmitter) emit(c *Conn, sched *keySchedule,
	typ HandshakeType, body func(buf *Buffer) error) error {

	msg, err := buildMessage(typ, body)
	if err != nil {
		return err
	}
	if sched != nil {
		sched.updateHash(msg)
	}
	return sealRecord(em.buf, &c.out, CTHandshake, msg)
}

func (em *recordEmitter) pushChangeCipherSpec(c *Conn) error {
	if !c.ctx.SendChangeCipherSpec {
		return nil
	}
	return em.buf.PushRaw(changeCipherSpecRecord)
}

// rawEmitter appends plain handshake messages segregated by epoch for
// message-oriented callers.
type rawEmitter struct {
	buf     *Buffer
	offsets *[5]int
}

func (em *rawEmitter) emit(c *Conn, sched *keySchedule,
	typ HandshakeType, body func(buf *Buffer) error) error {

	msg, err := buildMessage(typ, body)
	if err != nil {
		return err
	}
	if sched != nil {
		sched.updateHash(msg)
	}
	if err := em.buf.PushRaw(msg); err != nil {
		return err
	}
	for epoch := c.outEpoch + 1; epoch <= numEpochs; epoch++ {
		em.offsets[epoch] = em.buf.Len()
	}
	return nil
}

func (em *rawEmitter) pushChangeCipherSpec(c *Conn) error {
	return nil
}

// Handshake drives the handshake state machine, consuming input from
// the peer and producing output into sendBuf. It returns the number
// of input bytes consumed. ErrInProgress signals that the handshake
// needs more input or an output drain; everything in sendBuf should
// be transmitted regardless of the result.
func (c *Conn) Handshake(sendBuf *Buffer, input []byte,
	props *HandshakeProperties) (int, error) {

	if c.failed != nil {
		return 0, c.failed
	}
	if props == nil {
		props = &HandshakeProperties{}
	}
	em := &recordEmitter{
		buf: sendBuf,
	}
	consumed, err := c.handshake(em, input, props)
	if err != nil && err != ErrInProgress && err != ErrStatelessRetry {
		c.fail(sendBuf, err)
	}
	return consumed, err
}

func (c *Conn) handshake(em emitter, input []byte,
	props *HandshakeProperties) (int, error) {

	if !c.server && c.state == stateClientStart {
		if err := c.clientSendClientHello(em, props, nil); err != nil {
			return 0, err
		}
	}
	if c.handshakeComplete {
		return 0, nil
	}
	if len(input) == 0 {
		return 0, ErrInProgress
	}

	// Prepend the partial record left over from the previous call.
	data := input
	if len(c.recvBuf) > 0 {
		data = append(c.recvBuf, input...)
		c.recvBuf = nil
	}
	base := len(data) - len(input)

	off := 0
	for off < len(data) && !c.handshakeComplete {
		n, err := c.feedRecord(em, data[off:], props)
		if err == ErrInProgress {
			c.recvBuf = append([]byte(nil), data[off:]...)
			return len(input), ErrInProgress
		}
		off += n
		if err != nil {
			return consumedInput(off, base, len(input)), err
		}
	}
	if c.handshakeComplete {
		return consumedInput(off, base, len(input)), nil
	}
	return len(input), ErrInProgress
}

// consumedInput converts an offset in the concatenated (leftover +
// input) stream into the number of consumed input bytes.
func consumedInput(off, base, inlen int) int {
	n := off - base
	if n < 0 {
		n = 0
	}
	if n > inlen {
		n = inlen
	}
	return n
}

// feedRecord consumes one record from data during the handshake.
func (c *Conn) feedRecord(em emitter, data []byte,
	props *HandshakeProperties) (int, error) {

	ct, payload, n, err := openRecord(&c.in, data)
	if err != nil {
		if c.canSkipEarlyData(err, n) {
			return n, nil
		}
		if c.tryPendingInSecret(err) {
			return c.feedRecord(em, data, props)
		}
		return n, err
	}

	switch ct {
	case CTChangeCipherSpec:
		// Dropped silently before handshake completion.
		if len(payload) != 1 || payload[0] != 1 {
			return n, alertError(AlertUnexpectedMessage)
		}
		return n, nil

	case CTAlert:
		return n, c.handleAlert(payload)

	case CTHandshake:
		return n, c.feedHandshakeBytes(em, payload, props)

	case CTApplicationData:
		// 0-RTT early data while the handshake is in flight.
		if c.server && c.skipEarlyData && !c.in.active() {
			// Rejected early data before the second ClientHello.
			c.maxSkipBytes -= n
			if c.maxSkipBytes < 0 {
				return n, alertError(AlertUnexpectedMessage)
			}
			return n, nil
		}
		if !c.server || c.hss == nil || !c.hss.earlyDataAccepted ||
			c.inEpoch != EpochEarlyData {
			return n, alertError(AlertUnexpectedMessage)
		}
		c.earlyDataBuf = append(c.earlyDataBuf, payload...)
		return n, nil

	default:
		return n, alertError(AlertUnexpectedMessage)
	}
}

// canSkipEarlyData reports whether a failed record open was rejected
// early data that the server is skipping.
func (c *Conn) canSkipEarlyData(err error, n int) bool {
	if !c.skipEarlyData || n == 0 {
		return false
	}
	e, ok := err.(*Error)
	if !ok || e.Code != int(AlertBadRecordMAC) {
		return false
	}
	c.maxSkipBytes -= n
	return c.maxSkipBytes >= 0
}

// tryPendingInSecret installs the pending inbound secret after a
// failed record open, implementing the implicit early-data epoch
// transition when EndOfEarlyData is omitted. It reports whether the
// record should be retried.
func (c *Conn) tryPendingInSecret(err error) bool {
	e, ok := err.(*Error)
	if !ok || e.Code != int(AlertBadRecordMAC) {
		return false
	}
	if c.pendingInSecret == nil || !c.ctx.OmitEndOfEarlyData ||
		c.inEpoch != EpochEarlyData {
		return false
	}
	return c.installPendingInSecret() == nil
}

// installPendingInSecret switches the inbound protection to the
// handshake epoch secret stored at ClientHello time.
func (c *Conn) installPendingInSecret() error {
	err := c.setTrafficSecret(false, EpochHandshake, c.pendingInSecret)
	ClearMemory(c.pendingInSecret)
	c.pendingInSecret = nil
	if c.state == stateServerExpectEndOfEarlyData {
		c.state = stateServerExpectFinished
		if c.ctx.RequireClientAuthentication {
			c.state = stateServerExpectCertificate
		}
	}
	return err
}

// feedHandshakeBytes coalesces handshake bytes into messages and
// dispatches them.
func (c *Conn) feedHandshakeBytes(em emitter, payload []byte,
	props *HandshakeProperties) error {

	c.msgBuf = append(c.msgBuf, payload...)
	for {
		if len(c.msgBuf) < 4 {
			return nil
		}
		length := int(c.msgBuf[1])<<16 | int(c.msgBuf[2])<<8 |
			int(c.msgBuf[3])
		if length > maxHandshake {
			return alertError(AlertDecodeError)
		}
		if len(c.msgBuf) < 4+length {
			return nil
		}
		msg := append([]byte(nil), c.msgBuf[:4+length]...)
		c.msgBuf = append([]byte(nil), c.msgBuf[4+length:]...)

		if err := c.handleMessage(em, msg, props); err != nil {
			return err
		}
		if c.handshakeComplete && len(c.msgBuf) == 0 {
			return nil
		}
	}
}

// handleMessage dispatches one complete handshake message according
// to the connection state.
func (c *Conn) handleMessage(em emitter, msg []byte,
	props *HandshakeProperties) error {

	typ := HandshakeType(msg[0])
	body := msg[4:]

	c.ctx.log().Debug("handshake message",
		zap.Stringer("state", c.state),
		zap.Stringer("type", typ),
		zap.Int("len", len(body)))

	switch c.state {
	case stateClientExpectServerHello,
		stateClientExpectSecondServerHello:
		if typ != HTServerHello {
			return c.unexpected(typ)
		}
		return c.clientHandleServerHello(em, msg, props)

	case stateClientExpectEncryptedExtensions:
		if typ != HTEncryptedExtensions {
			return c.unexpected(typ)
		}
		return c.clientHandleEncryptedExtensions(em, msg, props)

	case stateClientExpectCertificateRequestOrCertificate:
		switch typ {
		case HTCertificateRequest:
			return c.clientHandleCertificateRequest(msg)
		case HTCertificate:
			return c.clientHandleCertificate(msg, false)
		case HTCompressedCertificate:
			return c.clientHandleCertificate(msg, true)
		}
		return c.unexpected(typ)

	case stateClientExpectCertificate:
		switch typ {
		case HTCertificate:
			return c.clientHandleCertificate(msg, false)
		case HTCompressedCertificate:
			return c.clientHandleCertificate(msg, true)
		}
		return c.unexpected(typ)

	case stateClientExpectCertificateVerify:
		if typ != HTCertificateVerify {
			return c.unexpected(typ)
		}
		return c.clientHandleCertificateVerify(msg)

	case stateClientExpectFinished:
		if typ != HTFinished {
			return c.unexpected(typ)
		}
		return c.clientHandleFinished(em, msg, props)

	case stateServerExpectClientHello,
		stateServerExpectSecondClientHello:
		if typ != HTClientHello {
			return c.unexpected(typ)
		}
		return c.serverHandleClientHello(em, msg, props)

	case stateServerExpectEndOfEarlyData:
		if typ != HTEndOfEarlyData {
			return c.unexpected(typ)
		}
		return c.serverHandleEndOfEarlyData(msg)

	case stateServerExpectCertificate:
		if typ != HTCertificate {
			return c.unexpected(typ)
		}
		return c.serverHandleClientCertificate(msg)

	case stateServerExpectCertificateVerify:
		if typ != HTCertificateVerify {
			return c.unexpected(typ)
		}
		return c.serverHandleClientCertificateVerify(msg)

	case stateServerExpectFinished:
		if typ != HTFinished {
			return c.unexpected(typ)
		}
		return c.serverHandleFinished(em, msg)

	case statePostHandshake:
		switch typ {
		case HTNewSessionTicket:
			if c.server {
				return c.unexpected(typ)
			}
			return c.clientHandleNewSessionTicket(msg)
		case HTKeyUpdate:
			return c.handleKeyUpdate(msg)
		}
		return c.unexpected(typ)

	default:
		return c.unexpected(typ)
	}
}

func (c *Conn) unexpected(typ HandshakeType) error {
	return alertErrorf(AlertUnexpectedMessage, "%v in state %v",
		typ, c.state)
}

// handleAlert processes an inbound alert record.
func (c *Conn) handleAlert(payload []byte) error {
	if len(payload) != 2 {
		return alertError(AlertDecodeError)
	}
	level := AlertLevel(payload[0])
	desc := AlertDescription(payload[1])

	c.ctx.log().Debug("alert",
		zap.Stringer("level", level),
		zap.Stringer("desc", desc))

	if level == AlertLevelWarning && desc == AlertUserCanceled {
		return nil
	}
	err := peerAlertError(desc)
	c.failed = err
	c.state = stateClosed
	return err
}

// handleKeyUpdate processes a post-handshake KeyUpdate message.
func (c *Conn) handleKeyUpdate(msg []byte) error {
	d := NewDecoder(msg[4:])
	request, err := d.Uint8()
	if err != nil {
		return err
	}
	if err := d.Close(); err != nil {
		return err
	}
	if request > 1 {
		return alertError(AlertIllegalParameter)
	}

	// The peer rekeyed its sending direction.
	if c.ctx.UpdateTrafficKey == nil {
		if err := c.in.next(c.suite, c.ctx.labelPrefix()); err != nil {
			return err
		}
	}
	if request == 1 {
		c.needKeyUpdate = true
	}
	return nil
}

// emitKeyUpdate emits a KeyUpdate message and rekeys the sending
// direction.
func (c *Conn) emitKeyUpdate(sendBuf *Buffer) error {
	request := uint8(0)
	if c.keyUpdateRequest {
		request = 1
	}
	msg, err := buildMessage(HTKeyUpdate, func(buf *Buffer) error {
		return buf.PushUint8(request)
	})
	if err != nil {
		return err
	}
	if err := sealRecord(sendBuf, &c.out, CTHandshake, msg); err != nil {
		return err
	}
	c.needKeyUpdate = false
	c.keyUpdateRequest = false

	if c.ctx.UpdateTrafficKey == nil {
		return c.out.next(c.suite, c.ctx.labelPrefix())
	}
	return nil
}

// UpdateKey schedules a rekey of the sending direction; the KeyUpdate
// message is emitted on the next Send. If requestUpdate is set the
// peer is asked to rekey as well.
func (c *Conn) UpdateKey(requestUpdate bool) error {
	if !c.handshakeComplete {
		return internalErrorf(ErrorNotAvailable,
			"handshake not complete")
	}
	c.needKeyUpdate = true
	c.keyUpdateRequest = c.keyUpdateRequest || requestUpdate
	return nil
}

// Send seals application data into one or more records.
func (c *Conn) Send(sendBuf *Buffer, data []byte) error {
	if c.failed != nil {
		return c.failed
	}
	if !c.handshakeComplete &&
		!(!c.server && c.outEpoch == EpochEarlyData) {
		return internalErrorf(ErrorNotAvailable,
			"handshake not complete")
	}
	if c.needKeyUpdate {
		if err := c.emitKeyUpdate(sendBuf); err != nil {
			return err
		}
	}
	return sealRecord(sendBuf, &c.out, CTApplicationData, data)
}

// Receive opens records from input, appending decrypted application
// data to plainBuf. It returns the number of input bytes consumed.
// ErrInProgress signals an incomplete record.
func (c *Conn) Receive(plainBuf *Buffer, input []byte) (int, error) {
	if c.failed != nil {
		return 0, c.failed
	}

	// Early data decrypted during the handshake is delivered
	// first.
	if len(c.earlyDataBuf) > 0 {
		err := plainBuf.PushRaw(c.earlyDataBuf)
		c.earlyDataBuf = nil
		return 0, err
	}

	data := input
	if len(c.recvBuf) > 0 {
		data = append(c.recvBuf, input...)
		c.recvBuf = nil
	}
	base := len(data) - len(input)

	off := 0
	for off < len(data) {
		ct, payload, n, err := openRecord(&c.in, data[off:])
		if err == ErrInProgress {
			c.recvBuf = append([]byte(nil), data[off:]...)
			return len(input), ErrInProgress
		}
		if err != nil {
			c.failRecv(err)
			return consumedInput(off+n, base, len(input)), err
		}
		off += n

		switch ct {
		case CTApplicationData:
			err = plainBuf.PushRaw(payload)
			return consumedInput(off, base, len(input)), err

		case CTHandshake:
			if !c.handshakeComplete {
				err = alertError(AlertUnexpectedMessage)
				c.failRecv(err)
				return consumedInput(off, base, len(input)), err
			}
			if err := c.feedHandshakeBytes(nil, payload,
				nil); err != nil {
				c.failRecv(err)
				return consumedInput(off, base, len(input)), err
			}

		case CTAlert:
			if err := c.handleAlert(payload); err != nil {
				return consumedInput(off, base, len(input)), err
			}

		case CTChangeCipherSpec:
			// ignored

		default:
			err = alertError(AlertUnexpectedMessage)
			c.failRecv(err)
			return consumedInput(off, base, len(input)), err
		}
	}
	return len(input), ErrInProgress
}

func (c *Conn) failRecv(err error) {
	if e, ok := err.(*Error); ok && e != ErrInProgress {
		c.failed = e
		c.state = stateClosed
	}
}

// SendAlert seals an alert record of the argument level and
// description.
func (c *Conn) SendAlert(sendBuf *Buffer, level AlertLevel,
	desc AlertDescription) error {

	payload := []byte{byte(level), byte(desc)}
	return sealRecord(sendBuf, &c.out, CTAlert, payload)
}

// fail marks the connection unusable and appends the mapped alert
// record to the caller's send buffer.
func (c *Conn) fail(sendBuf *Buffer, err error) {
	e, ok := err.(*Error)
	if !ok {
		e = internalErrorf(ErrorLibrary, "%v", err)
	}
	if c.failed == nil {
		c.failed = e
	}
	c.state = stateClosed

	desc, ok := e.Alert()
	if ok && sendBuf != nil {
		c.SendAlert(sendBuf, desc.Level(), desc)
	}
}

// ExportSecret derives an exporter secret as per RFC 8446, Section
// 7.5: the label selects an exporter key from the exporter master
// secret and the context value is mixed in through its hash.
func (c *Conn) ExportSecret(label string, contextValue []byte,
	outLen int, isEarly bool) ([]byte, error) {

	master := c.exporterMaster
	if isEarly {
		master = c.earlyExporterMaster
	}
	if master == nil {
		return nil, internalErrorf(ErrorNotAvailable,
			"exporter master secret not available")
	}
	derived := hkdfExpandLabel(c.suite.Hash, master, label,
		c.suite.Hash.EmptyDigest(), c.suite.Hash.DigestSize,
		c.ctx.labelPrefix())
	defer ClearMemory(derived)

	return hkdfExpandLabel(c.suite.Hash, derived, "exporter",
		c.suite.Hash.Sum(contextValue), outLen,
		c.ctx.labelPrefix()), nil
}

// HandleMessage runs the handshake by dealing directly with handshake
// messages instead of records. Outbound messages are written to
// sendBuf segregated by epoch: the messages of epoch e occupy
// sendBuf[epochOffsets[e]:epochOffsets[e+1]]. Input tagged with a
// future epoch is buffered; input from a past epoch is refused.
func (c *Conn) HandleMessage(sendBuf *Buffer, epochOffsets *[5]int,
	inEpoch Epoch, input []byte,
	props *HandshakeProperties) error {

	if c.failed != nil {
		return c.failed
	}
	if props == nil {
		props = &HandshakeProperties{}
	}
	em := &rawEmitter{
		buf:     sendBuf,
		offsets: epochOffsets,
	}

	if !c.server && c.state == stateClientStart {
		if err := c.clientSendClientHello(em, props, nil); err != nil {
			c.fail(nil, err)
			return err
		}
		if len(input) == 0 {
			return ErrInProgress
		}
	}

	if inEpoch < c.inEpoch {
		return internalErrorf(ErrorNotAvailable,
			"input from past epoch %v", inEpoch)
	}
	if inEpoch > c.inEpoch {
		c.futureEpochs[inEpoch] = append(c.futureEpochs[inEpoch],
			input...)
		return ErrInProgress
	}

	err := c.feedHandshakeBytes(em, input, props)
	if err != nil {
		c.fail(nil, err)
		return err
	}

	// Drain buffered input whose epoch has become current.
	for int(c.inEpoch) < int(numEpochs) &&
		len(c.futureEpochs[c.inEpoch]) > 0 {
		buffered := c.futureEpochs[c.inEpoch]
		c.futureEpochs[c.inEpoch] = nil
		if err := c.feedHandshakeBytes(em, buffered, props); err != nil {
			c.fail(nil, err)
			return err
		}
	}

	if c.handshakeComplete {
		return nil
	}
	return ErrInProgress
}
