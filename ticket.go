//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

// sessionState is the server-side resumption state sealed into a
// session ticket by the EncryptTicket callback.
type sessionState struct {
	issuedAt           uint64
	suite              CipherSuiteID
	maxEarlyDataSize   uint32
	psk                []byte
	negotiatedProtocol string
	serverName         string
}

func (state *sessionState) encode(buf *Buffer) error {
	if err := buf.PushUint64(state.issuedAt); err != nil {
		return err
	}
	if err := buf.PushUint16(uint16(state.suite)); err != nil {
		return err
	}
	if err := buf.PushUint32(state.maxEarlyDataSize); err != nil {
		return err
	}
	if err := buf.PushBlock(2, func() error {
		return buf.PushRaw(state.psk)
	}); err != nil {
		return err
	}
	if err := buf.PushBlock(1, func() error {
		return buf.PushRaw([]byte(state.negotiatedProtocol))
	}); err != nil {
		return err
	}
	return buf.PushBlock(2, func() error {
		return buf.PushRaw([]byte(state.serverName))
	})
}

func decodeSessionState(data []byte) (*sessionState, error) {
	state := new(sessionState)
	d := NewDecoder(data)

	var err error
	state.issuedAt, err = d.Uint64()
	if err != nil {
		return nil, err
	}
	suite, err := d.Uint16()
	if err != nil {
		return nil, err
	}
	state.suite = CipherSuiteID(suite)

	state.maxEarlyDataSize, err = d.Uint32()
	if err != nil {
		return nil, err
	}
	state.psk, err = d.Block(2)
	if err != nil {
		return nil, err
	}
	alpn, err := d.Block(1)
	if err != nil {
		return nil, err
	}
	state.negotiatedProtocol = string(alpn)

	name, err := d.Block(2)
	if err != nil {
		return nil, err
	}
	state.serverName = string(name)

	if err := d.Close(); err != nil {
		return nil, err
	}
	return state, nil
}

// savedTicket is the client-side blob handed to the SaveTicket
// callback and fed back through ClientProperties.SessionTicket: the
// receipt time, negotiated algorithms, the NewSessionTicket body as
// received, and the derived pre-shared key.
type savedTicket struct {
	receivedAt uint64
	group      NamedGroup
	suite      CipherSuiteID
	nstBody    []byte
	psk        []byte

	// parsed from nstBody
	nst *newSessionTicket
}

func (ticket *savedTicket) encode(buf *Buffer) error {
	if err := buf.PushUint64(ticket.receivedAt); err != nil {
		return err
	}
	if err := buf.PushUint16(uint16(ticket.group)); err != nil {
		return err
	}
	if err := buf.PushUint16(uint16(ticket.suite)); err != nil {
		return err
	}
	if err := buf.PushBlock(3, func() error {
		return buf.PushRaw(ticket.nstBody)
	}); err != nil {
		return err
	}
	return buf.PushBlock(2, func() error {
		return buf.PushRaw(ticket.psk)
	})
}

func decodeSavedTicket(data []byte) (*savedTicket, error) {
	ticket := new(savedTicket)
	d := NewDecoder(data)

	var err error
	ticket.receivedAt, err = d.Uint64()
	if err != nil {
		return nil, err
	}
	group, err := d.Uint16()
	if err != nil {
		return nil, err
	}
	ticket.group = NamedGroup(group)

	suite, err := d.Uint16()
	if err != nil {
		return nil, err
	}
	ticket.suite = CipherSuiteID(suite)

	ticket.nstBody, err = d.Block(3)
	if err != nil {
		return nil, err
	}
	ticket.psk, err = d.Block(2)
	if err != nil {
		return nil, err
	}
	if err := d.Close(); err != nil {
		return nil, err
	}

	ticket.nst, err = decodeNewSessionTicket(ticket.nstBody)
	if err != nil {
		return nil, err
	}
	return ticket, nil
}
