//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package ticketstore

import (
	"bytes"
	"testing"

	"github.com/markkurossi/tls13"
)

func TestSealer(t *testing.T) {
	sealer, err := NewSealer(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	cb := sealer.Callback()

	state := []byte("resumption state")
	sealed := tls13.NewBuffer(nil)
	if err := cb(nil, true, sealed, state); err != nil {
		t.Fatal(err)
	}

	opened := tls13.NewBuffer(nil)
	if err := cb(nil, false, opened, sealed.Bytes()); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(opened.Bytes(), state) {
		t.Errorf("state mismatch: %x", opened.Bytes())
	}
}

func TestSealerReject(t *testing.T) {
	sealer, err := NewSealer(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	cb := sealer.Callback()

	sealed := tls13.NewBuffer(nil)
	if err := cb(nil, true, sealed, []byte("state")); err != nil {
		t.Fatal(err)
	}
	data := append([]byte(nil), sealed.Bytes()...)
	data[len(data)-1] ^= 0x01

	opened := tls13.NewBuffer(nil)
	if err := cb(nil, false, opened, data); err == nil {
		t.Errorf("tampered ticket accepted")
	}

	// A different key rejects the ticket as well.
	other, err := NewSealer(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatal(err)
	}
	opened = tls13.NewBuffer(nil)
	if err := other.Callback()(nil, false, opened,
		sealed.Bytes()); err == nil {
		t.Errorf("foreign ticket accepted")
	}
}

func TestStore(t *testing.T) {
	store, err := NewStore(2)
	if err != nil {
		t.Fatal(err)
	}

	save := store.SaveTicketCallback()
	conn := tls13.New(&tls13.Context{}, false)
	defer conn.Free()
	conn.SetServerName("example.com")

	if err := save(conn, []byte("ticket-1")); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(store.Get("example.com"), []byte("ticket-1")) {
		t.Errorf("ticket not stored")
	}
	if store.Get("other.com") != nil {
		t.Errorf("unexpected ticket")
	}

	if !bytes.Equal(store.Take("example.com"), []byte("ticket-1")) {
		t.Errorf("Take did not return the ticket")
	}
	if store.Get("example.com") != nil {
		t.Errorf("Take did not remove the ticket")
	}
}
