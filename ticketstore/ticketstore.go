//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package ticketstore provides session-ticket helpers around the TLS
// 1.3 engine: an AEAD ticket sealer for servers and an LRU-bounded
// ticket cache for clients.
package ticketstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/markkurossi/tls13"
)

// Sealer encrypts and decrypts server session tickets with
// AES-256-GCM under a fixed key. Rotation policy is up to the
// application; a Sealer is safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a ticket sealer. The key must be 16 or 32 bytes.
func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{
		aead: aead,
	}, nil
}

// Callback returns an EncryptTicket callback backed by the sealer.
func (s *Sealer) Callback() func(c *tls13.Conn, isEncrypt bool,
	dst *tls13.Buffer, src []byte) error {

	return func(c *tls13.Conn, isEncrypt bool, dst *tls13.Buffer,
		src []byte) error {

		if isEncrypt {
			nonce := make([]byte, s.aead.NonceSize())
			if _, err := rand.Read(nonce); err != nil {
				return err
			}
			if err := dst.PushRaw(nonce); err != nil {
				return err
			}
			return dst.PushRaw(s.aead.Seal(nil, nonce, src, nil))
		}

		if len(src) < s.aead.NonceSize() {
			return errors.New("ticketstore: ticket too short")
		}
		plain, err := s.aead.Open(nil, src[:s.aead.NonceSize()],
			src[s.aead.NonceSize():], nil)
		if err != nil {
			return errors.New("ticketstore: ticket rejected")
		}
		return dst.PushRaw(plain)
	}
}

// Store is a client-side ticket cache keyed by server name, bounded
// by an LRU policy.
type Store struct {
	cache *lru.Cache[string, []byte]
}

// NewStore creates a ticket store holding up to size tickets.
func NewStore(size int) (*Store, error) {
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &Store{
		cache: cache,
	}, nil
}

// SaveTicketCallback returns a SaveTicket callback that files tickets
// under the connection's server name.
func (s *Store) SaveTicketCallback() func(c *tls13.Conn,
	ticket []byte) error {

	return func(c *tls13.Conn, ticket []byte) error {
		s.cache.Add(c.ServerName(), append([]byte(nil), ticket...))
		return nil
	}
}

// Get returns the saved ticket for the server name, or nil.
func (s *Store) Get(serverName string) []byte {
	ticket, ok := s.cache.Get(serverName)
	if !ok {
		return nil
	}
	return ticket
}

// Take returns and removes the saved ticket for the server name.
// Single-use tickets avoid cross-connection correlation.
func (s *Store) Take(serverName string) []byte {
	ticket, ok := s.cache.Get(serverName)
	if !ok {
		return nil
	}
	s.cache.Remove(serverName)
	return ticket
}
