//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"fmt"
	"io"
	"sync"
)

// NewKeyLogWriter creates a LogEvent callback that writes key
// material to w in the NSS key log format, suitable for decrypting
// captures with Wireshark. The callback serializes writes and can be
// shared between connections.
func NewKeyLogWriter(w io.Writer) func(c *Conn, label string,
	secret []byte) {

	var m sync.Mutex

	return func(c *Conn, label string, secret []byte) {
		m.Lock()
		defer m.Unlock()
		fmt.Fprintf(w, "%s %x %x\n", label, c.ClientRandom(), secret)
	}
}
