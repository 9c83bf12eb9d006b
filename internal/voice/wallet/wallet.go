// Package wallet tracks the signer a user session has connected.
// The registration pipeline reads it through ports.WalletProvider and never mutates it.
package wallet

import (
	"sync"

	id "voiceid/pkg/domain"
)

// Connection is the session's wallet state. The zero value is disconnected.
type Connection struct {
	mu      sync.RWMutex
	address id.SignerAddress
}

// Connect sets the signer, replacing any previous one.
func (c *Connection) Connect(address id.SignerAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.address = address
}

// Disconnect clears the signer and returns the address that was connected.
func (c *Connection) Disconnect() id.SignerAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.address
	c.address = ""
	return prev
}

func (c *Connection) Signer() (id.SignerAddress, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address, !c.address.IsNil()
}
