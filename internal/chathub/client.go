package chathub

import (
	"context"

	"roomrelay/backend/internal/models"
)

// Client is one live duplex connection. It abstracts the transport so the
// hub can be driven by WebSocket connections in production and by test
// doubles in unit tests.
type Client interface {
	// GetID returns the connection handle assigned when the client was created.
	GetID() string

	// Send queues an event for delivery. It never blocks and reports false
	// when the client is closed or its buffer is full.
	Send(evt models.OutboundEvent) bool

	// Run starts the client's read and write pumps.
	Run()
	// Close stops delivery and tears the connection down. Safe to call twice.
	Close()
}

// Cipher is the subset of the cipher gateway the hub depends on.
type Cipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	EncryptIdentity(ctx context.Context, rec models.IdentityRecord) (string, error)
	DecryptIdentity(ctx context.Context, ciphertext string) (models.IdentityRecord, error)
	Fingerprint(token string) string
}
