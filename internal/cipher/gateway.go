// Package cipher talks to the external identity cipher service.
//
// The service is stateless and deterministic: the same plaintext always
// encrypts to the same ciphertext, which lets the relay compare identities
// by ciphertext without ever holding plaintext for the comparison.
package cipher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"roomrelay/backend/internal/config"
	"roomrelay/backend/internal/models"
)

// ErrGateway is returned for every failed call. Callers never receive
// plaintext in place of a ciphertext.
var ErrGateway = errors.New("cipher gateway unavailable")

const (
	actionEncrypt         = "encrypt"
	actionEncryptIdentity = "encryptUserData"
	actionDecryptIdentity = "decryptUserData"

	maxResponseBytes = 1 << 20
)

type gatewayRequest struct {
	Data   any    `json:"data"`
	Action string `json:"action"`
}

type gatewayResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// Gateway is an HTTP client for the cipher service.
type Gateway struct {
	endpoint string
	apiKey   string
	client   *http.Client
	hasher   *Fingerprinter
}

// NewGateway builds a Gateway from config. The per-call timeout is the only
// deadline applied to cipher calls on the join/send/moderation paths.
func NewGateway(cfg config.CryptoConfig) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultCryptoTimeout
	}

	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &Gateway{
		endpoint: cfg.URL,
		apiKey:   cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:     dialer.DialContext,
				MaxIdleConns:    100,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		hasher: NewFingerprinter(cfg.FingerprintKey),
	}
}

// Encrypt encrypts an arbitrary string, used for message bodies.
func (g *Gateway) Encrypt(ctx context.Context, plaintext string) (string, error) {
	raw, err := g.call(ctx, actionEncrypt, plaintext)
	if err != nil {
		return "", err
	}
	return decodeCiphertext(raw)
}

// EncryptIdentity deterministically encrypts an identity record.
func (g *Gateway) EncryptIdentity(ctx context.Context, rec models.IdentityRecord) (string, error) {
	raw, err := g.call(ctx, actionEncryptIdentity, rec)
	if err != nil {
		return "", err
	}
	return decodeCiphertext(raw)
}

// DecryptIdentity reverses EncryptIdentity.
func (g *Gateway) DecryptIdentity(ctx context.Context, ciphertext string) (models.IdentityRecord, error) {
	raw, err := g.call(ctx, actionDecryptIdentity, ciphertext)
	if err != nil {
		return models.IdentityRecord{}, err
	}

	rec, err := models.ParseIdentityRecord(raw)
	if err != nil {
		return models.IdentityRecord{}, fmt.Errorf("%w: undecodable identity: %v", ErrGateway, err)
	}
	if strings.TrimSpace(rec.Token) == "" {
		return models.IdentityRecord{}, fmt.Errorf("%w: decrypted identity has no token", ErrGateway)
	}
	return rec, nil
}

// Fingerprint returns the keyed hash of an identity token, or "" when no
// fingerprint key is configured.
func (g *Gateway) Fingerprint(token string) string {
	return g.hasher.Sum(token)
}

func (g *Gateway) call(ctx context.Context, action string, data any) (json.RawMessage, error) {
	body, err := json.Marshal(gatewayRequest{Data: data, Action: action})
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s request: %v", ErrGateway, action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build %s request: %v", ErrGateway, action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrGateway, action, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", ErrGateway, action, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrGateway, action, resp.StatusCode)
	}

	var out gatewayResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", ErrGateway, action, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrGateway, action, out.Error)
	}
	if len(out.Data) == 0 || string(out.Data) == "null" {
		return nil, fmt.Errorf("%w: %s returned no data", ErrGateway, action)
	}
	return out.Data, nil
}

// decodeCiphertext expects the ciphertext as a JSON string.
func decodeCiphertext(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: unexpected ciphertext shape", ErrGateway)
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty ciphertext", ErrGateway)
	}
	return s, nil
}
