package models

import (
	"encoding/json"
	"errors"
	"strings"
)

// IdentityRecord describes a participant as the clients know it.
// The server never stores it in plaintext; see cipher.Gateway.
type IdentityRecord struct {
	Token       string `json:"userToken"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
	Color       string `json:"color,omitempty"`
}

// Complete reports whether the fields required to join a room are present.
func (r IdentityRecord) Complete() bool {
	return strings.TrimSpace(r.Token) != "" && strings.TrimSpace(r.DisplayName) != ""
}

// ParseIdentityRecord accepts either a JSON object or a JSON string that
// itself contains the encoded object.
func ParseIdentityRecord(raw json.RawMessage) (IdentityRecord, error) {
	var rec IdentityRecord
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return rec, errors.New("identity record is empty")
	}

	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return rec, err
		}
		raw = json.RawMessage(inner)
	}

	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}
