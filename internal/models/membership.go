package models

import "time"

// Membership links an encrypted identity record to a room.
// The (Code, IdentityCiphertext) pair is unique; the relay relies on the
// constraint rather than on in-memory locking to deduplicate joins.
type Membership struct {
	ID uint `gorm:"primaryKey" json:"-"`
	// Code references Room.Code.
	Code string `gorm:"type:text;not null;uniqueIndex:ux_room_identity,priority:1" json:"code"`
	// IdentityCiphertext is the deterministic ciphertext of the IdentityRecord.
	IdentityCiphertext string `gorm:"type:text;not null;uniqueIndex:ux_room_identity,priority:2" json:"-"`
	// TokenFingerprint is a keyed hash of the identity token, used to find
	// a member without decrypting every row.
	TokenFingerprint string `gorm:"type:text;index" json:"-"`
	IsHost           bool   `gorm:"not null;default:false" json:"host"`
	CreatedAt        time.Time
}

func (Membership) TableName() string { return "room_memberships" }
