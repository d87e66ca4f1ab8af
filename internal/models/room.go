package models

import "time"

// Room is a chat room identified by a case-insensitive code.
// Rooms are provisioned outside the relay; the relay only reads them,
// touches UpdatedAt on activity and deletes them when they are reaped.
type Room struct {
	// Code is the lowercase room code.
	Code string `gorm:"primaryKey;type:text" json:"code"`
	// HostToken is the identity token of the participant allowed to moderate.
	HostToken string `gorm:"type:text;not null" json:"-"`
	// CreatedAt is set once when the row is inserted.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the last-activity timestamp used by the reaper.
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`

	// Dependent rows go with the room; inserts into a deleted room fail.
	Memberships []Membership `gorm:"foreignKey:Code;references:Code;constraint:OnDelete:CASCADE" json:"-"`
	Messages    []Message    `gorm:"foreignKey:Code;references:Code;constraint:OnDelete:CASCADE" json:"-"`
}

func (Room) TableName() string { return "rooms" }
