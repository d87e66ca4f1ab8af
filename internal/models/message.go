package models

import "time"

// Message is a persisted text message. Audio messages are never stored.
type Message struct {
	ID             uint      `gorm:"primaryKey"`
	Code           string    `gorm:"type:text;not null;index:idx_room_sent,priority:1"`
	SenderToken    string    `gorm:"type:text;not null"`
	BodyCiphertext string    `gorm:"type:text;not null"`
	SentAt         time.Time `gorm:"not null;index:idx_room_sent,priority:2"`
	DisplayName    string    `gorm:"type:text"`
	Avatar         string    `gorm:"type:text"`
	SourceLanguage string    `gorm:"type:text"`
}

func (Message) TableName() string { return "messages" }
