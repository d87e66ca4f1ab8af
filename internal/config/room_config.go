package config

import "time"

const (
	// Rooms
	MaxRoomMembers = 4

	// Reaper
	DefaultReaperInterval       = 5 * time.Minute
	DefaultReaperEmptyThreshold = 5 * time.Minute
	DefaultReaperStaleThreshold = 24 * time.Hour

	// Cipher gateway
	DefaultCryptoTimeout = 10 * time.Second
	DecryptConcurrency   = 8

	// Rate limits
	DefaultMessageRateLimit  = 20
	DefaultMessageRateWindow = 10 * time.Second
	DefaultHTTPRateLimit     = 120
	DefaultHTTPRateWindow    = time.Minute

	// Localization
	DefaultLanguage = "pt-BR"
)

// SupportedMessageKinds lists the values accepted in sendMessage.type.
var SupportedMessageKinds = map[string]bool{
	"text":  true,
	"audio": true,
}
