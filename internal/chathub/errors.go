package chathub

import (
	"errors"
	"fmt"

	"roomrelay/backend/internal/models"
)

var (
	ErrValidation   = errors.New("invalid request")
	ErrDependency   = errors.New("dependency unavailable")
	ErrNotFound     = errors.New("room not found")
	ErrPrivateRoom  = errors.New("room is private")
	ErrRoomFull     = errors.New("room is full")
	ErrUnauthorized = errors.New("not the room host")
	ErrRateLimited  = errors.New("rate limit exceeded")

	// ErrStorageUnavailable is a DependencyError raised when the relay runs
	// without a database.
	ErrStorageUnavailable = fmt.Errorf("%w: persistence unavailable", ErrDependency)
)

// errorEvent maps a failed inbound event to the event sent back to the
// initiating client. Moderation failures are never surfaced.
func (m *ManagerService) errorEvent(event, lang string, err error) (models.OutboundEvent, bool) {
	key := ""
	switch {
	case errors.Is(err, ErrUnauthorized),
		event == models.EventPrivacy,
		event == models.EventKickUser:
		return models.OutboundEvent{}, false
	case errors.Is(err, ErrPrivateRoom):
		return models.OutboundEvent{
			Event: models.EventRoomPrivate,
			Data:  m.translate(lang, "roomPrivate"),
		}, true
	case errors.Is(err, ErrStorageUnavailable):
		key = "databaseUnavailable"
	case errors.Is(err, ErrRateLimited):
		key = "rateLimited"
	case event == models.EventSendMessage:
		key = "messageFailed"
	case errors.Is(err, ErrValidation):
		key = "userDataError"
	case errors.Is(err, ErrNotFound):
		key = "roomNotFound"
	case errors.Is(err, ErrRoomFull):
		key = "roomFull"
	default:
		key = "errorJoiningRoom"
	}
	return models.OutboundEvent{Event: models.EventError, Data: m.translate(lang, key)}, true
}

func (m *ManagerService) translate(lang, key string) string {
	if m.Localizer == nil {
		return key
	}
	if lang == "" {
		lang = m.DefaultLanguage
	}
	return m.Localizer.GetString(lang, key)
}
