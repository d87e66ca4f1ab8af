package chathub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"roomrelay/backend/internal/config"
	"roomrelay/backend/internal/models"
	"roomrelay/backend/internal/storage"

	"github.com/sirupsen/logrus"
)

// Relay fans a chat message out to the sender's room. Text messages are
// encrypted and persisted first and are never broadcast if that fails.
// Audio messages skip persistence.
func (m *ManagerService) Relay(ctx context.Context, c Client, req models.SendMessageRequest) error {
	code := storage.NormalizeCode(req.Room)
	if code == "" || req.UserToken == "" || strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: room, userToken and message are required", ErrValidation)
	}
	kind := req.Type
	if kind == "" {
		kind = models.MessageKindText
	}
	if !config.SupportedMessageKinds[kind] {
		return fmt.Errorf("%w: unsupported message type %q", ErrValidation, kind)
	}

	sess, ok := m.Registry.Get(c.GetID())
	if !ok || sess.Room != code || sess.Token != req.UserToken {
		return fmt.Errorf("%w: sender has not joined %s", ErrValidation, code)
	}
	if m.Storage == nil {
		return ErrStorageUnavailable
	}

	log := m.log.WithFields(logrus.Fields{"handle": c.GetID(), "room": code})

	if !m.allowMessage(ctx, sess.Token, log) {
		return ErrRateLimited
	}

	lang := req.Language
	if lang == "" {
		lang = sess.Language
	}
	sentAt := time.Now().UTC()
	evt := models.ChatEvent{
		Message:     req.Message,
		UserToken:   sess.Token,
		Date:        sentAt.Format(time.RFC3339Nano),
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
		Color:       req.Color,
		Language:    lang,
		Type:        kind,
	}

	if kind == models.MessageKindText {
		if err := m.Storage.TouchRoom(ctx, code); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, code)
			}
			return fmt.Errorf("%w: touch room: %v", ErrDependency, err)
		}
		body, err := m.Cipher.Encrypt(ctx, req.Message)
		if err != nil {
			return fmt.Errorf("%w: encrypt message: %v", ErrDependency, err)
		}
		err = m.Storage.SaveMessage(ctx, &models.Message{
			Code:           code,
			SenderToken:    sess.Token,
			BodyCiphertext: body,
			SentAt:         sentAt,
			DisplayName:    req.DisplayName,
			Avatar:         req.Avatar,
			SourceLanguage: lang,
		})
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, code)
		}
		if err != nil {
			return fmt.Errorf("%w: save message: %v", ErrDependency, err)
		}
	}

	m.broadcast(code, models.OutboundEvent{Event: models.EventMessage, Data: evt}, "")
	log.WithField("type", kind).Debug("message relayed")
	return nil
}

// allowMessage applies the per-token message rate limit. A failing
// counter store lets the message through.
func (m *ManagerService) allowMessage(ctx context.Context, token string, log *logrus.Entry) bool {
	if m.Limits.MessageRate <= 0 {
		return true
	}
	allowed, err := m.Storage.AllowEvent(ctx, "msg:"+token, m.Limits.MessageRate, m.Limits.MessageRateWindow)
	if err != nil {
		log.WithError(err).Warn("rate limiter unavailable")
		return true
	}
	return allowed
}

// Typing forwards a typing indicator to everyone else in the sender's room.
// Requests from connections that have not joined that room are dropped.
func (m *ManagerService) Typing(c Client, req models.TypingRequest) {
	code := storage.NormalizeCode(req.Room)
	sess, ok := m.Registry.Get(c.GetID())
	if !ok || sess.Room != code {
		return
	}
	m.broadcast(code, models.OutboundEvent{
		Event: models.EventUsersTyping,
		Data:  models.TypingEvent{UserToken: sess.Token, Typing: req.Typing},
	}, c.GetID())
}
