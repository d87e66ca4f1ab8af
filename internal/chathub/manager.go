package chathub

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"roomrelay/backend/internal/config"
	"roomrelay/backend/internal/localization"
	"roomrelay/backend/internal/models"
	"roomrelay/backend/internal/storage"

	"github.com/sirupsen/logrus"
)

// ManagerService coordinates every live connection: it owns the session
// registry and the private-room set, and dispatches inbound events to the
// membership, relay and moderation flows.
type ManagerService struct {
	Registry *Registry
	Private  *PrivateRoomSet

	// Storage is nil when the database was unreachable at startup.
	Storage storage.Storage
	Cipher  Cipher

	Localizer       *localization.Localizer
	DefaultLanguage string
	Limits          config.LimitsConfig

	RegisterCh   chan Client
	UnregisterCh chan Client

	done chan struct{}
	log  *logrus.Entry
}

func NewManagerService(s storage.Storage, c Cipher, loc *localization.Localizer) *ManagerService {
	return &ManagerService{
		Registry:        NewRegistry(),
		Private:         NewPrivateRoomSet(),
		Storage:         s,
		Cipher:          c,
		Localizer:       loc,
		DefaultLanguage: config.DefaultLanguage,
		Limits: config.LimitsConfig{
			MessageRate:       config.DefaultMessageRateLimit,
			MessageRateWindow: config.DefaultMessageRateWindow,
		},
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		done:         make(chan struct{}),
		log:          logrus.WithField("component", "chathub"),
	}
}

// Run processes connection lifecycle events until ctx is cancelled. On
// shutdown every client is closed and the private-room set is discarded.
func (m *ManagerService) Run(ctx context.Context) {
	m.log.Info("hub started")
	defer m.shutdown()

	// Disconnect cleanup must finish even while the hub is stopping.
	cleanupCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-m.RegisterCh:
			m.Registry.Connect(c)
			m.log.WithField("handle", c.GetID()).Debug("client connected")

		case c := <-m.UnregisterCh:
			sess, joined := m.Registry.Disconnect(c.GetID())
			c.Close()
			m.log.WithField("handle", c.GetID()).Debug("client disconnected")
			if joined {
				go func() {
					if err := m.Leave(cleanupCtx, sess); err != nil {
						m.log.WithError(err).WithField("room", sess.Room).Warn("leave cleanup failed")
					}
				}()
			}
		}
	}
}

func (m *ManagerService) shutdown() {
	close(m.done)
	for _, c := range m.Registry.Clients() {
		c.Close()
	}
	m.Private.Reset()
	m.log.Info("hub stopped")
}

// Register hands a new connection to the hub. It reports false once the
// hub has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// HandleMessage decodes one raw frame and dispatches it.
func (m *ManagerService) HandleMessage(ctx context.Context, c Client, raw []byte) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		m.log.WithField("handle", c.GetID()).Debug("malformed frame")
		c.Send(models.OutboundEvent{Event: models.EventError, Data: m.translate(m.languageOf(c), "invalidEvent")})
		return
	}
	m.HandleEvent(ctx, c, env)
}

// HandleEvent runs one inbound event to completion on the caller's
// goroutine. Events of a single connection are therefore never processed
// concurrently.
func (m *ManagerService) HandleEvent(ctx context.Context, c Client, env models.Envelope) {
	lang := m.languageOf(c)
	log := m.log.WithFields(logrus.Fields{"handle": c.GetID(), "event": env.Event})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("panic handling event: %v", r)
		}
	}()

	var err error
	switch env.Event {
	case models.EventJoinRoom:
		var req models.JoinRoomRequest
		if err = decode(env.Data, &req); err == nil {
			if req.Language != "" {
				lang = req.Language
			}
			err = m.Join(ctx, c, req)
		}

	case models.EventSendMessage:
		var req models.SendMessageRequest
		if err = decode(env.Data, &req); err == nil {
			err = m.Relay(ctx, c, req)
		}

	case models.EventTyping:
		var req models.TypingRequest
		if err = decode(env.Data, &req); err == nil {
			m.Typing(c, req)
		}

	case models.EventPrivacy:
		var req models.PrivacyRequest
		if err = decode(env.Data, &req); err == nil {
			err = m.SetPrivacy(ctx, c, req.Room, req.Private)
		}

	case models.EventKickUser:
		var req models.KickRequest
		if err = decode(env.Data, &req); err == nil {
			err = m.Kick(ctx, c, req.Room, req.TargetUserToken)
		}

	default:
		log.Debug("unknown event")
		c.Send(models.OutboundEvent{Event: models.EventError, Data: m.translate(lang, "invalidEvent")})
		return
	}

	if err == nil {
		return
	}
	log.WithError(err).Info("event failed")
	if evt, ok := m.errorEvent(env.Event, lang, err); ok {
		c.Send(evt)
	}
}

func (m *ManagerService) languageOf(c Client) string {
	if sess, ok := m.Registry.Get(c.GetID()); ok && sess.Language != "" {
		return sess.Language
	}
	return m.DefaultLanguage
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing payload", ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// broadcast queues evt for every connection joined to room except the
// handle in skip. Clients that cannot keep up are closed.
func (m *ManagerService) broadcast(room string, evt models.OutboundEvent, skip string) {
	for _, c := range m.Registry.RoomClients(room) {
		if c.GetID() == skip {
			continue
		}
		if !c.Send(evt) {
			m.log.WithFields(logrus.Fields{"handle": c.GetID(), "room": room}).Warn("send buffer full, closing client")
			c.Close()
		}
	}
}
