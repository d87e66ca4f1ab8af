package chathub

import (
	"context"
	"errors"
	"fmt"

	"roomrelay/backend/internal/models"
	"roomrelay/backend/internal/storage"

	"github.com/sirupsen/logrus"
)

// authorizeHost returns the caller's session if it is the host of room.
func (m *ManagerService) authorizeHost(c Client, room string) (Session, error) {
	sess, ok := m.Registry.Get(c.GetID())
	if !ok || !sess.IsHost || sess.Room != room {
		m.log.WithFields(logrus.Fields{"handle": c.GetID(), "room": room}).Debug("moderation ignored: not host")
		return Session{}, ErrUnauthorized
	}
	return sess, nil
}

// SetPrivacy marks room private or public and tells its members.
func (m *ManagerService) SetPrivacy(ctx context.Context, c Client, room string, private bool) error {
	code := storage.NormalizeCode(room)
	if _, err := m.authorizeHost(c, code); err != nil {
		return err
	}

	if private {
		m.Private.Add(code)
	} else {
		m.Private.Remove(code)
	}
	m.broadcast(code, models.OutboundEvent{
		Event: models.EventPrivacyChanged,
		Data:  models.PrivacyChangedEvent{Private: private},
	}, "")
	m.log.WithFields(logrus.Fields{"room": code, "private": private}).Info("room privacy changed")
	return nil
}

// Kick removes targetToken's membership from room and force-closes one of
// its connections. The membership is removed even when the target is not
// connected.
func (m *ManagerService) Kick(ctx context.Context, c Client, room, targetToken string) error {
	code := storage.NormalizeCode(room)
	sess, err := m.authorizeHost(c, code)
	if err != nil {
		return err
	}
	if targetToken == "" {
		return fmt.Errorf("%w: targetUserToken is required", ErrValidation)
	}
	log := m.log.WithFields(logrus.Fields{"room": code, "handle": c.GetID()})
	if targetToken == sess.Token {
		log.Debug("host cannot kick itself")
		return nil
	}
	if m.Storage == nil {
		return ErrStorageUnavailable
	}

	row, err := m.findMembershipByToken(ctx, code, targetToken)
	if err != nil {
		return err
	}
	if row != nil {
		if _, err := m.Storage.DeleteMembership(ctx, code, row.IdentityCiphertext); err != nil {
			return fmt.Errorf("%w: delete membership: %v", ErrDependency, err)
		}
		if err := m.Storage.TouchRoom(ctx, code); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.WithError(err).Warn("failed to touch room")
		}
	}

	if target, ok := m.Registry.FindByToken(code, targetToken); ok {
		// Detached first so the disconnect does not run leave cleanup again.
		m.Registry.Detach(target.GetID())
		target.Send(models.OutboundEvent{Event: models.EventKicked})
		target.Close()
	}

	snapshot, err := m.Snapshot(ctx, code)
	if err != nil {
		return err
	}
	m.broadcastPresence(code, snapshot)
	log.WithField("membership_removed", row != nil).Info("member kicked")
	return nil
}

// findMembershipByToken locates the persisted membership of token. The
// fingerprint index is tried first; rows written without a fingerprint
// are found by decrypting each one.
func (m *ManagerService) findMembershipByToken(ctx context.Context, room, token string) (*models.Membership, error) {
	if fp := m.Cipher.Fingerprint(token); fp != "" {
		row, err := m.Storage.FindMembershipByFingerprint(ctx, room, fp)
		if err != nil {
			return nil, fmt.Errorf("%w: find membership: %v", ErrDependency, err)
		}
		if row != nil {
			return row, nil
		}
	}

	members, err := m.Storage.ListMemberships(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: list members: %v", ErrDependency, err)
	}
	for i := range members {
		rec, err := m.Cipher.DecryptIdentity(ctx, members[i].IdentityCiphertext)
		if err != nil {
			m.log.WithError(err).WithField("room", room).Warn("skipping undecryptable membership")
			continue
		}
		if rec.Token == token {
			return &members[i], nil
		}
	}
	return nil, nil
}
