package chathub

import (
	"context"
	"errors"
	"fmt"

	"roomrelay/backend/internal/config"
	"roomrelay/backend/internal/models"
	"roomrelay/backend/internal/storage"

	"github.com/sirupsen/logrus"
)

// Join admits the client into req.Room. Membership rows are deduplicated
// by identity ciphertext; a concurrent duplicate insert counts as success.
func (m *ManagerService) Join(ctx context.Context, c Client, req models.JoinRoomRequest) error {
	if m.Storage == nil {
		return ErrStorageUnavailable
	}

	code := storage.NormalizeCode(req.Room)
	if code == "" {
		return fmt.Errorf("%w: room is required", ErrValidation)
	}
	identity, err := models.ParseIdentityRecord(req.UserData)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !identity.Complete() {
		return fmt.Errorf("%w: incomplete identity", ErrValidation)
	}
	lang := req.Language
	if lang == "" {
		lang = m.DefaultLanguage
	}

	log := m.log.WithFields(logrus.Fields{"handle": c.GetID(), "room": code})

	ciphertext, err := m.Cipher.EncryptIdentity(ctx, identity)
	if err != nil {
		return fmt.Errorf("%w: encrypt identity: %v", ErrDependency, err)
	}

	room, err := m.Storage.GetRoom(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if err != nil {
		return fmt.Errorf("%w: get room: %v", ErrDependency, err)
	}
	isHost := identity.Token == room.HostToken

	existing, err := m.Storage.FindMembership(ctx, code, ciphertext)
	if err != nil {
		return fmt.Errorf("%w: find membership: %v", ErrDependency, err)
	}
	wasMember := existing != nil

	// The same token re-sending join with new display details keeps its seat.
	prev, attached := m.Registry.Get(c.GetID())
	renaming := attached && prev.Room == code && prev.Token == identity.Token && prev.Ciphertext != ciphertext

	if !wasMember && !renaming && m.Private.Contains(code) {
		return fmt.Errorf("%w: %s", ErrPrivateRoom, code)
	}

	created := false
	if !wasMember {
		count, err := m.Storage.CountMemberships(ctx, code)
		if err != nil {
			return fmt.Errorf("%w: count members: %v", ErrDependency, err)
		}
		if renaming {
			count--
		}
		if count >= config.MaxRoomMembers {
			return fmt.Errorf("%w: %s", ErrRoomFull, code)
		}

		err = m.Storage.CreateMembership(ctx, &models.Membership{
			Code:               code,
			IdentityCiphertext: ciphertext,
			TokenFingerprint:   m.Cipher.Fingerprint(identity.Token),
			IsHost:             isHost,
		})
		switch {
		case err == nil:
			created = true
		case errors.Is(err, storage.ErrDuplicate):
			// A concurrent join for the same identity got there first.
			log.Debug("membership already exists")
			wasMember = true
		case errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("%w: %s", ErrNotFound, code)
		default:
			return fmt.Errorf("%w: create membership: %v", ErrDependency, err)
		}
	}

	members, err := m.Storage.ListMemberships(ctx, code)
	if err != nil {
		return fmt.Errorf("%w: list members: %v", ErrDependency, err)
	}
	if renaming {
		members = withoutCiphertext(members, prev.Ciphertext)
	}
	if !wasMember && distinctMembers(members) > config.MaxRoomMembers {
		if created {
			if _, err := m.Storage.DeleteMembership(ctx, code, ciphertext); err != nil {
				log.WithError(err).Error("failed to roll back membership over capacity")
			}
		}
		return fmt.Errorf("%w: %s", ErrRoomFull, code)
	}

	switch {
	case renaming:
		m.Registry.Detach(c.GetID())
		if _, err := m.Storage.DeleteMembership(ctx, code, prev.Ciphertext); err != nil {
			log.WithError(err).Warn("failed to drop superseded membership")
		}
	case attached && (prev.Room != code || prev.Ciphertext != ciphertext):
		m.Registry.Detach(c.GetID())
		if err := m.Leave(ctx, prev); err != nil {
			log.WithError(err).WithField("previous_room", prev.Room).Warn("failed to leave previous room")
		}
	}

	snapshot := m.decryptMembers(ctx, code, members)

	m.Registry.Attach(c, Session{
		Token:      identity.Token,
		IsHost:     isHost,
		Room:       code,
		Language:   lang,
		Ciphertext: ciphertext,
		Identity:   identity,
	})

	if err := m.Storage.TouchRoom(ctx, code); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Reaped between lookup and attach.
			m.Registry.Detach(c.GetID())
			if created {
				if _, err := m.Storage.DeleteMembership(ctx, code, ciphertext); err != nil {
					log.WithError(err).Error("failed to remove membership of reaped room")
				}
			}
			return fmt.Errorf("%w: %s", ErrNotFound, code)
		}
		log.WithError(err).Warn("failed to touch room")
	}

	m.broadcastPresence(code, snapshot)
	log.WithField("host", isHost).Info("client joined room")
	return nil
}

// Leave removes the session's membership and tells the rest of the room.
// Deleting a row that is already gone is not an error.
func (m *ManagerService) Leave(ctx context.Context, sess Session) error {
	if m.Storage == nil {
		return ErrStorageUnavailable
	}
	log := m.log.WithField("room", sess.Room)

	if _, err := m.Storage.DeleteMembership(ctx, sess.Room, sess.Ciphertext); err != nil {
		return fmt.Errorf("%w: delete membership: %v", ErrDependency, err)
	}
	if err := m.Storage.TouchRoom(ctx, sess.Room); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.WithError(err).Warn("failed to touch room")
	}

	m.broadcast(sess.Room, models.OutboundEvent{
		Event: models.EventUserDisconnected,
		Data:  models.UserLeftEvent{UserToken: sess.Token},
	}, "")

	snapshot, err := m.Snapshot(ctx, sess.Room)
	if err != nil {
		return err
	}
	m.broadcastPresence(sess.Room, snapshot)
	log.Debug("member left room")
	return nil
}

func distinctMembers(members []models.Membership) int {
	seen := make(map[string]struct{}, len(members))
	for _, mem := range members {
		seen[mem.IdentityCiphertext] = struct{}{}
	}
	return len(seen)
}

func withoutCiphertext(members []models.Membership, ciphertext string) []models.Membership {
	out := members[:0:0]
	for _, mem := range members {
		if mem.IdentityCiphertext != ciphertext {
			out = append(out, mem)
		}
	}
	return out
}
