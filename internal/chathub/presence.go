package chathub

import (
	"context"
	"fmt"

	"roomrelay/backend/internal/config"
	"roomrelay/backend/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Snapshot returns the decrypted member list of room. Members whose
// identity cannot be decrypted are left out.
func (m *ManagerService) Snapshot(ctx context.Context, room string) ([]models.PresenceEntry, error) {
	if m.Storage == nil {
		return nil, ErrStorageUnavailable
	}
	members, err := m.Storage.ListMemberships(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: list members: %v", ErrDependency, err)
	}
	return m.decryptMembers(ctx, room, members), nil
}

func (m *ManagerService) decryptMembers(ctx context.Context, room string, members []models.Membership) []models.PresenceEntry {
	decrypted := make([]*models.PresenceEntry, len(members))

	var g errgroup.Group
	g.SetLimit(config.DecryptConcurrency)
	for i, mem := range members {
		g.Go(func() error {
			rec, err := m.Cipher.DecryptIdentity(ctx, mem.IdentityCiphertext)
			if err != nil {
				m.log.WithError(err).WithFields(logrus.Fields{"room": room, "membership": mem.ID}).
					Warn("dropping member from presence")
				return nil
			}
			decrypted[i] = &models.PresenceEntry{UserData: rec, Host: mem.IsHost}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.PresenceEntry, 0, len(members))
	for _, e := range decrypted {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out
}

func (m *ManagerService) broadcastPresence(room string, snapshot []models.PresenceEntry) {
	m.broadcast(room, models.OutboundEvent{Event: models.EventUsersUpdate, Data: snapshot}, "")
}
