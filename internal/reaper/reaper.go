package reaper

import (
	"context"
	"errors"
	"time"

	"roomrelay/backend/internal/config"
	"roomrelay/backend/internal/storage"

	"github.com/sirupsen/logrus"
)

// Reaper periodically deletes rooms that are empty and idle, and any room
// whose last activity is older than the stale ceiling.
type Reaper struct {
	Storage storage.Storage
	Config  config.ReaperConfig

	now func() time.Time
	log *logrus.Entry
}

func New(s storage.Storage, cfg config.ReaperConfig) *Reaper {
	return &Reaper{
		Storage: s,
		Config:  cfg,
		now:     time.Now,
		log:     logrus.WithField("component", "reaper"),
	}
}

// Result summarizes one sweep.
type Result struct {
	Checked int
	Idle    []string
	Stale   []string
	Failed  int
}

func (r Result) Deleted() int { return len(r.Idle) + len(r.Stale) }

// Run sweeps every Config.Interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Config.Interval)
	defer ticker.Stop()
	r.log.WithField("interval", r.Config.Interval).Info("reaper started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return
		case <-ticker.C:
			res, err := r.Sweep(ctx)
			if err != nil {
				r.log.WithError(err).Error("sweep failed")
				continue
			}
			if res.Deleted() > 0 || res.Failed > 0 {
				r.log.WithFields(logrus.Fields{
					"checked": res.Checked,
					"idle":    len(res.Idle),
					"stale":   len(res.Stale),
					"failed":  res.Failed,
				}).Info("sweep finished")
			}
		}
	}
}

// Sweep runs one pass. A failure on one room is logged and does not stop
// the pass.
func (r *Reaper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	now := r.now()

	stale, err := r.Storage.ListStaleRooms(ctx, now.Add(-r.Config.StaleThreshold))
	if err != nil {
		return res, err
	}
	gone := make(map[string]bool, len(stale))
	for _, room := range stale {
		if r.delete(ctx, room.Code, "stale", &res) {
			res.Stale = append(res.Stale, room.Code)
		}
		gone[room.Code] = true
	}

	rooms, err := r.Storage.ListRooms(ctx)
	if err != nil {
		return res, err
	}
	res.Checked = len(rooms)
	idleBefore := now.Add(-r.Config.EmptyThreshold)
	for _, room := range rooms {
		if gone[room.Code] || !room.UpdatedAt.Before(idleBefore) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		// Emptiness and idleness are re-checked by the delete itself; a
		// join that lands after ListRooms keeps the room.
		deleted, err := r.Storage.DeleteIdleRoom(ctx, room.Code, idleBefore)
		if err != nil {
			r.log.WithError(err).WithField("room", room.Code).Error("delete idle room failed")
			res.Failed++
			continue
		}
		if deleted {
			r.log.WithFields(logrus.Fields{"room": room.Code, "reason": "idle"}).Info("room deleted")
			res.Idle = append(res.Idle, room.Code)
		}
	}
	return res, nil
}

func (r *Reaper) delete(ctx context.Context, code, reason string, res *Result) bool {
	err := r.Storage.DeleteRoomCascade(ctx, code)
	switch {
	case err == nil:
		r.log.WithFields(logrus.Fields{"room": code, "reason": reason}).Info("room deleted")
		return true
	case errors.Is(err, storage.ErrNotFound):
		// Deleted elsewhere since it was listed.
		return false
	default:
		r.log.WithError(err).WithField("room", code).Error("delete room failed")
		res.Failed++
		return false
	}
}
