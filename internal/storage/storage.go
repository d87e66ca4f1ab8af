package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"roomrelay/backend/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a room does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert hits a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// PostgreSQL SQLSTATE codes.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Storage is the persistence boundary used by the chat hub and the reaper.
type Storage interface {
	GetRoom(ctx context.Context, code string) (*models.Room, error)
	CreateRoom(ctx context.Context, room *models.Room) error
	TouchRoom(ctx context.Context, code string) error
	ListRooms(ctx context.Context) ([]models.Room, error)
	ListStaleRooms(ctx context.Context, before time.Time) ([]models.Room, error)
	DeleteRoomCascade(ctx context.Context, code string) error
	DeleteIdleRoom(ctx context.Context, code string, idleBefore time.Time) (bool, error)

	FindMembership(ctx context.Context, code, ciphertext string) (*models.Membership, error)
	CreateMembership(ctx context.Context, m *models.Membership) error
	ListMemberships(ctx context.Context, code string) ([]models.Membership, error)
	CountMemberships(ctx context.Context, code string) (int64, error)
	DeleteMembership(ctx context.Context, code, ciphertext string) (int64, error)
	FindMembershipByFingerprint(ctx context.Context, code, fingerprint string) (*models.Membership, error)

	SaveMessage(ctx context.Context, msg *models.Message) error

	AllowEvent(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Service implements Storage on PostgreSQL (gorm) and Redis.
// Redis is optional; without it every event is allowed.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// NormalizeCode lowercases and trims a room code.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// GetRoom looks a room up by its case-insensitive code.
func (s *Service) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := s.DB.WithContext(ctx).Where("code = ?", NormalizeCode(code)).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		logrus.WithError(err).WithField("room", code).Error("storage: failed to get room")
		return nil, err
	}
	return &room, nil
}

// CreateRoom inserts a room; used by operator tooling only.
func (s *Service) CreateRoom(ctx context.Context, room *models.Room) error {
	room.Code = NormalizeCode(room.Code)
	if err := s.DB.WithContext(ctx).Create(room).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// TouchRoom refreshes the room's activity timestamp.
func (s *Service) TouchRoom(ctx context.Context, code string) error {
	res := s.DB.WithContext(ctx).Model(&models.Room{}).
		Where("code = ?", NormalizeCode(code)).
		Update("updated_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ListRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := s.DB.WithContext(ctx).Order("updated_at asc").Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

// ListStaleRooms returns every room whose last activity is at or before the cutoff.
func (s *Service) ListStaleRooms(ctx context.Context, before time.Time) ([]models.Room, error) {
	var rooms []models.Room
	if err := s.DB.WithContext(ctx).Where("updated_at <= ?", before).Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

// DeleteRoomCascade removes a room with its messages and memberships in a
// single transaction. Either all three go or none does.
func (s *Service) DeleteRoomCascade(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("code = ?", code).Delete(&models.Membership{}).Error; err != nil {
			return err
		}
		res := tx.Where("code = ?", code).Delete(&models.Room{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteIdleRoom removes the room only if it has no memberships and has been
// quiet since idleBefore. Both conditions are checked by the delete itself, so
// a join that lands after the caller looked cannot lose its room.
func (s *Service) DeleteIdleRoom(ctx context.Context, code string, idleBefore time.Time) (bool, error) {
	code = NormalizeCode(code)
	deleted := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("code = ? AND updated_at < ?", code, idleBefore).
			Where("NOT EXISTS (?)", tx.Model(&models.Membership{}).Select("1").Where("code = ?", code)).
			Delete(&models.Room{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Where("code = ?", code).Delete(&models.Message{}).Error
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// FindMembership returns nil, nil when the identity is not a member.
func (s *Service) FindMembership(ctx context.Context, code, ciphertext string) (*models.Membership, error) {
	var m models.Membership
	err := s.DB.WithContext(ctx).
		Where("code = ? AND identity_ciphertext = ?", NormalizeCode(code), ciphertext).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMembership inserts a membership row. A unique-constraint hit is
// reported as ErrDuplicate so callers can treat a concurrent join as success.
// ErrNotFound means the room was deleted underneath the insert.
func (s *Service) CreateMembership(ctx context.Context, m *models.Membership) error {
	m.Code = NormalizeCode(m.Code)
	if err := s.DB.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		logrus.WithError(err).WithField("room", m.Code).Error("storage: failed to create membership")
		return err
	}
	return nil
}

func (s *Service) ListMemberships(ctx context.Context, code string) ([]models.Membership, error) {
	var members []models.Membership
	if err := s.DB.WithContext(ctx).
		Where("code = ?", NormalizeCode(code)).
		Order("created_at asc").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Service) CountMemberships(ctx context.Context, code string) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Membership{}).
		Where("code = ?", NormalizeCode(code)).
		Count(&n).Error
	return n, err
}

// DeleteMembership removes the identity's row. Zero rows affected is not an error.
func (s *Service) DeleteMembership(ctx context.Context, code, ciphertext string) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("code = ? AND identity_ciphertext = ?", NormalizeCode(code), ciphertext).
		Delete(&models.Membership{})
	return res.RowsAffected, res.Error
}

// FindMembershipByFingerprint returns the oldest membership whose token
// fingerprint matches, or nil, nil. Rows written without a fingerprint never match.
func (s *Service) FindMembershipByFingerprint(ctx context.Context, code, fingerprint string) (*models.Membership, error) {
	if fingerprint == "" {
		return nil, nil
	}
	var m models.Membership
	err := s.DB.WithContext(ctx).
		Where("code = ? AND token_fingerprint = ?", NormalizeCode(code), fingerprint).
		Order("created_at asc").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveMessage persists a text message. ErrNotFound means the room is gone.
func (s *Service) SaveMessage(ctx context.Context, msg *models.Message) error {
	msg.Code = NormalizeCode(msg.Code)
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		logrus.WithError(err).WithField("room", msg.Code).Error("storage: failed to save message")
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
