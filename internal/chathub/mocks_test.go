package chathub_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"roomrelay/backend/internal/models"
	"roomrelay/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify mock of storage.Storage for failure injection.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}

func (m *MockStorage) CreateRoom(ctx context.Context, room *models.Room) error {
	return m.Called(ctx, room).Error(0)
}

func (m *MockStorage) TouchRoom(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

func (m *MockStorage) ListRooms(ctx context.Context) ([]models.Room, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Room), args.Error(1)
}

func (m *MockStorage) ListStaleRooms(ctx context.Context, before time.Time) ([]models.Room, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Room), args.Error(1)
}

func (m *MockStorage) DeleteRoomCascade(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

func (m *MockStorage) DeleteIdleRoom(ctx context.Context, code string, idleBefore time.Time) (bool, error) {
	args := m.Called(ctx, code, idleBefore)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) FindMembership(ctx context.Context, code, ciphertext string) (*models.Membership, error) {
	args := m.Called(ctx, code, ciphertext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Membership), args.Error(1)
}

func (m *MockStorage) CreateMembership(ctx context.Context, mem *models.Membership) error {
	return m.Called(ctx, mem).Error(0)
}

func (m *MockStorage) ListMemberships(ctx context.Context, code string) ([]models.Membership, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Membership), args.Error(1)
}

func (m *MockStorage) CountMemberships(ctx context.Context, code string) (int64, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) DeleteMembership(ctx context.Context, code, ciphertext string) (int64, error) {
	args := m.Called(ctx, code, ciphertext)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) FindMembershipByFingerprint(ctx context.Context, code, fingerprint string) (*models.Membership, error) {
	args := m.Called(ctx, code, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Membership), args.Error(1)
}

func (m *MockStorage) SaveMessage(ctx context.Context, msg *models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockStorage) AllowEvent(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

// memStorage is an in-memory storage.Storage honouring the
// (code, identity_ciphertext) unique constraint and the room foreign keys.
type memStorage struct {
	mu          sync.Mutex
	rooms       map[string]*models.Room
	memberships []models.Membership
	messages    []models.Message
	nextID      uint

	saveErr  error
	allowErr error
	allowed  map[string]int
}

func newMemStorage() *memStorage {
	return &memStorage{rooms: make(map[string]*models.Room), allowed: make(map[string]int)}
}

func (s *memStorage) seedRoom(code, host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.rooms[storage.NormalizeCode(code)] = &models.Room{Code: storage.NormalizeCode(code), HostToken: host, CreatedAt: now, UpdatedAt: now}
}

func (s *memStorage) membershipCount(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.memberships {
		if m.Code == code {
			n++
		}
	}
	return n
}

func (s *memStorage) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *memStorage) GetRoom(_ context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[storage.NormalizeCode(code)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStorage) CreateRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return storage.ErrDuplicate
	}
	s.rooms[room.Code] = room
	return nil
}

func (s *memStorage) TouchRoom(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok {
		return storage.ErrNotFound
	}
	r.UpdatedAt = time.Now()
	return nil
}

func (s *memStorage) ListRooms(context.Context) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *memStorage) ListStaleRooms(_ context.Context, before time.Time) ([]models.Room, error) {
	rooms, _ := s.ListRooms(context.Background())
	out := rooms[:0]
	for _, r := range rooms {
		if r.UpdatedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStorage) DeleteRoomCascade(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return storage.ErrNotFound
	}
	s.dropRoomLocked(code)
	return nil
}

func (s *memStorage) DeleteIdleRoom(_ context.Context, code string, idleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok || !r.UpdatedAt.Before(idleBefore) {
		return false, nil
	}
	for _, m := range s.memberships {
		if m.Code == code {
			return false, nil
		}
	}
	s.dropRoomLocked(code)
	return true, nil
}

func (s *memStorage) dropRoomLocked(code string) {
	delete(s.rooms, code)
	members := s.memberships[:0]
	for _, m := range s.memberships {
		if m.Code != code {
			members = append(members, m)
		}
	}
	s.memberships = members
	msgs := s.messages[:0]
	for _, m := range s.messages {
		if m.Code != code {
			msgs = append(msgs, m)
		}
	}
	s.messages = msgs
}

func (s *memStorage) FindMembership(_ context.Context, code, ciphertext string) (*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.Code == code && m.IdentityCiphertext == ciphertext {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStorage) CreateMembership(_ context.Context, mem *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[mem.Code]; !ok {
		return storage.ErrNotFound
	}
	for _, m := range s.memberships {
		if m.Code == mem.Code && m.IdentityCiphertext == mem.IdentityCiphertext {
			return storage.ErrDuplicate
		}
	}
	s.nextID++
	mem.ID = s.nextID
	s.memberships = append(s.memberships, *mem)
	return nil
}

func (s *memStorage) ListMemberships(_ context.Context, code string) ([]models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Membership
	for _, m := range s.memberships {
		if m.Code == code {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStorage) CountMemberships(ctx context.Context, code string) (int64, error) {
	list, _ := s.ListMemberships(ctx, code)
	return int64(len(list)), nil
}

func (s *memStorage) DeleteMembership(_ context.Context, code, ciphertext string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.memberships[:0]
	var n int64
	for _, m := range s.memberships {
		if m.Code == code && m.IdentityCiphertext == ciphertext {
			n++
			continue
		}
		kept = append(kept, m)
	}
	s.memberships = kept
	return n, nil
}

func (s *memStorage) FindMembershipByFingerprint(_ context.Context, code, fingerprint string) (*models.Membership, error) {
	if fingerprint == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.Code == code && m.TokenFingerprint == fingerprint {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStorage) SaveMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if _, ok := s.rooms[msg.Code]; !ok {
		return storage.ErrNotFound
	}
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *memStorage) AllowEvent(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allowErr != nil {
		return false, s.allowErr
	}
	s.allowed[key]++
	return s.allowed[key] <= limit, nil
}

var errCipherDown = errors.New("cipher down")

// fakeCipher is deterministic: equal plaintexts give equal ciphertexts.
type fakeCipher struct {
	mu           sync.Mutex
	fail         bool
	failDecrypt  map[string]bool
	fingerprints bool
	decrypts     int
}

func newFakeCipher() *fakeCipher {
	return &fakeCipher{failDecrypt: make(map[string]bool), fingerprints: true}
}

func (f *fakeCipher) Encrypt(_ context.Context, plaintext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errCipherDown
	}
	return "enc:" + plaintext, nil
}

func (f *fakeCipher) EncryptIdentity(_ context.Context, rec models.IdentityRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errCipherDown
	}
	raw, _ := json.Marshal(rec)
	return "id:" + string(raw), nil
}

func (f *fakeCipher) DecryptIdentity(_ context.Context, ciphertext string) (models.IdentityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decrypts++
	if f.fail || f.failDecrypt[ciphertext] {
		return models.IdentityRecord{}, errCipherDown
	}
	var rec models.IdentityRecord
	err := json.Unmarshal([]byte(strings.TrimPrefix(ciphertext, "id:")), &rec)
	return rec, err
}

func (f *fakeCipher) Fingerprint(token string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.fingerprints {
		return ""
	}
	return "fp:" + token
}

func (f *fakeCipher) ciphertextOf(rec models.IdentityRecord) string {
	c, _ := f.EncryptIdentity(context.Background(), rec)
	return c
}

// MockClient records every event queued for it.
type MockClient struct {
	id string

	mu     sync.Mutex
	events []models.OutboundEvent
	closed bool
	full   bool
}

func newMockClient(id string) *MockClient {
	return &MockClient{id: id}
}

func (c *MockClient) GetID() string { return c.id }

func (c *MockClient) Send(evt models.OutboundEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.events = append(c.events, evt)
	return true
}

func (c *MockClient) Run() {}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events returns the recorded events named name.
func (c *MockClient) Events(name string) []models.OutboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.OutboundEvent
	for _, e := range c.events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent event named name.
func (c *MockClient) Last(name string) (models.OutboundEvent, bool) {
	evts := c.Events(name)
	if len(evts) == 0 {
		return models.OutboundEvent{}, false
	}
	return evts[len(evts)-1], true
}

func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
