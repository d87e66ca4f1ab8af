package chathub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"roomrelay/backend/internal/chathub"
	"roomrelay/backend/internal/localization"
	"roomrelay/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHub(t *testing.T) (*chathub.ManagerService, *memStorage, *fakeCipher) {
	t.Helper()
	store := newMemStorage()
	cph := newFakeCipher()
	hub := chathub.NewManagerService(store, cph, nil)
	return hub, store, cph
}

func ident(token, name string) models.IdentityRecord {
	return models.IdentityRecord{Token: token, DisplayName: name, Color: "blue"}
}

func rawIdentity(t *testing.T, rec models.IdentityRecord) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	return raw
}

func join(t *testing.T, hub *chathub.ManagerService, c chathub.Client, room string, rec models.IdentityRecord) error {
	t.Helper()
	return hub.Join(context.Background(), c, models.JoinRoomRequest{Room: room, UserData: rawIdentity(t, rec)})
}

func envelope(t *testing.T, event string, v any) models.Envelope {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return models.Envelope{Event: event, Data: raw}
}

func TestManager_RunRegistersAndUnregisters(t *testing.T) {
	hub, store, _ := newHub(t)
	store.seedRoom("abcd", "host")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := newMockClient("a")
	b := newMockClient("b")
	require.True(t, hub.Register(a))
	require.True(t, hub.Register(b))
	assert.Eventually(t, func() bool { return hub.Registry.Len() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, join(t, hub, a, "abcd", ident("host", "Ana")))
	require.NoError(t, join(t, hub, b, "abcd", ident("tok-b", "Bia")))
	require.Equal(t, 2, store.membershipCount("abcd"))

	hub.Unregister(b)
	assert.Eventually(t, func() bool { return store.membershipCount("abcd") == 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, b.IsClosed())
	assert.Eventually(t, func() bool {
		evt, ok := a.Last(models.EventUserDisconnected)
		return ok && evt.Data.(models.UserLeftEvent).UserToken == "tok-b"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.Registry.Len())
}

func TestManager_ShutdownClosesClientsAndForgetsPrivacy(t *testing.T) {
	hub, _, _ := newHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	a := newMockClient("a")
	require.True(t, hub.Register(a))
	hub.Private.Add("abcd")

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	assert.True(t, a.IsClosed())
	assert.Equal(t, 0, hub.Private.Len())
	assert.False(t, hub.Register(newMockClient("late")))
}

func TestHandleMessage_MalformedFrame(t *testing.T) {
	hub, _, _ := newHub(t)
	c := newMockClient("a")

	hub.HandleMessage(context.Background(), c, []byte("{not json"))

	evt, ok := c.Last(models.EventError)
	require.True(t, ok)
	assert.Equal(t, "invalidEvent", evt.Data)
}

func TestHandleEvent_UnknownEvent(t *testing.T) {
	hub, _, _ := newHub(t)
	c := newMockClient("a")

	hub.HandleEvent(context.Background(), c, models.Envelope{Event: "room-update"})

	evt, ok := c.Last(models.EventError)
	require.True(t, ok)
	assert.Equal(t, "invalidEvent", evt.Data)
}

func TestHandleEvent_JoinErrorsAreLocalized(t *testing.T) {
	loc, err := localization.NewDefaultLocalizer("pt-BR")
	require.NoError(t, err)
	hub := chathub.NewManagerService(newMemStorage(), newFakeCipher(), loc)
	c := newMockClient("a")

	hub.HandleEvent(context.Background(), c, envelope(t, models.EventJoinRoom, map[string]any{
		"room":     "nope",
		"userData": ident("tok", "Ana"),
		"language": "en-US",
	}))

	evt, ok := c.Last(models.EventError)
	require.True(t, ok)
	assert.Equal(t, "Room not found.", evt.Data)
}

func TestHandleEvent_StorageUnavailable(t *testing.T) {
	hub := chathub.NewManagerService(nil, newFakeCipher(), nil)
	c := newMockClient("a")

	hub.HandleEvent(context.Background(), c, envelope(t, models.EventJoinRoom, map[string]any{
		"room":     "abcd",
		"userData": ident("tok", "Ana"),
	}))

	evt, ok := c.Last(models.EventError)
	require.True(t, ok)
	assert.Equal(t, "databaseUnavailable", evt.Data)
}

func TestHandleEvent_PanicIsRecovered(t *testing.T) {
	store := newMemStorage()
	store.seedRoom("abcd", "host")
	hub := chathub.NewManagerService(store, nil, nil)
	c := newMockClient("a")

	assert.NotPanics(t, func() {
		hub.HandleEvent(context.Background(), c, envelope(t, models.EventJoinRoom, map[string]any{
			"room":     "abcd",
			"userData": ident("tok", "Ana"),
		}))
	})
}

func TestHandleEvent_UserDataAsString(t *testing.T) {
	hub, store, _ := newHub(t)
	store.seedRoom("abcd", "host")
	c := newMockClient("a")
	encoded, err := json.Marshal(ident("tok", "Ana"))
	require.NoError(t, err)

	hub.HandleEvent(context.Background(), c, envelope(t, models.EventJoinRoom, map[string]any{
		"room":     "abcd",
		"userData": string(encoded),
	}))

	_, ok := c.Last(models.EventUsersUpdate)
	assert.True(t, ok)
	assert.Equal(t, 1, store.membershipCount("abcd"))
}

func TestHandleEvent_ModerationFailuresAreSilent(t *testing.T) {
	hub, _, _ := newHub(t)
	c := newMockClient("a")

	hub.HandleEvent(context.Background(), c, envelope(t, models.EventKickUser, models.KickRequest{Room: "abcd"}))
	hub.HandleEvent(context.Background(), c, envelope(t, models.EventPrivacy, models.PrivacyRequest{Room: "abcd", Private: true}))

	assert.Empty(t, c.Events(models.EventError))
	assert.False(t, hub.Private.Contains("abcd"))
}

func TestBroadcast_ClosesSlowClient(t *testing.T) {
	hub, store, _ := newHub(t)
	store.seedRoom("abcd", "host")
	a := newMockClient("a")
	b := newMockClient("b")
	require.NoError(t, join(t, hub, a, "abcd", ident("host", "Ana")))
	require.NoError(t, join(t, hub, b, "abcd", ident("tok-b", "Bia")))

	b.mu.Lock()
	b.full = true
	b.mu.Unlock()
	hub.Typing(a, models.TypingRequest{Room: "abcd", Typing: true})

	assert.True(t, b.IsClosed())
}
