package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatapp/internal/dbtest"
	"chatapp/internal/models"
	"chatapp/internal/service"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	hub    *Hub
	chats  *service.ChatService
	chat   *models.Chat
	u1, u2 models.User
	u3     models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.New(t)
	f := &fixture{
		hub:   startHub(t),
		chats: service.NewChatService(gdb),
		u1:    models.User{Name: "A", Email: "a@example.com", PasswordHash: "x"},
		u2:    models.User{Name: "B", Email: "b@example.com", PasswordHash: "x"},
		u3:    models.User{Name: "C", Email: "c@example.com", PasswordHash: "x"},
	}
	for _, u := range []*models.User{&f.u1, &f.u2, &f.u3} {
		require.NoError(t, gdb.Create(u).Error)
	}
	chat, _, err := f.chats.GetOrCreate(context.Background(), f.u1.ID, f.u2.ID)
	require.NoError(t, err)
	f.chat = chat
	return f
}

func (f *fixture) session(userID uint) *Client {
	c := newTestClient(f.hub, userID, 16)
	c.chats = f.chats
	return c
}

func envelope(t *testing.T, event string, data any) Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return Envelope{Event: event, Data: raw}
}

func decode(t *testing.T, b []byte, data any) string {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(b, &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env.Event
}

func TestClient_SetupSubscribesInbox(t *testing.T) {
	f := newFixture(t)
	c := f.session(f.u1.ID)

	c.handle(context.Background(), envelope(t, EventSetup, SetupPayload{UserID: f.u1.ID}))

	var p SetupPayload
	require.Equal(t, EventConnected, decode(t, recv(t, c), &p))
	require.Equal(t, f.u1.ID, p.UserID)
	require.Equal(t, 1, f.hub.Online(UserRoom(f.u1.ID)))
}

func TestClient_SetupRejectsForeignUser(t *testing.T) {
	f := newFixture(t)
	c := f.session(f.u1.ID)

	c.handle(context.Background(), envelope(t, EventSetup, SetupPayload{UserID: f.u2.ID}))

	var p ErrorPayload
	require.Equal(t, EventError, decode(t, recv(t, c), &p))
	require.Equal(t, 0, f.hub.Online(UserRoom(f.u2.ID)))
}

func TestClient_JoinRequiresMembership(t *testing.T) {
	f := newFixture(t)
	outsider := f.session(f.u3.ID)

	outsider.handle(context.Background(), envelope(t, EventJoinChat, JoinPayload{ChatID: f.chat.ID}))

	var p ErrorPayload
	require.Equal(t, EventError, decode(t, recv(t, outsider), &p))
	require.Equal(t, "Chat not found", p.Message)
	require.Equal(t, 0, f.hub.Online(ChatRoom(f.chat.ID)))
}

func TestClient_SendRequiresJoin(t *testing.T) {
	f := newFixture(t)
	c := f.session(f.u1.ID)

	c.handle(context.Background(), envelope(t, EventSendMessage, SendPayload{ChatID: f.chat.ID, Content: "hi"}))

	require.Equal(t, EventError, decode(t, recv(t, c), nil))
}

func TestClient_RelayReachesAllSessionsIncludingSender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.session(f.u1.ID)
	aSecond := f.session(f.u1.ID)
	b := f.session(f.u2.ID)
	for _, c := range []*Client{a, aSecond, b} {
		c.handle(ctx, envelope(t, EventJoinChat, JoinPayload{ChatID: f.chat.ID}))
		require.Equal(t, EventJoined, decode(t, recv(t, c), nil))
	}

	a.handle(ctx, envelope(t, EventSendMessage, SendPayload{ChatID: f.chat.ID, Content: "hi"}))

	want := RelayPayload{ChatID: f.chat.ID, SenderID: f.u1.ID, Content: "hi"}
	for _, c := range []*Client{a, aSecond, b} {
		var got RelayPayload
		require.Equal(t, EventMessageReceived, decode(t, recv(t, c), &got))
		require.Equal(t, want, got)
	}
}

func TestClient_UnknownEvent(t *testing.T) {
	f := newFixture(t)
	c := f.session(f.u1.ID)

	c.handle(context.Background(), Envelope{Event: "typing"})

	var p ErrorPayload
	require.Equal(t, EventError, decode(t, recv(t, c), &p))
	require.Equal(t, "unknown event", p.Message)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker("http://localhost:5173/")
	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin", "", true},
		{"frontend", "http://localhost:5173", true},
		{"same host", "http://example.com", true},
		{"foreign", "http://evil.test", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.want, check(r))
		})
	}
}
