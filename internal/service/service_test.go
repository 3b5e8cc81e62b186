package service

import (
	"context"
	"errors"
	"testing"

	"chatapp/internal/dbtest"
	"chatapp/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type services struct {
	db    *gorm.DB
	users *UserService
	chats *ChatService
	msgs  *MessageService
}

func newServices(t *testing.T) *services {
	t.Helper()
	gdb := dbtest.New(t)
	chats := NewChatService(gdb)
	return &services{
		db:    gdb,
		users: NewUserService(gdb),
		chats: chats,
		msgs:  NewMessageService(gdb, chats),
	}
}

// seedUsers inserts users directly, skipping bcrypt.
func (s *services) seedUsers(t *testing.T, names ...string) []models.User {
	t.Helper()
	users := make([]models.User, len(names))
	for i, n := range names {
		users[i] = models.User{Name: n, Email: n + "@example.com", PasswordHash: "x"}
		require.NoError(t, s.db.Create(&users[i]).Error)
	}
	return users
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{ErrEmailTaken, ErrConflict},
		{ErrChatExists, ErrConflict},
		{ErrInvalidCredentials, ErrUnauthorized},
		{ErrNotOwner, ErrForbidden},
		{ErrUserNotFound, ErrNotFound},
		{ErrChatNotFound, ErrNotFound},
		{ErrPeerRequired, ErrValidation},
		{ErrSelfChat, ErrValidation},
		{ErrChatRequired, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.True(t, errors.Is(tt.err, tt.kind))
			var svcErr *Error
			require.True(t, errors.As(tt.err, &svcErr))
		})
	}
}

func TestValidateStruct(t *testing.T) {
	err := validateStruct(AppendInput{SenderID: 1, ChatID: 1, Type: "text"})
	require.ErrorIs(t, err, ErrValidation)
	require.EqualError(t, err, "content is required")

	err = validateStruct(AppendInput{SenderID: 1, ChatID: 1, Content: "x", Type: "gif"})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "type must be one of")

	require.NoError(t, validateStruct(AppendInput{SenderID: 1, ChatID: 1, Content: "x", Type: "text"}))
}

func TestContextIsHonoured(t *testing.T) {
	s := newServices(t)
	u := s.seedUsers(t, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := s.chats.GetOrCreate(ctx, u[0].ID, u[1].ID)
	require.Error(t, err)
}
