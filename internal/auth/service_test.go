package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtat/tomtat/infrastructure/storage/memory"
	"github.com/tomtat/tomtat/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Secret = "access-secret"
	cfg.RefreshSecret = "refresh-secret"
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

func newTestService(t *testing.T) (*Service, *memory.UserStore, *fakeClock) {
	t.Helper()
	store := memory.NewUserStore()
	clock := &fakeClock{t: time.Now()}
	svc, err := NewService(store, testConfig(), WithClock(clock.now))
	require.NoError(t, err)
	return svc, store, clock
}

func TestNewServiceConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.Secret = "" }, wantErr: true},
		{name: "refresh not longer than access", mutate: func(c *Config) { c.RefreshTTL = c.AccessTTL }, wantErr: true},
		{name: "access ttl too short", mutate: func(c *Config) { c.AccessTTL = time.Second }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewService(memory.NewUserStore(), cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	_, err := NewService(nil, testConfig())
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	u, err := svc.Register(ctx, RegisterInput{Email: " An@Example.com ", Password: "matkhau", FullName: "Nguyễn An"})
	require.NoError(t, err)
	assert.Equal(t, "an@example.com", u.Email)
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "matkhau", u.PasswordHash)

	_, err = svc.Register(ctx, RegisterInput{Email: "an@example.com", Password: "khac123"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{name: "short password", in: RegisterInput{Email: "b@example.com", Password: "12345"}},
		{name: "bad email", in: RegisterInput{Email: "not-an-email", Password: "123456"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.in)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, verr.HasErrors())
		})
	}
}

func TestLoginAndTokens(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)
	registered, err := svc.Register(ctx, RegisterInput{Email: "an@example.com", Password: "matkhau"})
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "an@example.com", "sai")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})
	t.Run("unknown email", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "ai@example.com", "matkhau")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	pair, u, err := svc.Login(ctx, "AN@example.com", "matkhau")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	sub, err := svc.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sub)

	me, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "an@example.com", me.Email)

	t.Run("refresh token is not an access token", func(t *testing.T) {
		_, err := svc.ParseAccessToken(pair.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("access token cannot refresh", func(t *testing.T) {
		_, err := svc.Refresh(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("tampered token", func(t *testing.T) {
		_, err := svc.ParseAccessToken(pair.AccessToken + "x")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("foreign secret", func(t *testing.T) {
		cfg := testConfig()
		cfg.Secret = "other"
		other, err := NewService(memory.NewUserStore(), cfg)
		require.NoError(t, err)
		_, err = other.ParseAccessToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	clock.t = clock.t.Add(2 * time.Hour)
	_, err = svc.ParseAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "access token expires after 60 minutes")

	fresh, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	sub, err = svc.ParseAccessToken(fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sub)

	clock.t = clock.t.Add(8 * 24 * time.Hour)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh token expires after 7 days")
}

func TestAuthenticateDeletedUser(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	u, err := svc.Register(ctx, RegisterInput{Email: "an@example.com", Password: "matkhau"})
	require.NoError(t, err)
	pair, _, err := svc.Login(ctx, "an@example.com", "matkhau")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, u.ID))
	_, err = svc.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, svc.DeleteUser(ctx, u.ID), domain.ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	u, err := svc.Register(ctx, RegisterInput{Email: "an@example.com", Password: "matkhau"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, u.ID, "sai", "moi1234"), domain.ErrInvalidCredentials)

	var verr *domain.ValidationError
	assert.ErrorAs(t, svc.ChangePassword(ctx, u.ID, "matkhau", "123"), &verr)

	require.NoError(t, svc.ChangePassword(ctx, u.ID, "matkhau", "moi1234"))
	_, _, err = svc.Login(ctx, "an@example.com", "moi1234")
	assert.NoError(t, err)
	_, _, err = svc.Login(ctx, "an@example.com", "matkhau")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestSeedDefaults(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	require.NoError(t, svc.SeedDefaults(ctx))
	require.NoError(t, svc.SeedDefaults(ctx), "seeding twice is a no-op")

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	admin, err := store.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())

	_, _, err = svc.Login(ctx, "test@example.com", "secret123")
	assert.NoError(t, err)
}

type failingUsers struct{ *memory.UserStore }

func (failingUsers) GetByEmail(context.Context, string) (domain.User, error) {
	return domain.User{}, errors.New("connection reset")
}

func TestStoreFailuresPropagate(t *testing.T) {
	svc, err := NewService(failingUsers{memory.NewUserStore()}, testConfig())
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "an@example.com", "matkhau")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.True(t, strings.Contains(err.Error(), "connection reset"))

	assert.Error(t, svc.SeedDefaults(context.Background()))
}
