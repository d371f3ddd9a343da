package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainSealer struct{}

func (plainSealer) EncryptString(v string) ([]byte, error) { return []byte(v), nil }
func (plainSealer) DecryptString(v []byte) (string, error) { return string(v), nil }

type memoryStore struct {
	users    map[string]AuthUser
	branches map[string][]string
	sessions map[string]bool
	secrets  map[string][]byte
}

func newMemoryStore(t *testing.T) *memoryStore {
	t.Helper()
	hash, err := HashPassword("Passw0rd!")
	require.NoError(t, err)
	return &memoryStore{
		users: map[string]AuthUser{
			"manager@shop.test": {ID: "u1", Email: "manager@shop.test", DisplayName: "Mwila", RoleID: "r2", RoleName: RoleBranchManager, Password: hash},
		},
		branches: map[string][]string{"u1": {"b1"}},
		sessions: map[string]bool{},
		secrets:  map[string][]byte{},
	}
}

func (m *memoryStore) FindActiveUserByEmail(_ context.Context, email string) (AuthUser, error) {
	u, ok := m.users[email]
	if !ok {
		return AuthUser{}, pgx.ErrNoRows
	}
	if secret, ok := m.secrets[u.ID]; ok {
		u.MFASecretEn = secret
	}
	return u, nil
}

func (m *memoryStore) UserBranchIDs(_ context.Context, userID string) ([]string, error) {
	return m.branches[userID], nil
}

func (m *memoryStore) CreateSession(_ context.Context, userID, hash string, _ time.Time) error {
	m.sessions[userID+":"+hash] = true
	return nil
}

func (m *memoryStore) SessionValid(_ context.Context, userID, hash string) (bool, error) {
	return m.sessions[userID+":"+hash], nil
}

func (m *memoryStore) RevokeSession(_ context.Context, userID, hash string) error {
	delete(m.sessions, userID+":"+hash)
	return nil
}

func (m *memoryStore) UpdateLastLogin(context.Context, string) error { return nil }

func (m *memoryStore) UpdateMFASecret(_ context.Context, userID string, secret []byte) error {
	m.secrets[userID] = secret
	return nil
}

func (m *memoryStore) GetMFASecret(_ context.Context, userID string) ([]byte, error) {
	return m.secrets[userID], nil
}

func (m *memoryStore) SetMFAEnabled(_ context.Context, userID string, enabled bool) error {
	for email, u := range m.users {
		if u.ID == userID {
			u.MFAEnabled = enabled
			m.users[email] = u
		}
	}
	return nil
}

func TestLoginIssuesScopedToken(t *testing.T) {
	store := newMemoryStore(t)
	svc := NewService(store, plainSealer{}, "secret", time.Hour)
	ctx := context.Background()

	res, err := svc.Login(ctx, "manager@shop.test", "Passw0rd!", "")
	require.NoError(t, err)
	assert.Equal(t, RoleBranchManager, res.Session.Role)
	assert.Equal(t, []string{"b1"}, res.Session.BranchIDs)

	claims, err := ParseToken("secret", res.Token)
	require.NoError(t, err)
	require.NoError(t, svc.Validate(ctx, claims.Session()))

	require.NoError(t, svc.Logout(ctx, claims.Session()))
	assert.ErrorIs(t, svc.Validate(ctx, claims.Session()), ErrSessionExpired)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := NewService(newMemoryStore(t), plainSealer{}, "secret", time.Hour)
	_, err := svc.Login(context.Background(), "manager@shop.test", "wrong", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(context.Background(), "nobody@shop.test", "Passw0rd!", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMFAFlow(t *testing.T) {
	store := newMemoryStore(t)
	svc := NewService(store, plainSealer{}, "secret", time.Hour)
	ctx := context.Background()
	session := Session{UserID: "u1", Email: "manager@shop.test"}

	assert.ErrorIs(t, svc.EnableMFA(ctx, session, "000000"), ErrMFANotSetUp)

	setup, err := svc.SetupMFA(ctx, session)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.EnableMFA(ctx, session, code))

	_, err = svc.Login(ctx, "manager@shop.test", "Passw0rd!", "")
	assert.True(t, errors.Is(err, ErrMFARequired))

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	_, err = svc.Login(ctx, "manager@shop.test", "Passw0rd!", code)
	assert.NoError(t, err)
}
