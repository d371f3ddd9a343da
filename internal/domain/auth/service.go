package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pquerna/otp/totp"
)

// Sealer protects MFA secrets at rest.
type Sealer interface {
	EncryptString(value string) ([]byte, error)
	DecryptString(value []byte) (string, error)
}

type userStore interface {
	FindActiveUserByEmail(ctx context.Context, email string) (AuthUser, error)
	UserBranchIDs(ctx context.Context, userID string) ([]string, error)
	CreateSession(ctx context.Context, userID, sessionHash string, expires time.Time) error
	SessionValid(ctx context.Context, userID, sessionHash string) (bool, error)
	RevokeSession(ctx context.Context, userID, sessionHash string) error
	UpdateLastLogin(ctx context.Context, userID string) error
	UpdateMFASecret(ctx context.Context, userID string, secretEnc []byte) error
	GetMFASecret(ctx context.Context, userID string) ([]byte, error)
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error
}

type Service struct {
	store    userStore
	sealer   Sealer
	secret   string
	tokenTTL time.Duration
	issuer   string
}

func NewService(store userStore, sealer Sealer, secret string, tokenTTL time.Duration) *Service {
	return &Service{store: store, sealer: sealer, secret: secret, tokenTTL: tokenTTL, issuer: "branchpay"}
}

type LoginResult struct {
	Token       string
	DisplayName string
	Session     Session
}

func (s *Service) Login(ctx context.Context, email, password, mfaCode string) (LoginResult, error) {
	user, err := s.store.FindActiveUserByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("find user: %w", err)
	}
	if err := CheckPassword(user.Password, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		if mfaCode == "" {
			return LoginResult{}, ErrMFARequired
		}
		secret, err := s.sealer.DecryptString(user.MFASecretEn)
		if err != nil || secret == "" || !totp.Validate(mfaCode, secret) {
			return LoginResult{}, ErrMFAInvalid
		}
	}

	branchIDs, err := s.store.UserBranchIDs(ctx, user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load branches: %w", err)
	}

	sessionID, err := NewSessionID()
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.store.CreateSession(ctx, user.ID, HashToken(sessionID), time.Now().Add(s.tokenTTL)); err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}

	claims := Claims{
		UserID:    user.ID,
		Email:     user.Email,
		RoleID:    user.RoleID,
		RoleName:  user.RoleName,
		SessionID: sessionID,
		BranchIDs: branchIDs,
	}
	token, err := GenerateToken(s.secret, claims, s.tokenTTL)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}

	return LoginResult{Token: token, DisplayName: user.DisplayName, Session: claims.Session()}, nil
}

func (s *Service) Logout(ctx context.Context, session Session) error {
	if session.SessionID == "" {
		return nil
	}
	return s.store.RevokeSession(ctx, session.UserID, HashToken(session.SessionID))
}

// Validate reports whether the session behind a token is still live.
func (s *Service) Validate(ctx context.Context, session Session) error {
	ok, err := s.store.SessionValid(ctx, session.UserID, HashToken(session.SessionID))
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionExpired
	}
	return nil
}

type MFASetup struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauthUrl"`
}

func (s *Service) SetupMFA(ctx context.Context, session Session) (MFASetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: s.issuer, AccountName: session.Email})
	if err != nil {
		return MFASetup{}, err
	}
	sealed, err := s.sealer.EncryptString(key.Secret())
	if err != nil {
		return MFASetup{}, err
	}
	if err := s.store.UpdateMFASecret(ctx, session.UserID, sealed); err != nil {
		return MFASetup{}, err
	}
	return MFASetup{Secret: key.Secret(), URL: key.URL()}, nil
}

func (s *Service) EnableMFA(ctx context.Context, session Session, code string) error {
	sealed, err := s.store.GetMFASecret(ctx, session.UserID)
	if err != nil {
		return err
	}
	if len(sealed) == 0 {
		return ErrMFANotSetUp
	}
	secret, err := s.sealer.DecryptString(sealed)
	if err != nil {
		return err
	}
	if !totp.Validate(code, secret) {
		return ErrMFAInvalid
	}
	return s.store.SetMFAEnabled(ctx, session.UserID, true)
}
