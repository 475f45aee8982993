// Package service implements the credential and session workflows:
// registration gated by email verification, login with a reusable
// refresh session, logout, and the time-boxed password-reset handshake.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"verity/auth-identity/internal/config"
	"verity/auth-identity/internal/crypto"
	"verity/auth-identity/internal/model"
	"verity/auth-identity/internal/repository"
)

var (
	// ErrInvalidCredentials covers every identity failure uniformly:
	// unknown email, wrong password, unverified account, bad or consumed
	// token. Callers must not be able to tell which check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken is returned when registering an email that exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrResetTokenExpired is returned when a password reset arrives
	// after the stored expiry, matching token or not.
	ErrResetTokenExpired = errors.New("reset token has expired")
)

const (
	verificationTokenBytes = 40
	refreshTokenBytes      = 40
	resetTokenBytes        = 70

	notifyTimeout = 10 * time.Second
)

type AccountStore interface {
	CreateAccount(ctx context.Context, account model.Account) (model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (model.Account, error)
	GetAccountByID(ctx context.Context, accountID string) (model.Account, error)
	MarkVerified(ctx context.Context, accountID string, verifiedAt time.Time) error
	SetPasswordReset(ctx context.Context, accountID, token string, expiry time.Time) error
	UpdatePassword(ctx context.Context, accountID, passwordHash string) error
	DeleteAccount(ctx context.Context, accountID string) (bool, error)
}

type SessionStore interface {
	Create(ctx context.Context, session model.RefreshSession) error
	Get(ctx context.Context, accountID string) (model.RefreshSession, error)
	Delete(ctx context.Context, accountID string) error
}

type Notifier interface {
	SendVerificationEmail(ctx context.Context, name, email, token string) error
	SendVerificationSuccessEmail(ctx context.Context, name, email string) error
	SendResetPasswordEmail(ctx context.Context, name, email, token string) error
}

// TokenClaim is minted fresh per request cycle from the account and its
// refresh session. It is never persisted.
type TokenClaim struct {
	AccountID string `json:"accountId"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	SessionID string `json:"-"`
}

type AuthService struct {
	accounts   AccountStore
	sessions   SessionStore
	notifier   Notifier
	resetTTL   time.Duration
	refreshTTL time.Duration
	logger     zerolog.Logger

	notifyWG sync.WaitGroup
}

func NewAuthService(accounts AccountStore, sessions SessionStore, notifier Notifier, cfg config.Config, logger zerolog.Logger) *AuthService {
	return &AuthService{
		accounts:   accounts,
		sessions:   sessions,
		notifier:   notifier,
		resetTTL:   cfg.ResetTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		logger:     logger,
	}
}

type RegisterParams struct {
	Email    string
	Name     string
	Password string
}

// Register creates an unverified account and dispatches the verification
// email. The raw verification token travels only in that email, never in
// the response.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) error {
	hash, err := crypto.HashPassword(params.Password)
	if err != nil {
		return err
	}
	token, err := crypto.NewOpaqueToken(verificationTokenBytes)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	account, err := s.accounts.CreateAccount(ctx, model.Account{
		ID:                uuid.NewString(),
		Email:             params.Email,
		Name:              params.Name,
		PasswordHash:      hash,
		IsVerified:        false,
		VerificationToken: token,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return ErrEmailTaken
		}
		return err
	}

	s.dispatch("verification", func(ctx context.Context) error {
		return s.notifier.SendVerificationEmail(ctx, account.Name, account.Email, token)
	})
	return nil
}

// VerifyEmail consumes the one-time verification token. A token that was
// already consumed, or does not match, fails exactly like an unknown
// email would.
func (s *AuthService) VerifyEmail(ctx context.Context, email, token string) error {
	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvalidCredentials
		}
		return err
	}

	if account.VerificationToken == "" {
		// Already verified; an old token must not replay.
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(account.VerificationToken), []byte(token)) != 1 {
		return ErrInvalidCredentials
	}

	if err := s.accounts.MarkVerified(ctx, account.ID, time.Now().UTC()); err != nil {
		return err
	}

	s.dispatch("verification success", func(ctx context.Context) error {
		return s.notifier.SendVerificationSuccessEmail(ctx, account.Name, account.Email)
	})
	return nil
}

type LoginParams struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	Claim        TokenClaim
	RefreshToken string
}

// Login verifies credentials and returns the claim plus the account's
// refresh token. An existing valid session is reused with its token
// unchanged; an invalidated session fails closed.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (LoginResult, error) {
	account, err := s.accounts.GetAccountByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !account.IsVerified {
		s.logger.Debug().Str("account_id", account.ID).Msg("login rejected: account not verified")
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := crypto.CheckPassword(account.PasswordHash, params.Password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	session, err := s.ensureSession(ctx, account.ID, params)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		Claim: TokenClaim{
			AccountID: account.ID,
			Name:      account.Name,
			Role:      account.Role,
			SessionID: session.ID,
		},
		RefreshToken: session.Token,
	}, nil
}

func (s *AuthService) ensureSession(ctx context.Context, accountID string, params LoginParams) (model.RefreshSession, error) {
	session, err := s.sessions.Get(ctx, accountID)
	switch {
	case err == nil:
		if !session.Valid {
			return model.RefreshSession{}, ErrInvalidCredentials
		}
		return session, nil
	case errors.Is(err, repository.ErrSessionNotFound):
	default:
		return model.RefreshSession{}, err
	}

	token, err := crypto.NewOpaqueToken(refreshTokenBytes)
	if err != nil {
		return model.RefreshSession{}, err
	}
	now := time.Now().UTC()
	session = model.RefreshSession{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Token:     token,
		Valid:     true,
		UserAgent: params.UserAgent,
		IPAddress: params.IPAddress,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	err = s.sessions.Create(ctx, session)
	if errors.Is(err, repository.ErrSessionExists) {
		// Lost a near-simultaneous login race; adopt the winner's session.
		session, err = s.sessions.Get(ctx, accountID)
		if err != nil {
			return model.RefreshSession{}, err
		}
		if !session.Valid {
			return model.RefreshSession{}, ErrInvalidCredentials
		}
		return session, nil
	}
	if err != nil {
		return model.RefreshSession{}, err
	}
	return session, nil
}

// Logout removes the account's refresh session. Absence is not an error.
func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	return s.sessions.Delete(ctx, accountID)
}

// ForgotPassword stores a short-lived reset token and dispatches the
// reset email. An unknown email succeeds identically so the response
// cannot be used to probe which addresses are registered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	token, err := crypto.NewOpaqueToken(resetTokenBytes)
	if err != nil {
		return err
	}
	expiry := time.Now().UTC().Add(s.resetTTL)
	if err := s.accounts.SetPasswordReset(ctx, account.ID, token, expiry); err != nil {
		return err
	}

	s.dispatch("reset password", func(ctx context.Context) error {
		return s.notifier.SendResetPasswordEmail(ctx, account.Name, account.Email, token)
	})
	return nil
}

// ResetPassword consumes a reset token. Expiry is checked before the
// token match so a stale link surfaces precisely; a mismatched but
// unexpired token is a silent no-op, indistinguishable from success.
func (s *AuthService) ResetPassword(ctx context.Context, token, email, password string) error {
	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	if account.ResetTokenExpiry != nil && account.ResetTokenExpiry.Before(now) {
		return ErrResetTokenExpired
	}
	if account.ResetToken == nil || account.ResetTokenExpiry == nil {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(*account.ResetToken), []byte(token)) != 1 {
		return nil
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}
	return s.accounts.UpdatePassword(ctx, account.ID, hash)
}

// DeleteAccount removes the account and cascades to its refresh session
// so no session record can outlive its owner.
func (s *AuthService) DeleteAccount(ctx context.Context, accountID string) error {
	deleted, err := s.accounts.DeleteAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !deleted {
		return pgx.ErrNoRows
	}
	return s.sessions.Delete(ctx, accountID)
}

// dispatch runs a notification send in the background. Failures are
// logged and never surfaced to the workflow that triggered them.
func (s *AuthService) dispatch(kind string, send func(ctx context.Context) error) {
	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			s.logger.Warn().Err(err).Str("email", kind).Msg("notification dispatch failed")
		}
	}()
}

// Shutdown waits for in-flight notification sends to finish.
func (s *AuthService) Shutdown() {
	s.notifyWG.Wait()
}
