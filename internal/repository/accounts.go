package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"verity/auth-identity/internal/model"
)

// ErrDuplicateEmail is returned when an insert hits the unique email index.
var ErrDuplicateEmail = errors.New("email already exists")

// DB is the subset of pgxpool.Pool the account store uses. pgxmock
// satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type AccountStore struct {
	db DB
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountColumns = `id, email, name, password_hash, role, is_verified, verification_token, verified_at, reset_token, reset_token_expiry, created_at, updated_at`

// CreateAccount inserts the account and decides its role inside the same
// transaction: the very first account ever created is an admin, every
// later one a user. The table lock serializes concurrent first
// registrations so the count-then-insert cannot mint two admins.
func (s *AccountStore) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.Account{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `LOCK TABLE accounts IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return model.Account{}, err
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&count); err != nil {
		return model.Account{}, err
	}
	account.Role = model.RoleUser
	if count == 0 {
		account.Role = model.RoleAdmin
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, role, is_verified, verification_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, account.ID, account.Email, account.Name, account.PasswordHash, account.Role, account.IsVerified, account.VerificationToken, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Account{}, ErrDuplicateEmail
		}
		return model.Account{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Account{}, err
	}
	return account, nil
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, email)
	return scanAccount(row)
}

func (s *AccountStore) GetAccountByID(ctx context.Context, accountID string) (model.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, accountID)
	return scanAccount(row)
}

// MarkVerified flips the account to verified and consumes the
// verification token in a single update.
func (s *AccountStore) MarkVerified(ctx context.Context, accountID string, verifiedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET is_verified = true, verified_at = $1, verification_token = '', updated_at = $1
		WHERE id = $2
	`, verifiedAt, accountID)
	return err
}

func (s *AccountStore) SetPasswordReset(ctx context.Context, accountID, token string, expiry time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET reset_token = $1, reset_token_expiry = $2, updated_at = now()
		WHERE id = $3
	`, token, expiry, accountID)
	return err
}

// UpdatePassword stores the new hash and clears both reset columns in
// one statement, so a consumed reset token can never be replayed.
func (s *AccountStore) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $1, reset_token = NULL, reset_token_expiry = NULL, updated_at = now()
		WHERE id = $2
	`, passwordHash, accountID)
	return err
}

func (s *AccountStore) DeleteAccount(ctx context.Context, accountID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanAccount(row pgx.Row) (model.Account, error) {
	var account model.Account
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.PasswordHash,
		&account.Role,
		&account.IsVerified,
		&account.VerificationToken,
		&account.VerifiedAt,
		&account.ResetToken,
		&account.ResetTokenExpiry,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	return account, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
