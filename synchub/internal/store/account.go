// CLAUDE:SUMMARY Account and device rows — bcrypt-hashed secrets, enrollment, credential checks.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bakharlabs/blurshield/idgen"
)

// ErrExists is returned when an account email is already enrolled.
var ErrExists = errors.New("store: already exists")

// ErrBadCredentials is returned for a failed secret check or unknown
// principal. One error for both so responses cannot probe which part failed.
var ErrBadCredentials = errors.New("store: bad credentials")

// Account is one enrolled user.
type Account struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Tier      string `json:"tier"`
	CreatedAt int64  `json:"created_at"`
}

// Device is one enrolled client of an account.
type Device struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	LastSeen  int64  `json:"last_seen"`
	CreatedAt int64  `json:"created_at"`
}

// CreateAccount enrolls a new account with a bcrypt-hashed secret.
func (s *Store) CreateAccount(ctx context.Context, email, secret string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	a := &Account{
		ID:        idgen.New(),
		Email:     email,
		Tier:      "free",
		CreatedAt: time.Now().UnixMilli(),
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO accounts (id, email, secret_hash, tier, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Email, string(hash), a.Tier, a.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrExists
		}
		return nil, err
	}
	return a, nil
}

// Authenticate checks account credentials and returns the account.
func (s *Store) Authenticate(ctx context.Context, email, secret string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, email, secret_hash, tier, created_at
		FROM accounts WHERE email = ?`, email)

	a := &Account{}
	var hash string
	err := row.Scan(&a.ID, &a.Email, &hash, &a.Tier, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return nil, ErrBadCredentials
	}
	return a, nil
}

// GetAccount retrieves an account by ID. Returns nil, nil when absent.
func (s *Store) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, email, tier, created_at FROM accounts WHERE id = ?`, id)
	a := &Account{}
	err := row.Scan(&a.ID, &a.Email, &a.Tier, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SetTier updates an account's tier.
func (s *Store) SetTier(ctx context.Context, accountID, tier string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE accounts SET tier = ? WHERE id = ?`, tier, accountID)
	return err
}

// CreateDevice enrolls a device under an account. The device secret is
// generated here and returned exactly once; only its hash is stored.
func (s *Store) CreateDevice(ctx context.Context, accountID, name string) (*Device, string, error) {
	secret := idgen.New() + idgen.New()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	d := &Device{
		ID:        idgen.New(),
		AccountID: accountID,
		Name:      name,
		CreatedAt: time.Now().UnixMilli(),
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO devices (id, account_id, name, secret_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.AccountID, d.Name, string(hash), d.CreatedAt)
	if err != nil {
		return nil, "", err
	}
	return d, secret, nil
}

// AuthenticateDevice checks device credentials, bumps last_seen and returns
// the device with its owning account.
func (s *Store) AuthenticateDevice(ctx context.Context, deviceID, secret string) (*Device, *Account, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, account_id, name, secret_hash, last_seen, created_at
		FROM devices WHERE id = ?`, deviceID)

	d := &Device{}
	var hash string
	err := row.Scan(&d.ID, &d.AccountID, &d.Name, &hash, &d.LastSeen, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, ErrBadCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return nil, nil, ErrBadCredentials
	}

	a, err := s.GetAccount(ctx, d.AccountID)
	if err != nil {
		return nil, nil, err
	}
	if a == nil {
		return nil, nil, ErrBadCredentials
	}

	now := time.Now().UnixMilli()
	s.DB.ExecContext(ctx, `UPDATE devices SET last_seen = ? WHERE id = ?`, now, d.ID)
	d.LastSeen = now
	return d, a, nil
}

// ListDevices returns an account's devices, newest first.
func (s *Store) ListDevices(ctx context.Context, accountID string) ([]*Device, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, account_id, name, last_seen, created_at
		FROM devices WHERE account_id = ?
		ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d := &Device{}
		if err := rows.Scan(&d.ID, &d.AccountID, &d.Name, &d.LastSeen, &d.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
