package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CrowderSoup/taskcollab/models"
)

const defaultSlot = "default"

var (
	ErrNoCredential        = errors.New("no stored credential")
	ErrMalformedCredential = errors.New("malformed stored credential")
)

// CredentialStore is the durable slot holding the bearer token and the
// serialized current user.
type CredentialStore struct {
	db   *sql.DB
	slot string
}

// NewCredentialStore creates a credential store backed by db.
func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db, slot: defaultSlot}
}

// Save stores token and user, replacing whatever the slot held.
func (s *CredentialStore) Save(token string, user *models.User) error {
	var userJSON sql.NullString
	if user != nil {
		b, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		userJSON = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO credentials (slot, token, user_json, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET
			token = excluded.token,
			user_json = excluded.user_json,
			updated_at = CURRENT_TIMESTAMP
	`, s.slot, token, userJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load returns the stored token and user. The user is nil when only a token
// was stored. An undecodable user record is removed from the slot and
// reported as ErrMalformedCredential; the token is still returned.
func (s *CredentialStore) Load() (string, *models.User, error) {
	row := s.db.QueryRow("SELECT token, user_json FROM credentials WHERE slot = ?", s.slot)

	var token string
	var userJSON sql.NullString
	err := row.Scan(&token, &userJSON)
	if err == sql.ErrNoRows {
		return "", nil, ErrNoCredential
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to query credential: %w", err)
	}
	if token == "" {
		return "", nil, ErrMalformedCredential
	}

	if !userJSON.Valid || userJSON.String == "" || userJSON.String == "null" {
		return token, nil, nil
	}

	var user models.User
	if err := json.Unmarshal([]byte(userJSON.String), &user); err != nil {
		slog.Warn("discarding unreadable stored user", "err", err)
		if _, err := s.db.Exec("UPDATE credentials SET user_json = NULL WHERE slot = ?", s.slot); err != nil {
			return token, nil, fmt.Errorf("failed to clear stored user: %w", err)
		}
		return token, nil, ErrMalformedCredential
	}
	return token, &user, nil
}

// Clear empties the slot. Clearing an empty slot is not an error.
func (s *CredentialStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM credentials WHERE slot = ?", s.slot); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}
