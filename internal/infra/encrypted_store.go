package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	storeDBName = "focuscage.db"

	stateActiveProfile = "active_profile_id"
	stateNuclear       = "nuclear"
)

// EncryptedStore implements domain.ProfileRepository and domain.SessionStore
// using a SQLCipher encrypted SQLite database. Profiles are kept as JSON
// documents and decoded with defaults for fields older records lack.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
	logger *zap.Logger
}

// NewEncryptedStore opens (or creates) the encrypted store in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte, logger *zap.Logger) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// A wrong key only surfaces on first access
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{
		db:     db,
		dbPath: dbPath,
		logger: logger,
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		document TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS coordinator_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		start_at INTEGER NOT NULL,
		document TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS sessions_start_at ON sessions (start_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- domain.ProfileRepository implementation ---

// LoadProfiles returns all profiles in their saved order.
// Rows that cannot be decoded are skipped and logged.
func (s *EncryptedStore) LoadProfiles() ([]domain.Profile, error) {
	rows, err := s.db.Query(`SELECT id, document FROM profiles ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]domain.Profile, 0)
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		p, err := decodeProfile([]byte(doc))
		if err != nil {
			s.logger.Warn("skipping undecodable profile", zap.String("profile", id), zap.Error(err))
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// SaveProfiles replaces the stored list in one transaction.
func (s *EncryptedStore) SaveProfiles(profiles []domain.Profile) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM profiles`); err != nil {
		return err
	}
	for i, p := range profiles {
		doc, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode profile %s: %w", p.ID, err)
		}
		if _, err := tx.Exec(`INSERT INTO profiles (id, position, document) VALUES (?, ?, ?)`,
			p.ID, i, string(doc)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadState returns the persisted coordinator decision. A fresh store
// yields the zero state.
func (s *EncryptedStore) LoadState() (domain.CoordinatorState, error) {
	var state domain.CoordinatorState

	active, err := s.stateValue(stateActiveProfile)
	if err != nil {
		return state, err
	}
	state.ActiveProfileID = active

	raw, err := s.stateValue(stateNuclear)
	if err != nil {
		return state, err
	}
	if raw != "" {
		var n domain.NuclearOverride
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			s.logger.Warn("discarding undecodable nuclear override", zap.Error(err))
		} else {
			state.Nuclear = &n
		}
	}
	return state, nil
}

// SaveState persists the coordinator decision.
func (s *EncryptedStore) SaveState(state domain.CoordinatorState) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	nuclear := ""
	if state.Nuclear != nil {
		data, err := json.Marshal(state.Nuclear)
		if err != nil {
			return err
		}
		nuclear = string(data)
	}

	for key, value := range map[string]string{
		stateActiveProfile: state.ActiveProfileID,
		stateNuclear:       nuclear,
	} {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO coordinator_state (key, value) VALUES (?, ?)`,
			key, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *EncryptedStore) stateValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM coordinator_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// --- domain.SessionStore implementation ---

// AppendSession records a finished focus session.
func (s *EncryptedStore) AppendSession(session domain.FocusSession) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO sessions (id, profile_id, start_at, document) VALUES (?, ?, ?, ?)`,
		session.ID, session.ProfileID, session.StartAt.Unix(), string(doc))
	return err
}

// ListSessions returns all sessions ordered by start time.
func (s *EncryptedStore) ListSessions() ([]domain.FocusSession, error) {
	rows, err := s.db.Query(`SELECT id, document FROM sessions ORDER BY start_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.FocusSession, 0)
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var session domain.FocusSession
		if err := json.Unmarshal([]byte(doc), &session); err != nil {
			s.logger.Warn("skipping undecodable session", zap.String("session", id), zap.Error(err))
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// storedProfile shadows the fields that have a non-zero default so a
// missing key can be told apart from an explicit zero value.
type storedProfile struct {
	domain.Profile
	Schedule   *domain.Schedule        `json:"schedule"`
	IsEnabled  *bool                   `json:"is_enabled"`
	Strictness *domain.StrictnessLevel `json:"strictness"`
}

// decodeProfile decodes a profile document, filling defaults for fields
// written by older versions.
func decodeProfile(data []byte) (domain.Profile, error) {
	var sp storedProfile
	if err := json.Unmarshal(data, &sp); err != nil {
		return domain.Profile{}, err
	}
	p := sp.Profile
	if p.ID == "" {
		return domain.Profile{}, errors.New("profile document has no id")
	}

	p.Schedule = domain.DefaultSchedule()
	if sp.Schedule != nil {
		p.Schedule = *sp.Schedule
	}
	p.IsEnabled = true
	if sp.IsEnabled != nil {
		p.IsEnabled = *sp.IsEnabled
	}
	p.Strictness = domain.StrictnessStandard
	if sp.Strictness != nil && *sp.Strictness != "" {
		p.Strictness = *sp.Strictness
	}
	if p.BlockedTargets.Apps == nil {
		p.BlockedTargets.Apps = []string{}
	}
	if p.BlockedTargets.Websites == nil {
		p.BlockedTargets.Websites = []string{}
	}
	if p.DailyUnlocksUsed < 0 {
		p.DailyUnlocksUsed = 0
	}
	return p, nil
}

// Ensure EncryptedStore implements both interfaces.
var _ domain.ProfileRepository = (*EncryptedStore)(nil)
var _ domain.SessionStore = (*EncryptedStore)(nil)
