package canvass

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass/internal/store/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const schemaVersion = "1"

// Store manages the local SQLite database holding leads, check-ins,
// appointments, preferences and locally created accounts.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewStore opens or creates a local store.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO preferences (key, value) VALUES ('schema_version', ?)
	`, schemaVersion)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ClearAll deletes every lead, check-in, appointment and pending delete.
// Preferences and accounts are left alone.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	for _, table := range []string{"checkins", "leads", "appointments", "pending_deletes"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("store: clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// ============================================================================
// Preferences
// ============================================================================

// GetPreference returns a preference value, or "" when unset.
func (s *Store) GetPreference(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get preference %s: %w", key, err)
	}
	return value, nil
}

// SetPreference stores a preference value.
func (s *Store) SetPreference(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: set preference %s: %w", key, err)
	}
	return nil
}

// DeletePreference removes a preference.
func (s *Store) DeletePreference(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec("DELETE FROM preferences WHERE key = ?", key); err != nil {
		return fmt.Errorf("store: delete preference %s: %w", key, err)
	}
	return nil
}

// GetBoolPreference reports whether a preference is set to "true".
func (s *Store) GetBoolPreference(key string) (bool, error) {
	v, err := s.GetPreference(key)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// SetBoolPreference stores a boolean preference.
func (s *Store) SetBoolPreference(key string, value bool) error {
	if value {
		return s.SetPreference(key, "true")
	}
	return s.SetPreference(key, "false")
}

// ClearPreferences deletes every preference except schema_version and the keep list.
func (s *Store) ClearPreferences(keep []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	keep = append(keep, "schema_version")
	placeholders := make([]string, len(keep))
	args := make([]any, len(keep))
	for i, k := range keep {
		placeholders[i] = "?"
		args[i] = k
	}
	query := fmt.Sprintf("DELETE FROM preferences WHERE key NOT IN (%s)", strings.Join(placeholders, ","))
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("store: clear preferences: %w", err)
	}
	return nil
}

// ============================================================================
// Accounts
// ============================================================================

// PutAccount inserts or replaces an account record.
func (s *Store) PutAccount(acct Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	var resetExpires *string
	if acct.ResetExpiresAt != nil {
		v := formatTime(*acct.ResetExpiresAt)
		resetExpires = &v
	}

	_, err := s.db.Exec(`
		INSERT INTO accounts (id, email, display_name, password_hash, reset_token, reset_expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			password_hash = excluded.password_hash,
			reset_token = excluded.reset_token,
			reset_expires_at = excluded.reset_expires_at
	`,
		acct.ID,
		strings.ToLower(acct.Email),
		nullString(acct.DisplayName),
		acct.PasswordHash,
		nullString(acct.ResetToken),
		resetExpires,
		formatTime(acct.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: put account: %w", err)
	}
	return nil
}

// GetAccount returns an account by ID.
func (s *Store) GetAccount(id string) (*Account, error) {
	return s.queryAccount("id", id)
}

// GetAccountByEmail returns an account by (case-insensitive) email.
func (s *Store) GetAccountByEmail(email string) (*Account, error) {
	return s.queryAccount("email", strings.ToLower(email))
}

func (s *Store) queryAccount(column, value string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var (
		acct         Account
		displayName  sql.NullString
		resetToken   sql.NullString
		resetExpires sql.NullString
		createdAt    string
	)
	err := s.db.QueryRow(`
		SELECT id, email, display_name, password_hash, reset_token, reset_expires_at, created_at
		FROM accounts WHERE `+column+` = ?
	`, value).Scan(&acct.ID, &acct.Email, &displayName, &acct.PasswordHash, &resetToken, &resetExpires, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get account: %w", err)
	}

	acct.DisplayName = displayName.String
	acct.ResetToken = resetToken.String
	if resetExpires.Valid {
		t := parseTime(resetExpires.String)
		acct.ResetExpiresAt = &t
	}
	acct.CreatedAt = parseTime(createdAt)
	return &acct, nil
}

// DeleteAccount removes an account record.
func (s *Store) DeleteAccount(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.Exec("DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// Pending deletes
// ============================================================================

// PendingDelete is a remote deletion queued while no session was available.
type PendingDelete struct {
	Collection string
	ID         string
	QueuedAt   time.Time
}

// QueuePendingDelete records a remote document deletion to replay on the next sync.
func (s *Store) QueuePendingDelete(collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO pending_deletes (collection, doc_id, queued_at)
		VALUES (?, ?, ?)
	`, collection, id, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store: queue pending delete: %w", err)
	}
	return nil
}

// PendingDeletes returns queued deletions oldest first.
func (s *Store) PendingDeletes() ([]PendingDelete, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query("SELECT collection, doc_id, queued_at FROM pending_deletes ORDER BY queued_at")
	if err != nil {
		return nil, fmt.Errorf("store: query pending deletes: %w", err)
	}
	defer rows.Close()

	var results []PendingDelete
	for rows.Next() {
		var (
			pd       PendingDelete
			queuedAt string
		)
		if err := rows.Scan(&pd.Collection, &pd.ID, &queuedAt); err != nil {
			return nil, err
		}
		pd.QueuedAt = parseTime(queuedAt)
		results = append(results, pd)
	}
	return results, rows.Err()
}

// ClearPendingDelete removes a replayed deletion from the queue.
func (s *Store) ClearPendingDelete(collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec("DELETE FROM pending_deletes WHERE collection = ? AND doc_id = ?", collection, id)
	return err
}

// ============================================================================
// Stats / lifecycle
// ============================================================================

// Stats returns store statistics.
func (s *Store) Stats() (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	stats := &StoreStats{SchemaVersion: schemaVersion}
	counts := []struct {
		table string
		dest  *int
	}{
		{"leads", &stats.LeadCount},
		{"checkins", &stats.CheckInCount},
		{"appointments", &stats.AppointmentCount},
		{"pending_deletes", &stats.PendingDeletes},
	}
	for _, c := range counts {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// scanner abstracts the Scan method shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullUUID(id *uuid.UUID) *string {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	v := id.String()
	return &v
}

func parseNullUUID(ns sql.NullString) *uuid.UUID {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil
	}
	return &id
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
