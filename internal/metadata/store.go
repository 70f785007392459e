package metadata

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrProtocolNotFound is returned when no protocol is registered under a
// collection ID
var ErrProtocolNotFound = errors.New("protocol not found")

// Store handles queries to the SQLite protocol metadata database
type Store struct {
	db *sql.DB
}

// NewStore creates a new protocol metadata store
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates the protocols table if it doesn't exist
func (s *Store) initSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS protocols (
			collection_id TEXT PRIMARY KEY,
			title TEXT,
			sponsor TEXT,
			indication TEXT,
			chunk_count INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`

	_, err := s.db.Exec(query)
	return err
}

// Protocol represents one ingested clinical protocol
type Protocol struct {
	CollectionID string    `json:"collection_id"`
	Title        string    `json:"title"`
	Sponsor      string    `json:"sponsor"`
	Indication   string    `json:"indication"`
	ChunkCount   int       `json:"chunk_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// PromptMetadata returns the key/value pairs exposed to prompt templates
func (p Protocol) PromptMetadata() map[string]string {
	m := make(map[string]string)
	if p.Title != "" {
		m["Study Title"] = p.Title
	}
	if p.Sponsor != "" {
		m["Sponsor"] = p.Sponsor
	}
	if p.Indication != "" {
		m["Indication"] = p.Indication
	}
	return m
}

// AddProtocol registers or replaces a protocol entry
func (s *Store) AddProtocol(p Protocol) error {
	query := `
		INSERT OR REPLACE INTO protocols (collection_id, title, sponsor, indication, chunk_count)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query, p.CollectionID, p.Title, p.Sponsor, p.Indication, p.ChunkCount)
	if err != nil {
		return fmt.Errorf("failed to insert protocol: %w", err)
	}

	return nil
}

// GetProtocol returns the protocol registered under collectionID, or
// ErrProtocolNotFound
func (s *Store) GetProtocol(collectionID string) (*Protocol, error) {
	query := `
		SELECT collection_id, title, sponsor, indication, chunk_count, created_at
		FROM protocols WHERE collection_id = ?
	`

	var p Protocol
	err := s.db.QueryRow(query, collectionID).Scan(
		&p.CollectionID, &p.Title, &p.Sponsor, &p.Indication, &p.ChunkCount, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProtocolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query protocol: %w", err)
	}

	return &p, nil
}

// ListProtocols returns all registered protocols, newest first
func (s *Store) ListProtocols() ([]Protocol, error) {
	query := `
		SELECT collection_id, title, sponsor, indication, chunk_count, created_at
		FROM protocols ORDER BY created_at DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list protocols: %w", err)
	}
	defer rows.Close()

	var protocols []Protocol
	for rows.Next() {
		var p Protocol
		if err := rows.Scan(&p.CollectionID, &p.Title, &p.Sponsor, &p.Indication, &p.ChunkCount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan protocol row: %w", err)
		}
		protocols = append(protocols, p)
	}

	return protocols, rows.Err()
}

// DeleteProtocol removes a protocol entry
func (s *Store) DeleteProtocol(collectionID string) error {
	result, err := s.db.Exec(`DELETE FROM protocols WHERE collection_id = ?`, collectionID)
	if err != nil {
		return fmt.Errorf("failed to delete protocol: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrProtocolNotFound
	}

	return nil
}
