package state

import (
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blackcoderx/corpusctl/pkg/collector/action"
	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS processed_items(
  item_id TEXT PRIMARY KEY,
  source_type TEXT NOT NULL,
  source_name TEXT NOT NULL,
  actions_applied_json TEXT NOT NULL,
  processed_timestamp TEXT NOT NULL,
  metadata_json TEXT,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_source_type ON processed_items(source_type);
CREATE INDEX IF NOT EXISTS idx_source_name ON processed_items(source_name);
`

// SQLStore is the relational backend: a single-file embedded
// modernc.org/sqlite database, selected by a ".db" state file
// extension. Updates run in normal transactions; there is no external
// lock file since sqlite serializes writers itself.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (creating and migrating if absent) the sqlite
// state database at path.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cerrors.State("failed to open sqlite state database", err).WithContext("path", path)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers from one *DB
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, cerrors.State("failed to apply sqlite schema", err).WithContext("path", path)
	}
	return &SQLStore{db: db}, nil
}

// IsProcessed reports whether every action in required is already
// recorded for itemID.
func (s *SQLStore) IsProcessed(itemID string, required *action.Set) (bool, error) {
	rec, ok, err := s.Get(itemID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return rec.ActionsApplied.ContainsAll(required.Slice()), nil
}

// Get returns the stored record for itemID.
func (s *SQLStore) Get(itemID string) (Record, bool, error) {
	row := s.db.QueryRow(
		`SELECT source_type, source_name, actions_applied_json, processed_timestamp, metadata_json
		 FROM processed_items WHERE item_id = ?`, itemID)

	var sourceType, sourceName, actionsJSON, ts string
	var metadataJSON sql.NullString
	if err := row.Scan(&sourceType, &sourceName, &actionsJSON, &ts, &metadataJSON); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, cerrors.State("failed to read processed item", err).WithContext("item_id", itemID)
	}

	var actionsStrs []string
	if err := json.Unmarshal([]byte(actionsJSON), &actionsStrs); err != nil {
		return Record{}, false, cerrors.State("corrupt actions_applied_json", err).WithContext("item_id", itemID)
	}
	set, err := action.SetFromStrings(actionsStrs)
	if err != nil {
		return Record{}, false, cerrors.State("corrupt actions_applied for item", err).WithContext("item_id", itemID)
	}
	var metadata map[string]any
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &metadata); err != nil {
			return Record{}, false, cerrors.State("corrupt metadata_json", err).WithContext("item_id", itemID)
		}
	}
	t, _ := time.Parse(time.RFC3339, ts)
	return Record{
		ItemID:         itemID,
		SourceType:     sourceType,
		SourceName:     sourceName,
		ActionsApplied: set,
		LastProcessed:  t,
		Metadata:       metadata,
	}, true, nil
}

// MarkProcessed union-merges actionsApplied into the stored row for
// itemID within a single transaction.
func (s *SQLStore) MarkProcessed(itemID, sourceType, sourceName string, actionsApplied *action.Set, metadata map[string]any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return cerrors.State("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := upsertRecord(tx, itemID, sourceType, sourceName, actionsApplied, metadata); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return cerrors.State("failed to commit state transaction", err)
	}
	return nil
}

func upsertRecord(tx *sql.Tx, itemID, sourceType, sourceName string, actionsApplied *action.Set, metadata map[string]any) error {
	row := tx.QueryRow(`SELECT source_type, source_name, actions_applied_json, metadata_json FROM processed_items WHERE item_id = ?`, itemID)
	var existingType, existingName, existingActionsJSON string
	var existingMetaJSON sql.NullString
	err := row.Scan(&existingType, &existingName, &existingActionsJSON, &existingMetaJSON)

	merged := action.NewSet()
	mergedMeta := map[string]any{}
	if err == nil {
		var existingActions []string
		_ = json.Unmarshal([]byte(existingActionsJSON), &existingActions)
		if existingSet, e2 := action.SetFromStrings(existingActions); e2 == nil {
			merged = existingSet
		}
		if existingMetaJSON.Valid && existingMetaJSON.String != "" {
			_ = json.Unmarshal([]byte(existingMetaJSON.String), &mergedMeta)
		}
		sourceType = firstNonEmpty(sourceType, existingType)
		sourceName = firstNonEmpty(sourceName, existingName)
	} else if err != sql.ErrNoRows {
		return cerrors.State("failed to read existing row", err).WithContext("item_id", itemID)
	}
	for _, a := range actionsApplied.Slice() {
		merged.Add(a)
	}
	for k, v := range metadata {
		mergedMeta[k] = v
	}

	actionsJSON, err := json.Marshal(merged.Strings())
	if err != nil {
		return cerrors.State("failed to serialize actions_applied", err)
	}
	var metaJSON []byte
	if len(mergedMeta) > 0 {
		metaJSON, err = json.Marshal(mergedMeta)
		if err != nil {
			return cerrors.State("failed to serialize metadata", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO processed_items(item_id, source_type, source_name, actions_applied_json, processed_timestamp, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			source_type = excluded.source_type,
			source_name = excluded.source_name,
			actions_applied_json = excluded.actions_applied_json,
			processed_timestamp = excluded.processed_timestamp,
			metadata_json = excluded.metadata_json`,
		itemID, sourceType, sourceName, string(actionsJSON), nowISO(), nullableString(metaJSON))
	if err != nil {
		return cerrors.State("failed to upsert processed item", err).WithContext("item_id", itemID)
	}
	return nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// BulkUpdate applies every record in a single transaction.
func (s *SQLStore) BulkUpdate(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return cerrors.State("failed to begin bulk transaction", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if err := upsertRecord(tx, r.ItemID, r.SourceType, r.SourceName, r.ActionsApplied, r.Metadata); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return cerrors.State("failed to commit bulk transaction", err)
	}
	return nil
}

// Cleanup prunes the oldest rows (by processed_timestamp) beyond
// retainCount.
func (s *SQLStore) Cleanup(retainCount int) error {
	if retainCount <= 0 {
		return nil
	}
	rows, err := s.db.Query(`SELECT item_id, processed_timestamp FROM processed_items ORDER BY processed_timestamp ASC`)
	if err != nil {
		return cerrors.State("failed to enumerate processed items for cleanup", err)
	}
	type kv struct {
		id string
		ts string
	}
	var items []kv
	for rows.Next() {
		var id, ts string
		if err := rows.Scan(&id, &ts); err != nil {
			rows.Close()
			return cerrors.State("failed to scan item during cleanup", err)
		}
		items = append(items, kv{id, ts})
	}
	rows.Close()

	if len(items) <= retainCount {
		return nil
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ts < items[j].ts })
	toRemove := len(items) - retainCount

	tx, err := s.db.Begin()
	if err != nil {
		return cerrors.State("failed to begin cleanup transaction", err)
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`DELETE FROM processed_items WHERE item_id = ?`)
	if err != nil {
		return cerrors.State("failed to prepare cleanup delete", err)
	}
	defer stmt.Close()
	for i := 0; i < toRemove; i++ {
		if _, err := stmt.Exec(items[i].id); err != nil {
			return cerrors.State("failed to delete stale item", err).WithContext("item_id", items[i].id)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
