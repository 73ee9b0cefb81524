package state

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/blackcoderx/corpusctl/pkg/collector/action"
	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
)

const documentSchemaVersion = "1.0"

// lockTimeout bounds how long MarkProcessed/BulkUpdate/Cleanup wait
// for the exclusive lock once the non-blocking attempt fails.
const lockTimeout = 30 * time.Second

// entry is the on-disk shape of one processed_messages value.
type entry struct {
	ActionsApplied []string       `json:"actions_applied"`
	LastProcessed  string         `json:"last_processed"`
	SourceType     string         `json:"source_type,omitempty"`
	SourceName     string         `json:"source_name,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// document is the on-disk shape of the whole state file.
type document struct {
	Version          string           `json:"version"`
	Created          string           `json:"_created"`
	LastUpdated      string           `json:"_last_updated"`
	IntegrityHash    string           `json:"_integrity_hash"`
	ProcessedRaw     json.RawMessage  `json:"processed_messages"`
	ProcessedMessages map[string]entry `json:"-"`
}

// DocumentStore is the JSON-file-backed Store, guarded by a sibling
// lock file and written with write-temp-then-fsync-then-rename.
type DocumentStore struct {
	path string
	lock *flock.Flock
}

// OpenDocumentStore opens (creating if absent) the JSON state file at
// path.
func OpenDocumentStore(path string) (*DocumentStore, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := initDocumentFile(path); err != nil {
			return nil, err
		}
	}
	return &DocumentStore{path: path, lock: flock.New(path + ".lock")}, nil
}

func initDocumentFile(path string) error {
	now := nowISO()
	doc := document{Version: documentSchemaVersion, Created: now, LastUpdated: now, ProcessedMessages: map[string]entry{}}
	return writeDocument(path, &doc)
}

func (s *DocumentStore) withLock(fn func(*document) (*document, error)) error {
	locked, err := s.lock.TryLock()
	if err != nil {
		return cerrors.State("failed to attempt state lock", err).WithContext("path", s.path)
	}
	if !locked {
		ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
		defer cancel()
		ctxLocked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
		if err != nil || !ctxLocked {
			return cerrors.State("timed out waiting for state file lock", err).WithContext("path", s.path)
		}
	}
	defer s.lock.Unlock()

	doc, err := readDocument(s.path)
	if err != nil {
		return err
	}
	updated, err := fn(doc)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}
	return writeDocument(s.path, updated)
}

// readDocument loads and parses the state file, migrating legacy
// list-shaped records and checking the integrity hash. A mismatch is
// never a fatal error and is not reported to the caller or logged —
// the parsed contents are still returned, and the next save writes a
// fresh hash.
func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.State("failed to read state file", err).WithContext("path", path)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, cerrors.State("state file is not valid JSON", err).WithContext("path", path)
	}

	doc.ProcessedMessages, err = decodeProcessed(doc.ProcessedRaw)
	if err != nil {
		return nil, cerrors.State("failed to parse processed_messages", err).WithContext("path", path)
	}

	// Integrity check is advisory: a mismatch is tolerated so the
	// store can continue operating and recompute on next save.
	_ = verifyIntegrity(doc, data)

	return &doc, nil
}

// decodeProcessed accepts either the current map shape or the legacy
// list-of-item-id shape, migrating the latter by assuming
// actions_applied = {save}.
func decodeProcessed(raw json.RawMessage) (map[string]entry, error) {
	if len(raw) == 0 {
		return map[string]entry{}, nil
	}
	var asMap map[string]entry
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap, nil
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err != nil {
		return nil, err
	}
	migrated := make(map[string]entry, len(asList))
	now := nowISO()
	for _, id := range asList {
		migrated[id] = entry{ActionsApplied: []string{string(action.Save)}, LastProcessed: now}
	}
	return migrated, nil
}

func verifyIntegrity(doc document, raw []byte) bool {
	if doc.IntegrityHash == "" {
		return true
	}
	// The hash was computed over the compact encoding; the file holds
	// it indented, so compact before hashing.
	var compact bytes.Buffer
	if err := json.Compact(&compact, doc.ProcessedRaw); err != nil {
		return false
	}
	return computeIntegrityHash(doc.Version, compact.Bytes()) == doc.IntegrityHash
}

func computeIntegrityHash(version string, processedRaw json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(version))
	h.Write(processedRaw)
	return hex.EncodeToString(h.Sum(nil))
}

// writeDocument serializes doc, refreshing its integrity hash and
// timestamp, and writes it atomically.
func writeDocument(path string, doc *document) error {
	if doc.ProcessedMessages == nil {
		doc.ProcessedMessages = map[string]entry{}
	}
	processedRaw, err := json.Marshal(doc.ProcessedMessages)
	if err != nil {
		return cerrors.State("failed to serialize processed_messages", err)
	}
	doc.ProcessedRaw = processedRaw
	doc.LastUpdated = nowISO()
	if doc.Created == "" {
		doc.Created = doc.LastUpdated
	}
	if doc.Version == "" {
		doc.Version = documentSchemaVersion
	}
	doc.IntegrityHash = computeIntegrityHash(doc.Version, processedRaw)

	out := struct {
		Version       string          `json:"version"`
		Created       string          `json:"_created"`
		LastUpdated   string          `json:"_last_updated"`
		IntegrityHash string          `json:"_integrity_hash"`
		Processed     json.RawMessage `json:"processed_messages"`
	}{doc.Version, doc.Created, doc.LastUpdated, doc.IntegrityHash, processedRaw}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return cerrors.State("failed to marshal state document", err)
	}
	return atomicWriteState(path, data)
}

func atomicWriteState(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return cerrors.State("failed to create state directory", err).WithContext("dir", dir)
	}
	tmp, err := os.CreateTemp(dir, ".state-tmp-*")
	if err != nil {
		return cerrors.State("failed to create temp state file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return cerrors.State("failed to write temp state file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return cerrors.State("failed to fsync temp state file", err)
	}
	if err := tmp.Close(); err != nil {
		return cerrors.State("failed to close temp state file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return cerrors.State("failed to rename temp state file into place", err).WithContext("path", path)
	}
	return nil
}

// nowISO uses fixed-width nanosecond precision so timestamps written
// within the same second still order correctly as strings (Cleanup
// sorts on them).
func nowISO() string { return time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00") }

// IsProcessed reports whether every action in required is already
// recorded for itemID.
func (s *DocumentStore) IsProcessed(itemID string, required *action.Set) (bool, error) {
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
func (s *DocumentStore) Get(itemID string) (Record, bool, error) {
	doc, err := readDocument(s.path)
	if err != nil {
		return Record{}, false, err
	}
	e, ok := doc.ProcessedMessages[itemID]
	if !ok {
		return Record{}, false, nil
	}
	rec, err := entryToRecord(itemID, e)
	if err != nil {
		return Record{}, false, cerrors.State("corrupt actions_applied for item", err).WithContext("item_id", itemID)
	}
	return rec, true, nil
}

func entryToRecord(itemID string, e entry) (Record, error) {
	t, _ := time.Parse(time.RFC3339, e.LastProcessed)
	set, err := action.SetFromStrings(e.ActionsApplied)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ItemID:         itemID,
		SourceType:     e.SourceType,
		SourceName:     e.SourceName,
		ActionsApplied: set,
		LastProcessed:  t,
		Metadata:       e.Metadata,
	}, nil
}

// MarkProcessed union-merges actionsApplied into the stored record.
func (s *DocumentStore) MarkProcessed(itemID, sourceType, sourceName string, actionsApplied *action.Set, metadata map[string]any) error {
	return s.withLock(func(doc *document) (*document, error) {
		mergeRecordInto(doc, itemID, sourceType, sourceName, actionsApplied, metadata)
		return doc, nil
	})
}

func mergeRecordInto(doc *document, itemID, sourceType, sourceName string, actionsApplied *action.Set, metadata map[string]any) {
	existing, ok := doc.ProcessedMessages[itemID]
	merged := action.NewSet()
	if ok {
		if existingSet, err := action.SetFromStrings(existing.ActionsApplied); err == nil {
			merged = existingSet
		}
	}
	for _, a := range actionsApplied.Slice() {
		merged.Add(a)
	}
	mergedMeta := existing.Metadata
	if metadata != nil {
		if mergedMeta == nil {
			mergedMeta = map[string]any{}
		}
		for k, v := range metadata {
			mergedMeta[k] = v
		}
	}
	doc.ProcessedMessages[itemID] = entry{
		ActionsApplied: merged.Strings(),
		LastProcessed:  nowISO(),
		SourceType:     firstNonEmpty(sourceType, existing.SourceType),
		SourceName:     firstNonEmpty(sourceName, existing.SourceName),
		Metadata:       mergedMeta,
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// BulkUpdate applies every record in one locked read-modify-write.
func (s *DocumentStore) BulkUpdate(records []Record) error {
	return s.withLock(func(doc *document) (*document, error) {
		for _, r := range records {
			mergeRecordInto(doc, r.ItemID, r.SourceType, r.SourceName, r.ActionsApplied, r.Metadata)
		}
		return doc, nil
	})
}

// Cleanup prunes the oldest records beyond retainCount, ordered by
// LastProcessed ascending (oldest first).
func (s *DocumentStore) Cleanup(retainCount int) error {
	if retainCount <= 0 {
		return nil
	}
	return s.withLock(func(doc *document) (*document, error) {
		if len(doc.ProcessedMessages) <= retainCount {
			return nil, nil
		}
		type kv struct {
			id string
			ts string
		}
		items := make([]kv, 0, len(doc.ProcessedMessages))
		for id, e := range doc.ProcessedMessages {
			items = append(items, kv{id, e.LastProcessed})
		}
		sort.Slice(items, func(i, j int) bool { return items[i].ts < items[j].ts })

		toRemove := len(items) - retainCount
		for i := 0; i < toRemove; i++ {
			delete(doc.ProcessedMessages, items[i].id)
		}
		return doc, nil
	})
}

// Close releases the lock file handle.
func (s *DocumentStore) Close() error {
	return s.lock.Unlock()
}
