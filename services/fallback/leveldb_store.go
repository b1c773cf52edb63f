package fallback

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const sessionKeyPrefix = "s:"

// LevelDBStore persists session logs in a LevelDB database, one gob-encoded
// record per session.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens (or creates) the database at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

// NewLevelDBStore wraps an already open database.
func NewLevelDBStore(db *leveldb.DB) *LevelDBStore {
	return &LevelDBStore{db: db}
}

func (s *LevelDBStore) Save(_ context.Context, sessionID string, events []Event) error {
	b, err := encodeGob(events)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	return s.db.Put(sessionKey(sessionID), b, nil)
}

func (s *LevelDBStore) Load(_ context.Context, sessionID string) ([]Event, error) {
	b, err := s.db.Get(sessionKey(sessionID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return []Event{}, nil
	}
	if err != nil {
		return nil, err
	}
	var events []Event
	if err := decodeGob(b, &events); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

func (s *LevelDBStore) Clear(_ context.Context, sessionID string) error {
	return s.db.Delete(sessionKey(sessionID), nil)
}

// Sessions lists the ids of every persisted session.
func (s *LevelDBStore) Sessions() ([]string, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(sessionKeyPrefix)), nil)
	defer it.Release()

	var ids []string
	for it.Next() {
		ids = append(ids, string(bytes.TrimPrefix(it.Key(), []byte(sessionKeyPrefix))))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
