package schedule

import (
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"

	"powersched/internal/types"
)

// Badger key layout. Schedules and notes are small and stored as plain JSON;
// the snapshot duplicates the whole schedule map and is zstd-compressed.
var (
	keySchedules = []byte("powersched:schedules")
	keyNotes     = []byte("powersched:notes")
	keySnapshot  = []byte("powersched:snapshot")
)

// BadgerStore is the LocalStore implementation backed by an embedded badger
// database. One directory per user profile; the database is opened for the
// lifetime of the session.
type BadgerStore struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// OpenBadger opens (creating if needed) the local cache at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening local store at %s: %w", dir, err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing snapshot compressor: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing snapshot decompressor: %w", err)
	}
	return &BadgerStore{db: db, encoder: enc, decoder: dec}, nil
}

func (b *BadgerStore) Close() error {
	b.encoder.Close()
	b.decoder.Close()
	return b.db.Close()
}

func (b *BadgerStore) SaveSchedules(m types.ScheduleMap) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding schedules: %w", err)
	}
	return b.set(keySchedules, raw)
}

// LoadSchedules returns the persisted map, nil when nothing was stored yet.
// Legacy single-entry payloads are upgraded transparently on the way in.
func (b *BadgerStore) LoadSchedules() (types.ScheduleMap, error) {
	raw, err := b.get(keySchedules)
	if err != nil || raw == nil {
		return nil, err
	}
	m, err := decodeScheduleMap(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding schedules: %w", err)
	}
	return m, nil
}

func (b *BadgerStore) SaveNotes(notes map[string][]types.Note) error {
	raw, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("encoding notes: %w", err)
	}
	return b.set(keyNotes, raw)
}

func (b *BadgerStore) LoadNotes() (map[string][]types.Note, error) {
	raw, err := b.get(keyNotes)
	if err != nil || raw == nil {
		return nil, err
	}
	var notes map[string][]types.Note
	if err := json.Unmarshal(raw, &notes); err != nil {
		return nil, fmt.Errorf("decoding notes: %w", err)
	}
	return notes, nil
}

func (b *BadgerStore) SaveSnapshot(m types.ScheduleMap) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return b.set(keySnapshot, b.encoder.EncodeAll(raw, nil))
}

func (b *BadgerStore) LoadSnapshot() (types.ScheduleMap, error) {
	blob, err := b.get(keySnapshot)
	if err != nil || blob == nil {
		return nil, err
	}
	raw, err := b.decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	m, err := decodeScheduleMap(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return m, nil
}

func (b *BadgerStore) set(key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// get returns nil, nil when the key is absent.
func (b *BadgerStore) get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return out, err
}
