// Copyright 2025 Ukweli Project
//
// KV Store Adapter
// Wraps a CometBFT dbm.DB so the chain can be persisted in a key-value
// backend instead of the flat chain file. Selected with storage backend
// "kvdb"; the memdb variant backs tests.

package kvdb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/ukweli/ukwelidb/pkg/record"
)

// KV key layout
var (
	keyRecordPrefix = []byte("chain:record:") // + big-endian id -> record JSON
	keyChainLen     = []byte("chain:len")     // -> big-endian record count
)

// recordKey generates the KV key for a specific record id.
func recordKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return append(append([]byte{}, keyRecordPrefix...), b...)
}

// Adapter exposes a dbm.DB as a storage.Store.
type Adapter struct {
	db dbm.DB
}

// NewAdapter creates a new Adapter for the given underlying DB.
func NewAdapter(db dbm.DB) *Adapter {
	return &Adapter{db: db}
}

// OpenGoLevelDB opens a goleveldb-backed adapter rooted at dir.
func OpenGoLevelDB(name, dir string) (*Adapter, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open kv backend: %w", err)
	}
	return NewAdapter(db), nil
}

// ReadAll implements storage.Store.ReadAll
func (a *Adapter) ReadAll() ([]*record.Record, error) {
	n, err := a.length()
	if err != nil {
		return nil, err
	}
	records := make([]*record.Record, 0, n)
	for id := uint64(0); id < n; id++ {
		v, err := a.db.Get(recordKey(id))
		if err != nil {
			return nil, fmt.Errorf("failed to get record %d: %w", id, err)
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("record %d missing from kv store", id)
		}
		var rec record.Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse record %d: %w", id, err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Append implements storage.Store.Append
func (a *Adapter) Append(rec *record.Record) error {
	n, err := a.length()
	if err != nil {
		return err
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %d: %w", rec.ID, err)
	}

	// SetSync for durable writes; the length key is the commit point.
	if err := a.db.SetSync(recordKey(rec.ID), b); err != nil {
		return fmt.Errorf("failed to set record %d: %w", rec.ID, err)
	}
	lb := make([]byte, 8)
	binary.BigEndian.PutUint64(lb, n+1)
	if err := a.db.SetSync(keyChainLen, lb); err != nil {
		return fmt.Errorf("failed to set chain length: %w", err)
	}
	return nil
}

// Flush implements storage.Store.Flush. SetSync already syncs each write.
func (a *Adapter) Flush() error {
	return nil
}

// Close implements storage.Store.Close
func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) length() (uint64, error) {
	v, err := a.db.Get(keyChainLen)
	if err != nil {
		return 0, fmt.Errorf("failed to get chain length: %w", err)
	}
	if len(v) == 0 {
		return 0, nil
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("invalid chain length data: expected 8 bytes, got %d", len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}
