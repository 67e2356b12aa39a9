// Copyright 2025 Ukweli Project
//
// Chain File Store
// Default persistence backend: one JSON document per line, appended to a
// single chain file. Appends are fsynced before success is reported, so a
// successful append is durable before the record is observable.

package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ukweli/ukwelidb/pkg/record"
)

// ChainFileName is the name of the chain file inside a database directory.
const ChainFileName = "chain.db"

// ChainFile is a file-backed Store. It holds the file open in append mode
// for the lifetime of the store; reads re-open the file so that verify sees
// what is actually on disk.
type ChainFile struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenChainFile opens (or creates) the chain file inside dir.
func OpenChainFile(dir string) (*ChainFile, error) {
	path := filepath.Join(dir, ChainFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain file %s: %w", path, err)
	}
	return &ChainFile{path: path, file: file}, nil
}

// Path returns the chain file path.
func (c *ChainFile) Path() string {
	return c.path
}

// ReadAll implements Store.ReadAll
func (c *ChainFile) ReadAll() ([]*record.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil, ErrClosed
	}

	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain file for read: %w", err)
	}
	defer f.Close()

	var records []*record.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec record.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse chain file line %d: %w", line, err)
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chain file: %w", err)
	}
	return records, nil
}

// Append implements Store.Append
func (c *ChainFile) Append(rec *record.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return ErrClosed
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %d: %w", rec.ID, err)
	}
	b = append(b, '\n')
	if _, err := c.file.Write(b); err != nil {
		return fmt.Errorf("failed to write record %d: %w", rec.ID, err)
	}
	if err := c.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync chain file: %w", err)
	}
	return nil
}

// Flush implements Store.Flush
func (c *ChainFile) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return ErrClosed
	}
	if err := c.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync chain file: %w", err)
	}
	return nil
}

// Close implements Store.Close
func (c *ChainFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	if err != nil {
		return fmt.Errorf("failed to close chain file: %w", err)
	}
	return nil
}
