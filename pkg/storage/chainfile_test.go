// Copyright 2025 Ukweli Project
//
// Chain File Store Tests

package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ukweli/ukwelidb/pkg/record"
)

func sampleRecord(id uint64, payload string) *record.Record {
	rec := &record.Record{
		ID:           id,
		Timestamp:    int64(1000 + id),
		PreviousHash: bytes.Repeat([]byte{byte(id)}, record.HashSize),
		EntityID:     "E1",
		Payload:      []byte(payload),
		Signatures: []record.Signature{
			{Signer: "thabo", Signature: bytes.Repeat([]byte{1}, record.SignatureSize)},
		},
	}
	rec.SealHash()
	return rec
}

func TestChainFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cf, err := OpenChainFile(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer cf.Close()

	want := []*record.Record{sampleRecord(0, "a"), sampleRecord(1, "b")}
	for _, rec := range want {
		if err := cf.Append(rec); err != nil {
			t.Fatalf("append %d: %v", rec.ID, err)
		}
	}

	got, err := cf.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("record count: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("record %d id mismatch", i)
		}
		if !bytes.Equal(got[i].Payload, want[i].Payload) {
			t.Errorf("record %d payload mismatch", i)
		}
		// Byte stability: the digest survives persistence
		if got[i].Digest() != want[i].Digest() {
			t.Errorf("record %d digest changed across persistence", i)
		}
		if !got[i].HashValid() {
			t.Errorf("record %d hash invalid after re-read", i)
		}
	}
}

func TestChainFile_ReopenSeesExistingRecords(t *testing.T) {
	dir := t.TempDir()
	cf, err := OpenChainFile(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cf.Append(sampleRecord(0, "a"))
	cf.Close()

	cf2, err := OpenChainFile(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer cf2.Close()

	got, err := cf2.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(got) != 1 || got[0].ID != 0 {
		t.Errorf("reopened store lost records: %+v", got)
	}

	// Appends continue after the existing content
	if err := cf2.Append(sampleRecord(1, "b")); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	got, _ = cf2.ReadAll()
	if len(got) != 2 {
		t.Errorf("record count after reopen append: got %d, want 2", len(got))
	}
}

func TestChainFile_Closed(t *testing.T) {
	cf, err := OpenChainFile(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cf.Close()

	if err := cf.Append(sampleRecord(0, "a")); err == nil {
		t.Error("append on closed store succeeded")
	}
	if _, err := cf.ReadAll(); err == nil {
		t.Error("read on closed store succeeded")
	}
	// Double close is fine
	if err := cf.Close(); err != nil {
		t.Errorf("double close: %v", err)
	}
}

func TestChainFile_CorruptLine(t *testing.T) {
	dir := t.TempDir()
	cf, err := OpenChainFile(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer cf.Close()
	cf.Append(sampleRecord(0, "a"))

	path := filepath.Join(dir, ChainFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("not json\n")
	f.Close()

	if _, err := cf.ReadAll(); err == nil {
		t.Error("corrupt chain file read without error")
	}
}
