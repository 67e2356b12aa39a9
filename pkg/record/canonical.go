// Copyright 2025 Ukweli Project
//
// Canonical Record Serialization
// Normative byte layout hashed and signed for every record:
//
//	id (u64 BE) | timestamp (i64 BE) | previous_hash (32B)
//	| entity_id_len (u64 BE) | entity_id bytes
//	| workflow_name_len (u64 BE) | workflow_name bytes  ("name@version")
//	| action_name_len (u64 BE) | action_name bytes
//	| payload_len (u64 BE) | payload bytes
//
// Signatures are not part of this serialization; they are stored alongside.

package record

import (
	"bytes"
	"encoding/binary"
)

// Canonical returns the canonical byte serialization of the record.
// A previous hash shorter than 32 bytes is zero-padded so that malformed
// records still produce a stable (and necessarily mismatching) digest.
func (r *Record) Canonical() []byte {
	var buf bytes.Buffer

	writeUint64(&buf, r.ID)
	writeUint64(&buf, uint64(r.Timestamp))

	prev := r.PreviousHash
	if len(prev) != HashSize {
		padded := make([]byte, HashSize)
		copy(padded, prev)
		prev = padded
	}
	buf.Write(prev)

	writeBytes(&buf, []byte(r.EntityID))

	var workflowName, actionName string
	if r.Workflow != nil {
		workflowName = r.Workflow.Qualified()
		actionName = r.Workflow.Action
	}
	writeBytes(&buf, []byte(workflowName))
	writeBytes(&buf, []byte(actionName))

	writeBytes(&buf, r.Payload)

	return buf.Bytes()
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint64(buf, uint64(len(b)))
	buf.Write(b)
}
