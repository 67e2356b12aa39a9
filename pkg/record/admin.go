// Copyright 2025 Ukweli Project
//
// Administrative Record Payloads
// User creation and role grants are themselves chain records, so the identity
// registry is a projection over the chain and role history is tamper-evident.

package record

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Administrative operation types carried in record payloads.
const (
	AdminUserCreate  = "user_create"
	AdminUserAddRole = "user_add_role"
)

// AdminOp is the payload document of an administrative record.
type AdminOp struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	PublicKey string `json:"public_key,omitempty"` // hex, user_create only
	Role      string `json:"role,omitempty"`       // user_add_role only
}

// ParseAdminOp attempts to interpret a payload as an administrative operation.
// Non-admin payloads are opaque to the core; they simply return ok=false.
func ParseAdminOp(payload []byte) (*AdminOp, bool) {
	var op AdminOp
	if err := json.Unmarshal(payload, &op); err != nil {
		return nil, false
	}
	if op.Type != AdminUserCreate && op.Type != AdminUserAddRole {
		return nil, false
	}
	if op.Name == "" {
		return nil, false
	}
	return &op, true
}

// PublicKeyBytes decodes the hex-encoded public key of a user_create payload.
func (op *AdminOp) PublicKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(op.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex for user %q: %w", op.Name, err)
	}
	return key, nil
}

// NewUserCreatePayload builds the payload for a user_create record.
func NewUserCreatePayload(name string, publicKey []byte) ([]byte, error) {
	return json.Marshal(&AdminOp{
		Type:      AdminUserCreate,
		Name:      name,
		PublicKey: hex.EncodeToString(publicKey),
	})
}

// NewAddRolePayload builds the payload for a user_add_role record.
func NewAddRolePayload(name, role string) ([]byte, error) {
	return json.Marshal(&AdminOp{
		Type: AdminUserAddRole,
		Name: name,
		Role: role,
	})
}

// GenesisPayload is the payload document of record 0. It carries the system
// public key so that cold replay of the chain is self-contained.
type GenesisPayload struct {
	Name            string `json:"name"`
	CreatedAtMS     int64  `json:"created_at_ms"`
	SystemPublicKey string `json:"system_public_key"` // hex
}

// NewGenesisPayload builds the payload for the genesis record.
func NewGenesisPayload(name string, createdAtMS int64, systemPublicKey []byte) ([]byte, error) {
	return json.Marshal(&GenesisPayload{
		Name:            name,
		CreatedAtMS:     createdAtMS,
		SystemPublicKey: hex.EncodeToString(systemPublicKey),
	})
}

// ParseGenesisPayload decodes the payload of record 0.
func ParseGenesisPayload(payload []byte) (*GenesisPayload, error) {
	var gp GenesisPayload
	if err := json.Unmarshal(payload, &gp); err != nil {
		return nil, fmt.Errorf("failed to parse genesis payload: %w", err)
	}
	if gp.SystemPublicKey == "" {
		return nil, fmt.Errorf("genesis payload missing system public key")
	}
	return &gp, nil
}

// SystemPublicKeyBytes decodes the hex-encoded system public key.
func (gp *GenesisPayload) SystemPublicKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(gp.SystemPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid system public key hex: %w", err)
	}
	return key, nil
}
