// Copyright 2025 Ukweli Project
//
// Identity Registry Tests

package identity

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ukweli/ukwelidb/pkg/record"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestCreateUser_And_Lookup(t *testing.T) {
	r := NewRegistry()
	if err := r.CreateUser("thabo", testKey(1)); err != nil {
		t.Fatalf("create user: %v", err)
	}

	key, err := r.KeyOf("thabo")
	if err != nil {
		t.Fatalf("key of: %v", err)
	}
	if !bytes.Equal(key, testKey(1)) {
		t.Error("public key mismatch")
	}

	if err := r.CreateUser("thabo", testKey(2)); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate create: got %v, want ErrUserExists", err)
	}
	if _, err := r.KeyOf("nobody"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("unknown user lookup: got %v, want ErrUnknownUser", err)
	}
}

func TestCreateUser_BadKey(t *testing.T) {
	r := NewRegistry()
	if err := r.CreateUser("short", make([]byte, 16)); !errors.Is(err, ErrBadPublicKey) {
		t.Errorf("short key: got %v, want ErrBadPublicKey", err)
	}
}

func TestRoles(t *testing.T) {
	r := NewRegistry()
	if err := r.AddRole("ghost", "land_officer"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("role on absent user: got %v, want ErrUnknownUser", err)
	}

	r.CreateUser("thabo", testKey(1))
	if err := r.AddRole("thabo", "land_officer"); err != nil {
		t.Fatalf("add role: %v", err)
	}
	if err := r.AddRole("thabo", "land_officer"); err != nil {
		t.Fatalf("re-grant role: %v", err)
	}

	roles, err := r.RolesOf("thabo")
	if err != nil {
		t.Fatalf("roles of: %v", err)
	}
	if !roles["land_officer"] {
		t.Error("granted role missing")
	}
	if !r.HasRole("thabo", "land_officer") {
		t.Error("HasRole false for granted role")
	}
	if r.HasRole("thabo", "finance_approver") {
		t.Error("HasRole true for ungranted role")
	}
	if r.HasRole("ghost", "land_officer") {
		t.Error("HasRole true for unknown user")
	}
}

func TestApply_ReplaysAdminRecords(t *testing.T) {
	r := NewRegistry()

	genesisPayload, err := record.NewGenesisPayload("db", 1, testKey(9))
	if err != nil {
		t.Fatalf("genesis payload: %v", err)
	}
	if err := r.Apply(&record.Record{ID: 0, Payload: genesisPayload}); err != nil {
		t.Fatalf("apply genesis: %v", err)
	}
	if _, err := r.KeyOf(SystemUser); err != nil {
		t.Fatalf("system user not registered: %v", err)
	}

	createPayload, _ := record.NewUserCreatePayload("thabo", testKey(1))
	if err := r.Apply(&record.Record{ID: 1, Payload: createPayload}); err != nil {
		t.Fatalf("apply user_create: %v", err)
	}
	rolePayload, _ := record.NewAddRolePayload("thabo", "land_officer")
	if err := r.Apply(&record.Record{ID: 2, Payload: rolePayload}); err != nil {
		t.Fatalf("apply user_add_role: %v", err)
	}

	if !r.HasRole("thabo", "land_officer") {
		t.Error("replayed role grant not visible")
	}

	// Opaque payloads are ignored
	if err := r.Apply(&record.Record{ID: 3, Payload: []byte("p1")}); err != nil {
		t.Errorf("opaque payload errored: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("user count mismatch: got %d, want 2", r.Len())
	}
}

func TestUsers_SortedCopies(t *testing.T) {
	r := NewRegistry()
	r.CreateUser("zola", testKey(1))
	r.CreateUser("abeni", testKey(2))

	users := r.Users()
	if len(users) != 2 || users[0].Name != "abeni" || users[1].Name != "zola" {
		t.Errorf("unexpected user order: %+v", users)
	}

	// Mutating the copy must not touch the registry
	users[0].Roles["intruder"] = true
	if r.HasRole("abeni", "intruder") {
		t.Error("returned user shares state with registry")
	}
}
