// Copyright 2025 Ukweli Project
//
// Identity Registry
// In-memory mapping from user name to public key and role set. The registry
// is authoritative in memory but is itself a projection over the chain:
// user_create and user_add_role records are replayed through Apply on load,
// so role history is tamper-evident and reproducible by cold replay.

package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ukweli/ukwelidb/pkg/record"
)

// Sentinel errors for registry operations
var (
	// ErrUnknownUser is returned when a named user does not exist
	ErrUnknownUser = errors.New("unknown user")

	// ErrUserExists is returned when creating a user whose name is taken
	ErrUserExists = errors.New("user already exists")

	// ErrBadPublicKey is returned for key material of the wrong size
	ErrBadPublicKey = errors.New("invalid public key size")
)

// User holds a registered identity. The name is the stable identifier; the
// keypair is immutable once created.
type User struct {
	Name      string
	PublicKey []byte
	Roles     map[string]bool
}

// RoleList returns the user's roles as a sorted slice for display.
func (u *User) RoleList() []string {
	roles := make([]string, 0, len(u.Roles))
	for role := range u.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Registry resolves user name -> public key and user name -> roles.
//
// CONCURRENCY: mutations happen only under the ledger's writer lock (replay
// on load and admin-record application on append). The internal mutex guards
// concurrent readers against those writes.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*User)}
}

// CreateUser registers a new user with the given public key.
func (r *Registry) CreateUser(name string, publicKey []byte) error {
	if name == "" {
		return fmt.Errorf("user name must not be empty")
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: expected %d, got %d for user %q",
			ErrBadPublicKey, ed25519.PublicKeySize, len(publicKey), name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[name]; exists {
		return fmt.Errorf("%w: %s", ErrUserExists, name)
	}
	key := make([]byte, len(publicKey))
	copy(key, publicKey)
	r.users[name] = &User{
		Name:      name,
		PublicKey: key,
		Roles:     make(map[string]bool),
	}
	return nil
}

// AddRole grants a role to an existing user. Granting an already-held role
// is a no-op.
func (r *Registry) AddRole(name, role string) error {
	if role == "" {
		return fmt.Errorf("role must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownUser, name)
	}
	user.Roles[role] = true
	return nil
}

// KeyOf resolves a user name to their public key.
func (r *Registry) KeyOf(name string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, name)
	}
	key := make([]byte, len(user.PublicKey))
	copy(key, user.PublicKey)
	return key, nil
}

// RolesOf resolves a user name to their role set.
func (r *Registry) RolesOf(name string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, name)
	}
	roles := make(map[string]bool, len(user.Roles))
	for role := range user.Roles {
		roles[role] = true
	}
	return roles, nil
}

// HasRole reports whether a user holds a role. Unknown users hold no roles.
func (r *Registry) HasRole(name, role string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[name]
	return exists && user.Roles[role]
}

// User returns a copy of the named user.
func (r *Registry) User(name string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, name)
	}
	return copyUser(user), nil
}

// Users returns all registered users sorted by name.
func (r *Registry) Users() []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, copyUser(user))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Apply folds an administrative record into the registry during replay.
// Non-admin records are ignored. Genesis registers the system user from the
// genesis payload.
func (r *Registry) Apply(rec *record.Record) error {
	if rec.IsGenesis() {
		gp, err := record.ParseGenesisPayload(rec.Payload)
		if err != nil {
			return err
		}
		key, err := gp.SystemPublicKeyBytes()
		if err != nil {
			return err
		}
		return r.CreateUser(SystemUser, key)
	}

	op, ok := record.ParseAdminOp(rec.Payload)
	if !ok {
		return nil
	}
	switch op.Type {
	case record.AdminUserCreate:
		key, err := op.PublicKeyBytes()
		if err != nil {
			return err
		}
		return r.CreateUser(op.Name, key)
	case record.AdminUserAddRole:
		return r.AddRole(op.Name, op.Role)
	}
	return nil
}

func copyUser(u *User) *User {
	key := make([]byte, len(u.PublicKey))
	copy(key, u.PublicKey)
	roles := make(map[string]bool, len(u.Roles))
	for role := range u.Roles {
		roles[role] = true
	}
	return &User{Name: u.Name, PublicKey: key, Roles: roles}
}

// SystemUser is the reserved name of the database-controlled keypair that
// signs genesis and administrative records.
const SystemUser = "system"
