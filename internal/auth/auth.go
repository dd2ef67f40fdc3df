// Package auth provides API authentication for the Sendaka decision service.
//
// Authentication model:
// - Every caller presents an API key; keys are issued by senior admins.
// - A key is bound at issuance to a subject, a role, and (for regional
//   managers) a region. The key is the only source of role/region claims:
//   handlers never read them from request metadata.
// - Keys are stored as SHA-256 hashes; the raw key is shown exactly once.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sendaka/sendaka/internal/access"
)

// Errors
var (
	ErrNoAPIKey       = errors.New("API key required")
	ErrInvalidAPIKey  = errors.New("invalid or expired API key")
	ErrKeyNotFound    = errors.New("API key not found")
	ErrInvalidRole    = errors.New("auth: unknown role")
	ErrRegionRequired = errors.New("auth: regional_manager keys require a region")
)

// APIKey represents an issued API key and the identity claims bound to it.
type APIKey struct {
	ID        string      `json:"id"`
	Hash      string      `json:"-"` // SHA256 hash of key (stored)
	SubjectID string      `json:"subjectId"` // staff member or service this key belongs to
	Role      access.Role `json:"role"`
	RegionID  string      `json:"regionId,omitempty"` // set for regional_manager keys
	Name      string      `json:"name"`               // friendly name
	CreatedAt time.Time   `json:"createdAt"`
	LastUsed  time.Time   `json:"lastUsed,omitempty"`
	ExpiresAt *time.Time  `json:"expiresAt,omitempty"`
	Revoked   bool        `json:"revoked"`
}

// Caller returns the access-control identity carried by this key.
func (k *APIKey) Caller() access.Caller {
	return access.Caller{Role: k.Role, RegionID: k.RegionID}
}

// Store persists API keys
type Store interface {
	Create(ctx context.Context, key *APIKey) error
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
	GetBySubject(ctx context.Context, subjectID string) ([]*APIKey, error)
	Update(ctx context.Context, key *APIKey) error
	Delete(ctx context.Context, id string) error
}

// Manager handles key issuance and validation
type Manager struct {
	store Store
}

// NewManager creates a new auth manager
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// IssueKey creates a new API key bound to a subject, role, and region.
// Returns the raw key (shown once) and the stored metadata. A key for
// regional_manager without a region is refused here, at issuance, so the
// region-scope enforcement downstream never sees an unassigned manager
// except through data drift.
func (m *Manager) IssueKey(ctx context.Context, subjectID string, role access.Role, regionID, name string, expiresAt *time.Time) (rawKey string, key *APIKey, err error) {
	if !access.ValidRole(role) {
		return "", nil, ErrInvalidRole
	}
	if role == access.RoleRegionalManager && regionID == "" {
		return "", nil, ErrRegionRequired
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}

	rawKey = "sk_" + hex.EncodeToString(b)

	key = &APIKey{
		ID:        "ak_" + hex.EncodeToString(b[:8]),
		Hash:      hashKey(rawKey),
		SubjectID: subjectID,
		Role:      role,
		RegionID:  regionID,
		Name:      name,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	if err := m.store.Create(ctx, key); err != nil {
		return "", nil, err
	}

	return rawKey, key, nil
}

// SeedKey registers a caller-supplied raw key as a super_admin credential.
// Used once at startup on fresh deployments so operators can reach the admin
// API before any keys exist. No-op if the key is already registered.
func (m *Manager) SeedKey(ctx context.Context, rawKey string) (*APIKey, error) {
	if !strings.HasPrefix(rawKey, "sk_") {
		return nil, ErrInvalidAPIKey
	}

	hash := hashKey(rawKey)
	if existing, err := m.store.GetByHash(ctx, hash); err == nil {
		return existing, nil
	}

	key := &APIKey{
		ID:        "ak_" + hashKey(rawKey)[:16],
		Hash:      hash,
		SubjectID: "bootstrap",
		Role:      access.RoleSuperAdmin,
		Name:      "Bootstrap key",
		CreatedAt: time.Now(),
	}
	if err := m.store.Create(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ValidateKey validates an API key and returns the key metadata
func (m *Manager) ValidateKey(ctx context.Context, rawKey string) (*APIKey, error) {
	if rawKey == "" {
		return nil, ErrNoAPIKey
	}

	rawKey = strings.TrimPrefix(rawKey, "Bearer ")
	rawKey = strings.TrimSpace(rawKey)

	if !strings.HasPrefix(rawKey, "sk_") {
		return nil, ErrInvalidAPIKey
	}

	hash := hashKey(rawKey)
	key, err := m.store.GetByHash(ctx, hash)
	if err != nil {
		return nil, ErrInvalidAPIKey
	}

	if key.Revoked {
		return nil, ErrInvalidAPIKey
	}

	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return nil, ErrInvalidAPIKey
	}

	// A stored key whose role fell out of the closed set (bad backfill,
	// manual edit) must not authenticate.
	if !access.ValidRole(key.Role) {
		return nil, ErrInvalidAPIKey
	}

	// Update last used (fire and forget)
	go func() {
		key.LastUsed = time.Now()
		_ = m.store.Update(context.Background(), key)
	}()

	return key, nil
}

// ListKeys returns all keys for a subject
func (m *Manager) ListKeys(ctx context.Context, subjectID string) ([]*APIKey, error) {
	return m.store.GetBySubject(ctx, subjectID)
}

// RevokeKey revokes an API key belonging to the given subject
func (m *Manager) RevokeKey(ctx context.Context, keyID, subjectID string) error {
	keys, err := m.store.GetBySubject(ctx, subjectID)
	if err != nil {
		return err
	}

	for _, k := range keys {
		if k.ID == keyID {
			k.Revoked = true
			return m.store.Update(ctx, k)
		}
	}

	return ErrKeyNotFound
}

func hashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKey // by ID
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]*APIKey),
	}
}

func (s *MemoryStore) Create(ctx context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = key
	return nil
}

func (s *MemoryStore) GetByHash(ctx context.Context, hash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.Hash == hash {
			return k, nil
		}
	}
	return nil, ErrKeyNotFound
}

func (s *MemoryStore) GetBySubject(ctx context.Context, subjectID string) ([]*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*APIKey
	for _, k := range s.keys {
		if k.SubjectID == subjectID {
			result = append(result, k)
		}
	}
	return result, nil
}

func (s *MemoryStore) Update(ctx context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = key
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, id)
	return nil
}
