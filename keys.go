package suraksh

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/sirupsen/logrus"

	"github.com/Ayush-3103-AI/Suraksh/internal/crypto"
	"github.com/Ayush-3103-AI/Suraksh/persist"
)

// seedUsers are the principals provisioned on first bootstrap. The
// shared demo password is part of the seed data and is compared
// verbatim during Authenticate.
var seedUsers = []User{
	{ID: "U1", Name: "FieldOfficer", Org: "Police", Clearance: 1, Password: "root"},
	{ID: "U2", Name: "SeniorOfficer", Org: "Police", Clearance: 2, Password: "root"},
	{ID: "U3", Name: "Chief", Org: "Police", Clearance: 3, Password: "root"},
	{ID: "SU", Name: "SuperUser", Org: "Admin", Clearance: 4, Password: "root"},
}

// KeyRegistry owns the clearance tier keys and the user roster. Tier
// keys live in memguard enclaves and only leave them for the duration
// of a single cryptographic operation. Tier 4 (superuser) is a bypass
// role and has no key.
type KeyRegistry struct {
	store persist.Store
	log   *logrus.Logger

	mu       sync.RWMutex
	tierKeys map[int]*memguard.Enclave
	users    map[string]*User
}

// NewKeyRegistry loads or provisions tier keys and seed users from the
// store. Bootstrap is idempotent: existing keys are never rotated and
// existing users are never overwritten; only missing seed users are
// backfilled.
func NewKeyRegistry(store persist.Store, log *logrus.Logger) (*KeyRegistry, error) {
	if log == nil {
		log = logrus.New()
	}

	r := &KeyRegistry{
		store:    store,
		log:      log,
		tierKeys: make(map[int]*memguard.Enclave),
		users:    make(map[string]*User),
	}

	if err := r.bootstrapTierKeys(); err != nil {
		return nil, err
	}
	if err := r.bootstrapUsers(); err != nil {
		return nil, err
	}
	return r, nil
}

// TierKey returns the clearance key enclave for tiers 1..3.
func (r *KeyRegistry) TierKey(tier int) (*memguard.Enclave, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enclave, ok := r.tierKeys[tier]
	if !ok {
		return nil, fmt.Errorf("no clearance key for tier %d: %w", tier, ErrNotFound)
	}
	return enclave, nil
}

// User returns the user with the given ID.
func (r *KeyRegistry) User(id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	clone := *user
	return &clone, nil
}

// Users returns all users ordered by ID.
func (r *KeyRegistry) Users() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, *user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// Authenticate checks a user's credential. The comparison is
// case-sensitive; failures do not reveal whether the user exists.
func (r *KeyRegistry) Authenticate(userID, password string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok || user.Password != password {
		return nil, fmt.Errorf("authentication failed: %w", ErrAccessDenied)
	}
	clone := *user
	return &clone, nil
}

func (r *KeyRegistry) bootstrapTierKeys() error {
	exists, err := r.store.TierKeysExist()
	if err != nil {
		return fmt.Errorf("failed to check tier keys: %w", ErrStorageUnavailable)
	}

	if exists {
		record, err := r.store.LoadTierKeys()
		if err != nil {
			return fmt.Errorf("failed to load tier keys: %w", ErrStorageUnavailable)
		}
		var encoded map[string]string
		if err = json.Unmarshal(record.Data, &encoded); err != nil {
			return fmt.Errorf("failed to parse tier keys: %w", err)
		}
		for tierStr, b64 := range encoded {
			tier, err := strconv.Atoi(tierStr)
			if err != nil {
				return fmt.Errorf("invalid tier key entry %q", tierStr)
			}
			key, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return fmt.Errorf("failed to decode tier %d key: %w", tier, err)
			}
			r.tierKeys[tier] = memguard.NewEnclave(key)
		}
		return nil
	}

	encoded := make(map[string]string, TierMax)
	for tier := TierMin; tier <= TierMax; tier++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate tier %d key: %w", tier, err)
		}
		encoded[strconv.Itoa(tier)] = base64.StdEncoding.EncodeToString(key)
		// NewEnclave wipes the source buffer
		r.tierKeys[tier] = memguard.NewEnclave(key)
	}

	data, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("failed to marshal tier keys: %w", err)
	}
	if _, err = r.store.SaveTierKeys(data, ""); err != nil {
		return fmt.Errorf("failed to persist tier keys: %w", ErrStorageUnavailable)
	}

	r.log.Info("provisioned clearance tier keys")
	return nil
}

func (r *KeyRegistry) bootstrapUsers() error {
	version := ""
	record, err := r.store.LoadUsers()
	switch {
	case err == nil:
		var existing []User
		if err = json.Unmarshal(record.Data, &existing); err != nil {
			return fmt.Errorf("failed to parse users: %w", err)
		}
		for i := range existing {
			user := existing[i]
			r.users[user.ID] = &user
		}
		version = record.Version
	case errors.Is(err, os.ErrNotExist):
		// fresh vault
	default:
		return fmt.Errorf("failed to load users: %w", ErrStorageUnavailable)
	}

	changed := false
	for _, seed := range seedUsers {
		if _, ok := r.users[seed.ID]; ok {
			continue
		}
		user := seed
		public, private, err := crypto.GenerateExchangeKeyPair()
		if err != nil {
			return fmt.Errorf("failed to generate key pair for %s: %w", seed.ID, err)
		}
		user.PublicKey = hex.EncodeToString(public[:])
		user.PrivateKey = hex.EncodeToString(private[:])
		r.users[user.ID] = &user
		changed = true
		r.log.WithFields(logrus.Fields{
			"user":      user.ID,
			"clearance": user.Clearance,
		}).Info("provisioned seed user")
	}

	if !changed {
		return nil
	}
	return r.saveUsers(version)
}

func (r *KeyRegistry) saveUsers(expectedVersion string) error {
	users := make([]User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, *user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("failed to marshal users: %w", err)
	}
	if _, err = r.store.SaveUsers(data, expectedVersion); err != nil {
		return fmt.Errorf("failed to persist users: %w", ErrStorageUnavailable)
	}
	return nil
}

// exchangeKeys decodes a user's X25519 key pair.
func exchangeKeys(user *User) (public, private [32]byte, err error) {
	pub, err := hex.DecodeString(user.PublicKey)
	if err != nil || len(pub) != 32 {
		return public, private, fmt.Errorf("user %s has an invalid public key", user.ID)
	}
	priv, err := hex.DecodeString(user.PrivateKey)
	if err != nil || len(priv) != 32 {
		return public, private, fmt.Errorf("user %s has an invalid private key", user.ID)
	}
	copy(public[:], pub)
	copy(private[:], priv)
	return public, private, nil
}
