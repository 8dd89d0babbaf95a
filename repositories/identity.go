package repositories

import (
	"chat-sync/domain"
	"chat-sync/errors"
	"encoding/json"
	stdErrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const identityKey = "identity:current"

// IdentityRepository keeps the local participant and its session token in BadgerDB.
// There is at most one identity per database.
type IdentityRepository struct {
	db *badger.DB
}

func NewIdentityRepository(db *badger.DB) IdentityRepository {
	return IdentityRepository{db: db}
}

// GetIdentity returns errors.ErrIdentityNotFound when nobody is signed in.
func (r IdentityRepository) GetIdentity() (domain.Identity, error) {
	var identity domain.Identity
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(identityKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &identity)
		})
	})
	if stdErrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Identity{}, errors.ErrIdentityNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("read identity: %w", err)
	}
	return identity, nil
}

func (r IdentityRepository) SaveIdentity(identity domain.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(identityKey), data)
	})
}

// ClearIdentity signs out. Clearing an empty store is not an error.
func (r IdentityRepository) ClearIdentity() error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(identityKey))
	})
}
