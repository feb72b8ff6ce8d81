//go:generate go run go.uber.org/mock/mockgen -source=directory.go -destination=../mocks/mock_directory.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IDirectory interface {
	SaveProfile(id domain.Identity, name string) error
	DisplayName(id domain.Identity) (string, error)
}

// Directory maps numeric identities to their display names. Identities are
// immutable per session; names are refreshed on every connect so a rename
// shows up on the next connection without touching the registry.
type Directory struct {
	db *badger.DB
}

func NewDirectory(db *badger.DB) Directory {
	return Directory{db: db}
}

type profile struct {
	Name   string    `json:"name"`
	SeenAt time.Time `json:"seen_at"`
}

func directoryKey(id domain.Identity) []byte {
	return []byte(fmt.Sprintf("user:%d", id))
}

func (d Directory) SaveProfile(id domain.Identity, name string) error {
	bytes, err := json.Marshal(profile{Name: name, SeenAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(directoryKey(id), bytes)
	})
}

// DisplayName resolves a stored name. badger.ErrKeyNotFound is passed
// through for identities that never connected; callers fall back to the
// numeric form.
func (d Directory) DisplayName(id domain.Identity) (string, error) {
	var p profile
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(directoryKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &p)
		})
	})
	if err != nil {
		return "", err
	}
	return p.Name, nil
}
