package repositories

import (
	"chat-relay/domain"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func Test_Directory_Save_And_Resolve(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	directory := NewDirectory(db)
	alice := domain.Identity(1)

	// When a profile is saved on connect
	req.NoError(directory.SaveProfile(alice, "alice"))

	// Then the display name resolves
	name, err := directory.DisplayName(alice)
	req.NoError(err)
	req.Equal("alice", name)
}

func Test_Directory_Refreshes_Name_On_Reconnect(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	directory := NewDirectory(db)
	alice := domain.Identity(1)

	// Given an earlier connection under another name
	req.NoError(directory.SaveProfile(alice, "alice"))

	// When the identity reconnects renamed
	req.NoError(directory.SaveProfile(alice, "alice2"))

	// Then the latest name wins
	name, err := directory.DisplayName(alice)
	req.NoError(err)
	req.Equal("alice2", name)
}

func Test_Directory_Unknown_Identity(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	directory := NewDirectory(db)

	// When resolving an identity that never connected
	_, err := directory.DisplayName(domain.Identity(99))

	// Then the not-found error passes through so callers can fall back
	req.ErrorIs(err, badger.ErrKeyNotFound)
}
