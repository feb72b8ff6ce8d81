package repositories

import (
	"chat-relay/domain"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Search_Finds_Indexed_Broadcast(t *testing.T) {
	req := require.New(t)
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	defer writer.Close()

	index := NewSearchIndex(writer, slog.Default())
	at := time.Now().UTC().Truncate(time.Second)
	record := Record{
		ID:     uuid.New(),
		Sender: domain.Identity(1),
		Text:   "the deployment finished without errors",
		At:     at,
	}

	// Given an indexed broadcast and an unrelated one
	req.NoError(index.Index(record))
	req.NoError(index.Index(Record{
		ID:     uuid.New(),
		Sender: domain.Identity(2),
		Text:   "lunch anyone",
		At:     at,
	}))

	// When searching for a word of the first message
	hits, err := index.Search(context.Background(), "deployment", 10)
	req.NoError(err)

	// Then exactly that message comes back with its stored fields
	req.Len(hits, 1)
	req.Equal(record.ID.String(), hits[0].ID)
	req.Equal("1", hits[0].Sender)
	req.Equal(record.Text, hits[0].Text)
	req.Greater(hits[0].Score, 0.0)
}

func Test_Search_No_Match(t *testing.T) {
	req := require.New(t)
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	defer writer.Close()

	index := NewSearchIndex(writer, slog.Default())
	req.NoError(index.Index(Record{
		ID:     uuid.New(),
		Sender: domain.Identity(1),
		Text:   "hello",
		At:     time.Now().UTC(),
	}))

	hits, err := index.Search(context.Background(), "unrelated", 10)
	req.NoError(err)
	req.Empty(hits)
}
