//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_search_index.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
)

type ISearchIndex interface {
	Index(record Record) error
	Search(ctx context.Context, terms string, limit int) ([]SearchHit, error)
}

type SearchHit struct {
	ID     string    `json:"id"`
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
	Score  float64   `json:"score"`
}

// SearchIndex is a Bluge full-text index over broadcast messages. Indexing
// shares the message log's failure policy: an index error is reported, never
// fatal to delivery.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

func (s *SearchIndex) Index(record Record) error {
	doc := bluge.NewDocument(record.ID.String()).
		AddField(bluge.NewTextField("text", record.Text).StoreValue()).
		AddField(bluge.NewKeywordField("sender", record.Sender.String()).StoreValue()).
		AddField(bluge.NewDateTimeField("at", record.At).StoreValue())
	return s.writer.Update(doc.ID(), doc)
}

func (s *SearchIndex) Search(ctx context.Context, terms string, limit int) ([]SearchHit, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	query := bluge.NewMatchQuery(terms).SetField("text")
	request := bluge.NewTopNSearch(limit, query)
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	match, err := iterator.Next()
	for err == nil && match != nil {
		hit := SearchHit{Score: match.Score}
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.ID = string(value)
			case "sender":
				hit.Sender = string(value)
			case "text":
				hit.Text = string(value)
			case "at":
				if at, dateErr := bluge.DecodeDateTime(value); dateErr == nil {
					hit.At = at
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}
