//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_log.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageLog interface {
	StoreMessage(record Record) error
	History(requester domain.Identity, cursor *string) ([]Record, *string, error)
}

// Record is the durable form of a delivered message. The sequence identifier
// owned by the log is the Badger key; the record itself carries the
// router-assigned timestamp that defines ordering.
type Record struct {
	ID       uuid.UUID        `json:"id"`
	Sender   domain.Identity  `json:"sender"`
	Receiver *domain.Identity `json:"receiver,omitempty"` // nil means broadcast
	Text     string           `json:"text"`
	Lang     string           `json:"lang,omitempty"`
	At       time.Time        `json:"at"`
}

// FromDelivered converts a routed message into its durable form.
func FromDelivered(msg domain.DeliveredMessage) Record {
	return Record{
		ID:       msg.ID,
		Sender:   msg.Sender,
		Receiver: msg.Receiver,
		Text:     msg.Text,
		Lang:     msg.Lang,
		At:       msg.At,
	}
}

// VisibleTo reports whether requester may read this record: own messages,
// messages addressed to them, and broadcasts.
func (r Record) VisibleTo(requester domain.Identity) bool {
	if r.Sender == requester || r.Receiver == nil {
		return true
	}
	return *r.Receiver == requester
}

type MessageLog struct {
	db       *badger.DB
	log      *slog.Logger
	pageSize *int
}

func NewMessageLog(db *badger.DB, log *slog.Logger, pageSize *int) MessageLog {
	return MessageLog{db: db, log: log, pageSize: pageSize}
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func (m MessageLog) StoreMessage(record Record) error {
	key := fmt.Sprintf("msg:%019d:%s", record.At.UnixNano(), record.ID)
	bytes, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// History retrieves the messages visible to requester using a prefix scan.
// Thanks to the padded timestamp in the key, records come back ordered by
// timestamp ascending. Collection stops once the configured page size is
// reached; the returned cursor resumes the scan after the last record and is
// nil once the scan yields nothing, so clients can detect the last page.
func (m MessageLog) History(requester domain.Identity, cursor *string) ([]Record, *string, error) {
	var records []Record
	var lastKey string

	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := "msg:"
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seekKey := prefix
		if cursor != nil {
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}
		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.pageSize != nil && len(records) == *m.pageSize {
				m.log.Debug(fmt.Sprintf("Maximum of %d records reached", *m.pageSize))
				break
			}
			item := it.Item()
			var record Record
			err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &record)
			})
			if err != nil {
				return err
			}
			if !record.VisibleTo(requester) {
				continue
			}
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if lastKey == "" {
		return records, nil, nil
	}
	return records, &lastKey, nil
}
