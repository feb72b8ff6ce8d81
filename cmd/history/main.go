// Command history dumps the relay's durable message log as a table, for
// local inspection without going through the HTTP surface.
package main

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"./data/badger"`
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal(err)
	}

	dbPath := flag.String("db", cfg.BadgerFilepath, "Path to badger DB")
	user := flag.Int64("user", 0, "Only show records visible to this identity (0 shows everything)")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	color.Green.Printf("Message log at %s\n", *dbPath)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Posted", "Sender", "Receiver", "Lang", "Text"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	prefix := []byte("msg:")
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(value []byte) error {
				var record repositories.Record
				if err := json.Unmarshal(value, &record); err != nil {
					// Log the broken record and keep scanning instead of aborting
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}
				if *user != 0 && !record.VisibleTo(domain.Identity(*user)) {
					return nil
				}

				receiver := domain.BroadcastScope
				if record.Receiver != nil {
					receiver = record.Receiver.String()
				}
				table.Append([]string{
					record.At.Format("2006-01-02 15:04:05"),
					record.Sender.String(),
					receiver,
					record.Lang,
					record.Text,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}
