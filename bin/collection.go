package main

import (
	"context"
	"fmt"

	"github.com/Velocidex/ordereddict"
	"github.com/dustin/go-humanize"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/flowsched/collections"
	"www.velocidex.com/golang/flowsched/datastore"
	"www.velocidex.com/golang/flowsched/utils"
)

var (
	collection_command = app.Command("collection", "Inspect and modify collections.")

	collection_add     = collection_command.Command("add", "Append records to a collection.")
	collection_add_id  = collection_add.Arg("id", "The collection id.").Required().String()
	collection_add_arg = collection_add.Arg("records", "Records to add.").Required().Strings()

	collection_ls     = collection_command.Command("ls", "List the records in a collection.")
	collection_ls_id  = collection_ls.Arg("id", "The collection id.").Required().String()
	collection_ls_off = collection_ls.Flag("offset", "Start at this record.").Default("0").Int64()
	collection_ls_max = collection_ls.Flag("count", "Show at most this many records.").Default("100").Int64()

	collection_len    = collection_command.Command("len", "Count the records in a collection.")
	collection_len_id = collection_len.Arg("id", "The collection id.").Required().String()

	collection_at     = collection_command.Command("at", "Show the record at an index.")
	collection_at_id  = collection_at.Arg("id", "The collection id.").Required().String()
	collection_at_idx = collection_at.Arg("index", "The record number.").Required().Int64()

	collection_reindex    = collection_command.Command("reindex", "Bring the sparse index up to date.")
	collection_reindex_id = collection_reindex.Arg("id", "The collection id.").Required().String()
)

func openCollection(collection_id string) (*collections.Collection, func()) {
	config_obj := load_config()

	db, err := datastore.GetDataStore(config_obj)
	kingpin.FatalIfError(err, "Unable to open datastore")

	return collections.NewCollection(config_obj, db, utils.RealClock{},
		collection_id, nil), db.Close
}

func itemRow(ordinal int64, item *collections.Item) *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("Index", ordinal).
		Set("Key", item.Key.String()).
		Set("Time", humanTime(item.Key.Timestamp)).
		Set("Size", humanize.Bytes(uint64(len(item.Value)))).
		Set("Value", string(item.Value))
}

func doCollectionAdd() error {
	collection, closer := openCollection(*collection_add_id)
	defer closer()

	for _, record := range *collection_add_arg {
		key, err := collection.Add([]byte(record))
		if err != nil {
			return err
		}
		fmt.Println(key.String())
	}
	return nil
}

func doCollectionLs() error {
	collection, closer := openCollection(*collection_ls_id)
	defer closer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rows := []*ordereddict.Dict{}
	ordinal := *collection_ls_off
	for item := range collection.GenerateItems(ctx, ordinal) {
		if int64(len(rows)) >= *collection_ls_max {
			break
		}
		rows = append(rows, itemRow(ordinal, item))
		ordinal++
	}

	return print_rows(rows)
}

func doCollectionLen() error {
	collection, closer := openCollection(*collection_len_id)
	defer closer()

	length, err := collection.Length(context.Background())
	if err != nil {
		return err
	}

	fmt.Println(length)
	return nil
}

func doCollectionAt() error {
	collection, closer := openCollection(*collection_at_id)
	defer closer()

	item, err := collection.At(context.Background(), *collection_at_idx)
	if err != nil {
		return err
	}

	return print_rows([]*ordereddict.Dict{itemRow(*collection_at_idx, item)})
}

func doCollectionReindex() error {
	collection, closer := openCollection(*collection_reindex_id)
	defer closer()

	err := collection.UpdateIndex(context.Background())
	if err != nil {
		return err
	}

	index, err := collection.Index()
	if err != nil {
		return err
	}

	fmt.Printf("Collection %v has %v index entries\n",
		collection.Id(), len(index))
	return nil
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		var err error

		switch command {
		case collection_add.FullCommand():
			err = doCollectionAdd()

		case collection_ls.FullCommand():
			err = doCollectionLs()

		case collection_len.FullCommand():
			err = doCollectionLen()

		case collection_at.FullCommand():
			err = doCollectionAt()

		case collection_reindex.FullCommand():
			err = doCollectionReindex()

		default:
			return false
		}

		kingpin.FatalIfError(err, command)
		return true
	})
}
