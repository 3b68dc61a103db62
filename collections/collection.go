/*
   Velociraptor - Hunting Evil
   Copyright (C) 2019 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
// A collection is an append only log of records stored in the
// datastore, ordered by (timestamp, suffix).
//
// An indexed collection also keeps a sparse index mapping every
// INDEX_SPACING'th record number to its key. The index allows
// counting and random access without scanning the whole
// collection. It is written lazily and only for records older than
// INDEX_WRITE_DELAY, since a late write at an earlier timestamp
// would change the record number of everything after it.
package collections

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/constants"
	"www.velocidex.com/golang/flowsched/datastore"
	"www.velocidex.com/golang/flowsched/logging"
	"www.velocidex.com/golang/flowsched/paths"
	"www.velocidex.com/golang/flowsched/utils"
)

var (
	recordsAddedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowsched_collection_records_added",
		Help: "Number of records added to collections.",
	})

	indexEntriesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowsched_collection_index_entries_written",
		Help: "Number of sparse index entries written.",
	})
)

type Collection struct {
	mu sync.Mutex

	config_obj    *config.Config
	db            datastore.DataStore
	clock         utils.Clock
	collection_id string
	path_manager  *paths.CollectionPathManager

	// May be nil, in which case the collection is only indexed
	// when read.
	updater *IndexUpdater

	// Record number -> key. Always contains the sentinel entry 0
	// once loaded.
	index        map[int64]Key
	max_indexed  int64
	index_loaded bool
}

func NewCollection(
	config_obj *config.Config,
	db datastore.DataStore,
	clock utils.Clock,
	collection_id string,
	updater *IndexUpdater) *Collection {
	return &Collection{
		config_obj:    config_obj,
		db:            db,
		clock:         clock,
		collection_id: collection_id,
		path_manager:  paths.NewCollectionPathManager(collection_id),
		updater:       updater,
	}
}

func (self *Collection) Id() string {
	return self.collection_id
}

func (self *Collection) Add(payload []byte) (Key, error) {
	return self.AddWithKey(payload, Key{})
}

// Store the payload at the key. A zero timestamp means now and a
// zero suffix means a random one.
func (self *Collection) AddWithKey(payload []byte, key Key) (Key, error) {
	if key.Timestamp == 0 {
		key.Timestamp = utils.Microseconds(self.clock.Now())
	}

	if key.Suffix == 0 {
		key.Suffix = uint32(rand.Intn(constants.MAX_SUFFIX)) + 1
	}

	if key.Timestamp < 0 || key.Suffix > constants.MAX_SUFFIX {
		return Key{}, errors.WithMessage(utils.InvalidArgError,
			fmt.Sprintf("invalid collection key %v", key))
	}

	err := self.db.Set(self.config_obj,
		self.path_manager.Record(key.Timestamp, key.Suffix),
		constants.COLLECTION_ATTRIBUTE, payload, key.Timestamp)
	if err != nil {
		return Key{}, err
	}
	recordsAddedCounter.Inc()

	if self.updater != nil &&
		rand.Int63n(self.config_obj.IndexSpacing()) == 0 {
		self.updater.Enqueue(self.collection_id)
	}

	return key, nil
}

// Scans the collection calling cb for each record in order until it
// returns false. Records with a malformed key end the scan.
func (self *Collection) scan(ctx context.Context,
	after *Key, max_records int, cb func(item *Item) bool) error {
	after_subject := ""
	if after != nil {
		after_subject = self.path_manager.Record(after.Timestamp, after.Suffix)
	}

	count := 0
	for {
		page_size := constants.COLLECTION_PAGE_SIZE
		if max_records > 0 && max_records-count < page_size {
			page_size = max_records - count
		}

		records, err := self.db.ScanAttribute(self.config_obj,
			self.path_manager.RecordsPrefix(),
			constants.COLLECTION_ATTRIBUTE, after_subject, page_size)
		if err != nil {
			return err
		}

		for _, record := range records {
			if ctx.Err() != nil {
				return nil
			}

			ts, suffix, ok := self.path_manager.ParseRecord(record.Subject)
			if !ok {
				return nil
			}

			if !cb(&Item{Key: Key{Timestamp: ts, Suffix: suffix},
				Value: record.Value}) {
				return nil
			}
			count++
		}

		if len(records) < page_size ||
			(max_records > 0 && count >= max_records) {
			return nil
		}
		after_subject = records[len(records)-1].Subject
	}
}

// Lazily produce the records in key order.
func (self *Collection) Scan(
	ctx context.Context, options ScanOptions) <-chan *Item {
	output := make(chan *Item)

	go func() {
		defer close(output)

		err := self.scan(ctx, options.After, options.MaxRecords,
			func(item *Item) bool {
				select {
				case <-ctx.Done():
					return false
				case output <- item:
					return true
				}
			})
		if err != nil {
			logger := logging.GetLogger(self.config_obj, &logging.GenericComponent)
			logger.Error("Collection %v: Scan: %v", self.collection_id, err)
		}
	}()

	return output
}

// Lookup records by key. Keys that are not stored are skipped.
func (self *Collection) MultiResolve(keys []Key) ([]*Item, error) {
	subjects := make([]string, 0, len(keys))
	for _, k := range keys {
		subjects = append(subjects,
			self.path_manager.Record(k.Timestamp, k.Suffix))
	}

	records, err := self.db.MultiResolve(self.config_obj,
		subjects, constants.COLLECTION_ATTRIBUTE)
	if err != nil {
		return nil, err
	}

	result := make([]*Item, 0, len(records))
	for _, record := range records {
		ts, suffix, ok := self.path_manager.ParseRecord(record.Subject)
		if !ok {
			continue
		}
		result = append(result, &Item{
			Key:   Key{Timestamp: ts, Suffix: suffix},
			Value: record.Value,
		})
	}
	return result, nil
}

// Removes all the records and the index.
func (self *Collection) Delete() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	err := self.db.DeletePrefix(self.config_obj,
		self.path_manager.RecordsPrefix())
	if err != nil {
		return err
	}

	err = self.db.DeleteSubject(self.config_obj, self.path_manager.Path())
	if err != nil {
		return err
	}

	self.index = nil
	self.max_indexed = 0
	self.index_loaded = false
	return nil
}

func (self *Collection) GenerateItems(
	ctx context.Context, offset int64) <-chan *Item {
	output := make(chan *Item)

	go func() {
		defer close(output)

		_, err := self.indexedScan(ctx, offset, 0,
			func(ordinal int64, item *Item) bool {
				select {
				case <-ctx.Done():
					return false
				case output <- item:
					return true
				}
			})
		if err != nil {
			logger := logging.GetLogger(self.config_obj, &logging.GenericComponent)
			logger.Error("Collection %v: GenerateItems: %v",
				self.collection_id, err)
		}
	}()

	return output
}

// Returns the record with the given record number.
func (self *Collection) At(ctx context.Context, ordinal int64) (*Item, error) {
	if ordinal < 0 {
		return nil, errors.WithMessage(utils.InvalidArgError,
			"Index must be >= 0")
	}

	var result *Item
	highest, err := self.indexedScan(ctx, ordinal, 1,
		func(i int64, item *Item) bool {
			result = item
			return false
		})
	if err != nil {
		return nil, err
	}

	self.maybeQueueIndexUpdate(highest)

	if result == nil {
		return nil, errors.WithMessage(os.ErrNotExist,
			fmt.Sprintf("collection %v index %v out of range",
				self.collection_id, ordinal))
	}
	return result, nil
}

func (self *Collection) Length(ctx context.Context) (int64, error) {
	start := self.maxIndexed()

	highest, err := self.indexedScan(ctx, start, 0,
		func(i int64, item *Item) bool { return true })
	if err != nil {
		return 0, err
	}

	self.maybeQueueIndexUpdate(highest)

	return highest + 1, nil
}

// A long unindexed tail is worth indexing in the background.
func (self *Collection) maybeQueueIndexUpdate(highest int64) {
	if self.updater != nil &&
		highest-self.maxIndexed() >= self.config_obj.IndexSpacing() {
		self.updater.Enqueue(self.collection_id)
	}
}

// Scan to the end writing all the index entries that are due.
func (self *Collection) UpdateIndex(ctx context.Context) error {
	_, err := self.indexedScan(ctx, self.maxIndexed(), 0,
		func(i int64, item *Item) bool { return true })
	return err
}
