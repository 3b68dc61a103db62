package collections

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"www.velocidex.com/golang/flowsched/constants"
	"www.velocidex.com/golang/flowsched/datastore"
	"www.velocidex.com/golang/flowsched/logging"
	"www.velocidex.com/golang/flowsched/paths"
	"www.velocidex.com/golang/flowsched/utils"
)

// Must be called with the lock held.
func (self *Collection) readIndex() error {
	if self.index_loaded {
		return nil
	}

	records, err := self.db.ResolvePrefix(self.config_obj,
		self.path_manager.Path(), constants.INDEX_ATTRIBUTE_PREFIX)
	if err != nil {
		return err
	}

	self.index = map[int64]Key{0: Key{}}
	self.max_indexed = 0

	for _, record := range records {
		ordinal, ok := paths.ParseIndexAttribute(record.Attribute)
		if !ok {
			continue
		}

		suffix, err := strconv.ParseUint(string(record.Value), 16, 32)
		if err != nil {
			continue
		}

		self.index[ordinal] = Key{
			Timestamp: record.Timestamp,
			Suffix:    uint32(suffix),
		}
		if ordinal > self.max_indexed {
			self.max_indexed = ordinal
		}
	}

	self.index_loaded = true
	return nil
}

func (self *Collection) maxIndexed() int64 {
	self.mu.Lock()
	defer self.mu.Unlock()

	err := self.readIndex()
	if err != nil {
		return 0
	}
	return self.max_indexed
}

// A snapshot of the known index entries.
func (self *Collection) Index() (map[int64]Key, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	err := self.readIndex()
	if err != nil {
		return nil, err
	}

	result := make(map[int64]Key)
	for k, v := range self.index {
		if k > 0 {
			result[k] = v
		}
	}
	return result, nil
}

// Find where to start scanning for record number i: the greatest
// indexed record number <= i and the key to scan after.
func (self *Collection) startOfScan(i int64) (int64, *Key, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	err := self.readIndex()
	if err != nil {
		return 0, nil, err
	}

	start := int64(0)
	for ordinal := range self.index {
		if ordinal <= i && ordinal > start {
			start = ordinal
		}
	}

	if start == 0 {
		return 0, nil, nil
	}

	key := self.index[start]
	return start, &Key{Timestamp: key.Timestamp, Suffix: key.Suffix - 1}, nil
}

// Scans records from record number i onwards, calling cb with each
// record number and record. Index entries for every record crossed
// are written when due. Returns the highest record number seen or -1.
func (self *Collection) indexedScan(ctx context.Context,
	i int64, max_records int,
	cb func(ordinal int64, item *Item) bool) (int64, error) {

	ordinal, after, err := self.startOfScan(i)
	if err != nil {
		return -1, err
	}

	if max_records > 0 {
		max_records += int(i - ordinal)
	}

	highest := int64(-1)
	err = self.scan(ctx, after, max_records, func(item *Item) bool {
		self.maybeWriteIndex(ordinal, item.Key)
		highest = ordinal

		current := ordinal
		ordinal++

		if current >= i {
			return cb(current, item)
		}
		return true
	})

	return highest, err
}

// Write the index entry for record number i if it is due.
func (self *Collection) maybeWriteIndex(i int64, key Key) {
	spacing := self.config_obj.IndexSpacing()
	if i == 0 || i%spacing != 0 {
		return
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	// The collection was deleted under us.
	if !self.index_loaded || i <= self.max_indexed {
		return
	}

	horizon := self.clock.Now().Add(-self.config_obj.IndexWriteDelay())
	if key.Timestamp >= utils.Microseconds(horizon) {
		return
	}

	err := self.db.Set(self.config_obj, self.path_manager.Path(),
		paths.IndexAttribute(i), []byte(fmt.Sprintf("%06x", key.Suffix)),
		key.Timestamp)
	if err != nil {
		// We may be used without write access to the index so
		// simply give up in that case.
		if !errors.Is(err, datastore.ErrPermissionDenied) {
			logger := logging.GetLogger(self.config_obj, &logging.GenericComponent)
			logger.Error("Collection %v: writing index %v: %v",
				self.collection_id, i, err)
		}
		return
	}

	indexEntriesCounter.Inc()
	self.index[i] = key
	self.max_indexed = i
}
