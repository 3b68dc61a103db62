package datastore

import (
	"github.com/cockroachdb/pebble"
	"www.velocidex.com/golang/flowsched/config"
)

type PebbleDataStore struct {
	db *pebble.DB
}

func NewPebbleDataStore(location string) (*PebbleDataStore, error) {
	return NewPebbleDataStoreWithOptions(location, &pebble.Options{})
}

func NewPebbleDataStoreWithOptions(
	location string, opts *pebble.Options) (*PebbleDataStore, error) {
	db, err := pebble.Open(location, opts)
	if err != nil {
		return nil, err
	}
	return &PebbleDataStore{db: db}, nil
}

func (self *PebbleDataStore) Set(config_obj *config.Config,
	subject, attribute string, value []byte, timestamp int64) error {
	err := validateSubject(subject)
	if err != nil {
		return err
	}

	return self.db.Set(encodeKey(subject, attribute),
		encodeValue(value, timestamp), pebble.Sync)
}

func (self *PebbleDataStore) get(key []byte) (*Record, error) {
	value, closer, err := self.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return decodeRecord(key, value)
}

func (self *PebbleDataStore) Resolve(config_obj *config.Config,
	subject, attribute string) (*Record, error) {
	record, err := self.get(encodeKey(subject, attribute))
	if err == pebble.ErrNotFound {
		return nil, notFoundError(subject, attribute)
	}
	return record, err
}

func (self *PebbleDataStore) iterate(start, limit []byte,
	cb func(record *Record) bool) error {
	iter, err := self.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: limit,
	})
	if err != nil {
		return err
	}

	for iter.First(); iter.Valid(); iter.Next() {
		record, err := decodeRecord(iter.Key(), iter.Value())
		if err != nil {
			iter.Close()
			return err
		}
		if !cb(record) {
			break
		}
	}
	return iter.Close()
}

func (self *PebbleDataStore) ScanAttribute(config_obj *config.Config,
	subject_prefix, attribute, after_subject string,
	max_records int) ([]*Record, error) {
	result := []*Record{}
	start, limit := scanRange(subject_prefix, after_subject)
	err := self.iterate(start, limit, func(record *Record) bool {
		if record.Attribute == attribute {
			result = append(result, record)
		}
		return max_records <= 0 || len(result) < max_records
	})
	return result, err
}

func (self *PebbleDataStore) ResolvePrefix(config_obj *config.Config,
	subject, attribute_prefix string) ([]*Record, error) {
	result := []*Record{}
	start := encodeKey(subject, attribute_prefix)
	err := self.iterate(start, prefixUpperBound(start),
		func(record *Record) bool {
			result = append(result, record)
			return true
		})
	return result, err
}

func (self *PebbleDataStore) MultiResolve(config_obj *config.Config,
	subjects []string, attribute string) ([]*Record, error) {
	result := make([]*Record, 0, len(subjects))
	for _, subject := range subjects {
		record, err := self.get(encodeKey(subject, attribute))
		if err == pebble.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, nil
}

func (self *PebbleDataStore) DeleteAttributes(config_obj *config.Config,
	subject string, attributes []string) error {
	b := self.db.NewBatch()
	defer b.Close()

	for _, attribute := range attributes {
		err := b.Delete(encodeKey(subject, attribute), pebble.NoSync)
		if err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (self *PebbleDataStore) deleteRange(start, limit []byte) error {
	if limit != nil {
		return self.db.DeleteRange(start, limit, pebble.Sync)
	}

	b := self.db.NewBatch()
	defer b.Close()

	err := self.iterate(start, nil, func(record *Record) bool {
		err := b.Delete(encodeKey(record.Subject, record.Attribute),
			pebble.NoSync)
		return err == nil
	})
	if err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (self *PebbleDataStore) DeleteSubject(
	config_obj *config.Config, subject string) error {
	start, limit := subjectRange(subject)
	return self.deleteRange(start, limit)
}

func (self *PebbleDataStore) DeletePrefix(
	config_obj *config.Config, subject_prefix string) error {
	return self.deleteRange([]byte(subject_prefix),
		prefixUpperBound([]byte(subject_prefix)))
}

func (self *PebbleDataStore) Close() {
	self.db.Close()
}
