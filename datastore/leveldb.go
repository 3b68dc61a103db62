package datastore

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"www.velocidex.com/golang/flowsched/config"
)

type LevelDBDataStore struct {
	db *leveldb.DB
}

func NewLevelDBDataStore(location string) (*LevelDBDataStore, error) {
	db, err := leveldb.OpenFile(location, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBDataStore{db: db}, nil
}

// A LevelDB store on the given storage, e.g. storage.NewMemStorage()
func NewLevelDBDataStoreWithStorage(
	stor storage.Storage) (*LevelDBDataStore, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBDataStore{db: db}, nil
}

func (self *LevelDBDataStore) Set(config_obj *config.Config,
	subject, attribute string, value []byte, timestamp int64) error {
	err := validateSubject(subject)
	if err != nil {
		return err
	}

	return self.db.Put(encodeKey(subject, attribute),
		encodeValue(value, timestamp), &opt.WriteOptions{Sync: true})
}

func (self *LevelDBDataStore) Resolve(config_obj *config.Config,
	subject, attribute string) (*Record, error) {
	key := encodeKey(subject, attribute)
	value, err := self.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, notFoundError(subject, attribute)
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(key, value)
}

// Calls cb for each record in the range until it returns false.
func (self *LevelDBDataStore) iterate(start, limit []byte,
	cb func(record *Record) bool) error {
	iter := self.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	defer iter.Release()

	for iter.Next() {
		record, err := decodeRecord(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !cb(record) {
			break
		}
	}
	return iter.Error()
}

func (self *LevelDBDataStore) ScanAttribute(config_obj *config.Config,
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

func (self *LevelDBDataStore) ResolvePrefix(config_obj *config.Config,
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

func (self *LevelDBDataStore) MultiResolve(config_obj *config.Config,
	subjects []string, attribute string) ([]*Record, error) {
	result := make([]*Record, 0, len(subjects))
	for _, subject := range subjects {
		key := encodeKey(subject, attribute)
		value, err := self.db.Get(key, nil)
		if err == leveldb.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}

		record, err := decodeRecord(key, value)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, nil
}

func (self *LevelDBDataStore) DeleteAttributes(config_obj *config.Config,
	subject string, attributes []string) error {
	batch := &leveldb.Batch{}
	for _, attribute := range attributes {
		batch.Delete(encodeKey(subject, attribute))
	}
	return self.db.Write(batch, &opt.WriteOptions{Sync: true})
}

func (self *LevelDBDataStore) deleteRange(start, limit []byte) error {
	batch := &leveldb.Batch{}
	iter := self.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	iter.Release()

	err := iter.Error()
	if err != nil {
		return err
	}
	return self.db.Write(batch, &opt.WriteOptions{Sync: true})
}

func (self *LevelDBDataStore) DeleteSubject(
	config_obj *config.Config, subject string) error {
	start, limit := subjectRange(subject)
	return self.deleteRange(start, limit)
}

func (self *LevelDBDataStore) DeletePrefix(
	config_obj *config.Config, subject_prefix string) error {
	r := util.BytesPrefix([]byte(subject_prefix))
	return self.deleteRange(r.Start, r.Limit)
}

func (self *LevelDBDataStore) Close() {
	self.db.Close()
}
