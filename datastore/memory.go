package datastore

/*
   An in-memory data store. Used in tests and for short lived tools.
*/

import (
	"strings"
	"sync"

	"github.com/google/btree"
	"www.velocidex.com/golang/flowsched/config"
)

type memoryItem struct {
	subject   string
	attribute string
	value     []byte
	timestamp int64
}

func (self *memoryItem) record() *Record {
	value := make([]byte, len(self.value))
	copy(value, self.value)
	return &Record{
		Subject:   self.subject,
		Attribute: self.attribute,
		Value:     value,
		Timestamp: self.timestamp,
	}
}

func lessMemoryItem(a, b *memoryItem) bool {
	if a.subject != b.subject {
		return a.subject < b.subject
	}
	return a.attribute < b.attribute
}

type MemoryDataStore struct {
	mu   sync.Mutex
	tree *btree.BTreeG[*memoryItem]
}

func NewMemoryDataStore() *MemoryDataStore {
	return &MemoryDataStore{
		tree: btree.NewG[*memoryItem](32, lessMemoryItem),
	}
}

func (self *MemoryDataStore) Set(config_obj *config.Config,
	subject, attribute string, value []byte, timestamp int64) error {
	err := validateSubject(subject)
	if err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	self.mu.Lock()
	defer self.mu.Unlock()

	self.tree.ReplaceOrInsert(&memoryItem{
		subject:   subject,
		attribute: attribute,
		value:     stored,
		timestamp: timestamp,
	})
	return nil
}

func (self *MemoryDataStore) Resolve(config_obj *config.Config,
	subject, attribute string) (*Record, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	item, pres := self.tree.Get(&memoryItem{
		subject: subject, attribute: attribute})
	if !pres {
		return nil, notFoundError(subject, attribute)
	}
	return item.record(), nil
}

func (self *MemoryDataStore) ScanAttribute(config_obj *config.Config,
	subject_prefix, attribute, after_subject string,
	max_records int) ([]*Record, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	// No subject contains a NUL so this sorts directly after
	// after_subject.
	start := subject_prefix
	if after_subject != "" && after_subject+"\x00" > start {
		start = after_subject + "\x00"
	}

	result := []*Record{}
	self.tree.AscendGreaterOrEqual(&memoryItem{subject: start},
		func(item *memoryItem) bool {
			if !strings.HasPrefix(item.subject, subject_prefix) {
				return false
			}

			if item.attribute == attribute {
				result = append(result, item.record())
			}
			return max_records <= 0 || len(result) < max_records
		})

	return result, nil
}

func (self *MemoryDataStore) ResolvePrefix(config_obj *config.Config,
	subject, attribute_prefix string) ([]*Record, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []*Record{}
	self.tree.AscendGreaterOrEqual(
		&memoryItem{subject: subject, attribute: attribute_prefix},
		func(item *memoryItem) bool {
			if item.subject != subject ||
				!strings.HasPrefix(item.attribute, attribute_prefix) {
				return false
			}
			result = append(result, item.record())
			return true
		})

	return result, nil
}

func (self *MemoryDataStore) MultiResolve(config_obj *config.Config,
	subjects []string, attribute string) ([]*Record, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := make([]*Record, 0, len(subjects))
	for _, subject := range subjects {
		item, pres := self.tree.Get(&memoryItem{
			subject: subject, attribute: attribute})
		if pres {
			result = append(result, item.record())
		}
	}
	return result, nil
}

func (self *MemoryDataStore) DeleteAttributes(config_obj *config.Config,
	subject string, attributes []string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	for _, attribute := range attributes {
		self.tree.Delete(&memoryItem{subject: subject, attribute: attribute})
	}
	return nil
}

func (self *MemoryDataStore) DeleteSubject(
	config_obj *config.Config, subject string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	var to_delete []*memoryItem
	self.tree.AscendGreaterOrEqual(&memoryItem{subject: subject},
		func(item *memoryItem) bool {
			if item.subject != subject {
				return false
			}
			to_delete = append(to_delete, item)
			return true
		})

	for _, item := range to_delete {
		self.tree.Delete(item)
	}
	return nil
}

func (self *MemoryDataStore) DeletePrefix(
	config_obj *config.Config, subject_prefix string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	var to_delete []*memoryItem
	self.tree.AscendGreaterOrEqual(&memoryItem{subject: subject_prefix},
		func(item *memoryItem) bool {
			if !strings.HasPrefix(item.subject, subject_prefix) {
				return false
			}
			to_delete = append(to_delete, item)
			return true
		})

	for _, item := range to_delete {
		self.tree.Delete(item)
	}
	return nil
}

// Number of stored values. Used by tests.
func (self *MemoryDataStore) Len() int {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.tree.Len()
}

func (self *MemoryDataStore) Clear() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.tree.Clear(false)
}

func (self *MemoryDataStore) Close() {}
