// A datastore wrapper denying writes to some attributes. Used to run
// readers without write grants on e.g. the index attributes.

package datastore

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/flowsched/config"
)

type ReadOnlyDataStore struct {
	DataStore

	// Attribute prefixes that may not be written.
	denied []string
}

func NewReadOnlyDataStore(
	delegate DataStore, denied_prefixes []string) *ReadOnlyDataStore {
	return &ReadOnlyDataStore{
		DataStore: delegate,
		denied:    denied_prefixes,
	}
}

func (self *ReadOnlyDataStore) isDenied(attribute string) bool {
	for _, prefix := range self.denied {
		if strings.HasPrefix(attribute, prefix) {
			return true
		}
	}
	return false
}

func (self *ReadOnlyDataStore) Set(config_obj *config.Config,
	subject, attribute string, value []byte, timestamp int64) error {
	if self.isDenied(attribute) {
		return errors.WithMessage(ErrPermissionDenied,
			fmt.Sprintf("writing %v on %v", attribute, subject))
	}
	return self.DataStore.Set(config_obj, subject, attribute, value, timestamp)
}

func (self *ReadOnlyDataStore) DeleteAttributes(config_obj *config.Config,
	subject string, attributes []string) error {
	for _, attribute := range attributes {
		if self.isDenied(attribute) {
			return errors.WithMessage(ErrPermissionDenied,
				fmt.Sprintf("deleting %v on %v", attribute, subject))
		}
	}
	return self.DataStore.DeleteAttributes(config_obj, subject, attributes)
}
