// This file defines the schema of where various things go into the
// datastore.
//
// All subjects are "/" separated. Numeric ids are encoded as fixed
// width hex so lexical order matches numeric order.

package paths

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/flowsched/constants"
	"www.velocidex.com/golang/flowsched/utils"
)

const (
	CLIENTS_ROOT          = "/clients"
	MESSAGE_HANDLERS_ROOT = "/message_handlers"
)

// Ids become path components so may not contain separators or be
// a relative path element.
func ValidateId(name, id string) error {
	if id == "" {
		return errors.WithMessage(utils.InvalidArgError,
			fmt.Sprintf("%v may not be empty", name))
	}

	if id == "." || id == ".." || strings.ContainsAny(id, "/\x00") {
		return errors.WithMessage(utils.InvalidArgError,
			fmt.Sprintf("%v %q contains invalid characters", name, id))
	}
	return nil
}

func FormatId(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

// Where a collection keeps its records and index.
type CollectionPathManager struct {
	collection_id string
}

func NewCollectionPathManager(collection_id string) *CollectionPathManager {
	return &CollectionPathManager{
		collection_id: strings.TrimSuffix(collection_id, "/"),
	}
}

// The index entries live on the collection's own subject.
func (self CollectionPathManager) Path() string {
	return self.collection_id
}

func (self CollectionPathManager) RecordsPrefix() string {
	return self.collection_id + "/" + constants.COLLECTION_RESULTS + "/"
}

func (self CollectionPathManager) Record(timestamp int64, suffix uint32) string {
	return fmt.Sprintf("%s%016x.%06x", self.RecordsPrefix(), timestamp, suffix)
}

// Parse the record key from the subject. Returns false for subjects
// not in the expected format.
func (self CollectionPathManager) ParseRecord(
	subject string) (timestamp int64, suffix uint32, ok bool) {
	if !strings.HasPrefix(subject, self.RecordsPrefix()) {
		return 0, 0, false
	}

	name := strings.TrimPrefix(subject, self.RecordsPrefix())
	if len(name) != 23 || name[16] != '.' {
		return 0, 0, false
	}

	ts, err := strconv.ParseUint(name[:16], 16, 64)
	if err != nil {
		return 0, 0, false
	}

	s, err := strconv.ParseUint(name[17:], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return int64(ts), uint32(s), true
}

func IndexAttribute(ordinal int64) string {
	return fmt.Sprintf("%s%08x", constants.INDEX_ATTRIBUTE_PREFIX, ordinal)
}

func ParseIndexAttribute(attribute string) (int64, bool) {
	if !strings.HasPrefix(attribute, constants.INDEX_ATTRIBUTE_PREFIX) {
		return 0, false
	}

	ordinal, err := strconv.ParseInt(
		strings.TrimPrefix(attribute, constants.INDEX_ATTRIBUTE_PREFIX), 16, 64)
	if err != nil {
		return 0, false
	}
	return ordinal, true
}
