package datastore

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/utils"
)

// Every implementation runs the same suite.
type BaseTestSuite struct {
	suite.Suite

	config_obj *config.Config
	datastore  DataStore

	factory func() DataStore
}

func (self *BaseTestSuite) SetupTest() {
	self.config_obj = config.GetDefaultConfig()
	self.datastore = self.factory()
}

func (self *BaseTestSuite) TearDownTest() {
	self.datastore.Close()
}

func (self *BaseTestSuite) subjects(records []*Record) []string {
	result := []string{}
	for _, r := range records {
		result = append(result, r.Subject)
	}
	return result
}

func (self *BaseTestSuite) TestSetResolve() {
	err := self.datastore.Set(self.config_obj, "/a/b", "attr", []byte("hello"), 10)
	assert.NoError(self.T(), err)

	record, err := self.datastore.Resolve(self.config_obj, "/a/b", "attr")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), "hello", string(record.Value))
	assert.Equal(self.T(), int64(10), record.Timestamp)

	// Set replaces the value.
	err = self.datastore.Set(self.config_obj, "/a/b", "attr", []byte("bye"), 20)
	assert.NoError(self.T(), err)

	record, err = self.datastore.Resolve(self.config_obj, "/a/b", "attr")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), "bye", string(record.Value))
	assert.Equal(self.T(), int64(20), record.Timestamp)

	_, err = self.datastore.Resolve(self.config_obj, "/a/b", "missing")
	assert.True(self.T(), errors.Is(err, os.ErrNotExist))
}

func (self *BaseTestSuite) TestInvalidSubject() {
	err := self.datastore.Set(self.config_obj, "/a\x00b", "attr", nil, 0)
	assert.True(self.T(), errors.Is(err, utils.InvalidArgError))

	err = self.datastore.Set(self.config_obj, "", "attr", nil, 0)
	assert.Error(self.T(), err)
}

func (self *BaseTestSuite) TestScanAttribute() {
	for i := 0; i < 10; i++ {
		subject := fmt.Sprintf("/coll/Results/%04d", i)
		assert.NoError(self.T(), self.datastore.Set(self.config_obj,
			subject, "value", []byte(fmt.Sprintf("%d", i)), int64(i)))

		// Other attributes are not returned.
		assert.NoError(self.T(), self.datastore.Set(self.config_obj,
			subject, "other", []byte("x"), 0))
	}

	// Subjects outside the prefix.
	assert.NoError(self.T(), self.datastore.Set(self.config_obj,
		"/coll", "value", []byte("x"), 0))
	assert.NoError(self.T(), self.datastore.Set(self.config_obj,
		"/coll2/Results/0000", "value", []byte("x"), 0))

	records, err := self.datastore.ScanAttribute(self.config_obj,
		"/coll/Results/", "value", "", 0)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 10, len(records))
	for i, r := range records {
		assert.Equal(self.T(), fmt.Sprintf("/coll/Results/%04d", i), r.Subject)
		assert.Equal(self.T(), fmt.Sprintf("%d", i), string(r.Value))
		assert.Equal(self.T(), int64(i), r.Timestamp)
	}

	// Restart after a subject, limited.
	records, err = self.datastore.ScanAttribute(self.config_obj,
		"/coll/Results/", "value", "/coll/Results/0004", 3)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), []string{
		"/coll/Results/0005",
		"/coll/Results/0006",
		"/coll/Results/0007"}, self.subjects(records))

	// After a subject that is not stored.
	records, err = self.datastore.ScanAttribute(self.config_obj,
		"/coll/Results/", "value", "/coll/Results/0008x", 0)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), []string{"/coll/Results/0009"}, self.subjects(records))

	// After a subject sorting before the prefix.
	records, err = self.datastore.ScanAttribute(self.config_obj,
		"/coll/Results/", "value", "/a", 2)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), []string{
		"/coll/Results/0000", "/coll/Results/0001"}, self.subjects(records))
}

func (self *BaseTestSuite) TestResolvePrefix() {
	for _, attr := range []string{"index:sc_00000400", "index:sc_00000000",
		"index:other", "metadata"} {
		assert.NoError(self.T(), self.datastore.Set(self.config_obj,
			"/coll", attr, []byte(attr), 1))
	}
	assert.NoError(self.T(), self.datastore.Set(self.config_obj,
		"/coll/x", "index:sc_00000000", []byte("x"), 1))

	records, err := self.datastore.ResolvePrefix(self.config_obj,
		"/coll", "index:sc_")
	assert.NoError(self.T(), err)

	attributes := []string{}
	for _, r := range records {
		assert.Equal(self.T(), "/coll", r.Subject)
		attributes = append(attributes, r.Attribute)
	}
	assert.Equal(self.T(), []string{
		"index:sc_00000000", "index:sc_00000400"}, attributes)
}

func (self *BaseTestSuite) TestMultiResolve() {
	assert.NoError(self.T(), self.datastore.Set(self.config_obj,
		"/b", "value", []byte("b"), 1))
	assert.NoError(self.T(), self.datastore.Set(self.config_obj,
		"/a", "value", []byte("a"), 1))

	records, err := self.datastore.MultiResolve(self.config_obj,
		[]string{"/b", "/missing", "/a"}, "value")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), []string{"/b", "/a"}, self.subjects(records))
}

func (self *BaseTestSuite) TestDelete() {
	for _, subject := range []string{"/f", "/f/1", "/f/2", "/g"} {
		assert.NoError(self.T(), self.datastore.Set(self.config_obj,
			subject, "a", []byte("1"), 1))
		assert.NoError(self.T(), self.datastore.Set(self.config_obj,
			subject, "b", []byte("1"), 1))
	}

	assert.NoError(self.T(), self.datastore.DeleteAttributes(
		self.config_obj, "/g", []string{"a"}))
	_, err := self.datastore.Resolve(self.config_obj, "/g", "a")
	assert.True(self.T(), errors.Is(err, os.ErrNotExist))
	_, err = self.datastore.Resolve(self.config_obj, "/g", "b")
	assert.NoError(self.T(), err)

	// Only the exact subject goes.
	assert.NoError(self.T(), self.datastore.DeleteSubject(self.config_obj, "/f"))
	records, err := self.datastore.ScanAttribute(self.config_obj, "/f", "a", "", 0)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), []string{"/f/1", "/f/2"}, self.subjects(records))

	assert.NoError(self.T(), self.datastore.DeletePrefix(self.config_obj, "/f/"))
	records, err = self.datastore.ScanAttribute(self.config_obj, "/", "b", "", 0)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), []string{"/g"}, self.subjects(records))
}

type MemoryTestSuite struct {
	BaseTestSuite
}

func TestMemoryDatastore(t *testing.T) {
	suite.Run(t, &MemoryTestSuite{BaseTestSuite{
		factory: func() DataStore {
			return NewMemoryDataStore()
		},
	}})
}

func TestInstrumentedDatastore(t *testing.T) {
	suite.Run(t, &BaseTestSuite{
		factory: func() DataStore {
			return NewInstrumentedDataStore(NewMemoryDataStore(), "Memory")
		},
	})
}

func TestReadOnlyDatastore(t *testing.T) {
	config_obj := config.GetDefaultConfig()
	db := NewReadOnlyDataStore(NewMemoryDataStore(), []string{"index:"})

	err := db.Set(config_obj, "/coll", "index:sc_00000400", []byte("1"), 1)
	assert.True(t, errors.Is(err, ErrPermissionDenied))

	err = db.DeleteAttributes(config_obj, "/coll", []string{"index:sc_00000400"})
	assert.True(t, errors.Is(err, ErrPermissionDenied))

	assert.NoError(t, db.Set(config_obj, "/coll", "value", []byte("1"), 1))
}

func TestGetDataStore(t *testing.T) {
	config_obj := config.GetDefaultConfig()
	config_obj.Datastore.Implementation = "Memory"
	config_obj.Datastore.ReadOnlyAttributes = []string{"index:"}

	db, err := GetDataStore(config_obj)
	assert.NoError(t, err)
	defer db.Close()

	err = db.Set(config_obj, "/coll", "index:sc_00000400", []byte("1"), 1)
	assert.True(t, errors.Is(err, ErrPermissionDenied))

	config_obj.Datastore.Implementation = "Cassandra"
	_, err = GetDataStore(config_obj)
	assert.Error(t, err)
}
