package datastore

import (
	"os"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/flowsched/config"
)

var errNotExist = os.ErrNotExist

// Open the datastore named in the config. Callers own the returned
// store and must Close() it.
func GetDataStore(config_obj *config.Config) (DataStore, error) {
	if config_obj == nil || config_obj.Datastore == nil {
		return nil, errors.New("no datastore configured")
	}

	var result DataStore
	var err error

	ds_config := config_obj.Datastore
	switch ds_config.Implementation {
	case "Memory":
		result = NewMemoryDataStore()

	case "LevelDB":
		result, err = NewLevelDBDataStore(ds_config.Location)

	case "Pebble":
		result, err = NewPebbleDataStore(ds_config.Location)

	case "SQLite":
		result, err = NewSQLDataStore(SQLite, ds_config.Location)

	case "MySQL":
		result, err = NewSQLDataStore(MySQL, ds_config.ConnectionString)

	case "Postgres":
		result, err = NewSQLDataStore(Postgres, ds_config.ConnectionString)

	default:
		return nil, errors.New("no datastore implementation " +
			ds_config.Implementation)
	}

	if err != nil {
		return nil, err
	}

	if len(ds_config.ReadOnlyAttributes) > 0 {
		result = NewReadOnlyDataStore(result, ds_config.ReadOnlyAttributes)
	}

	return NewInstrumentedDataStore(result, ds_config.Implementation), nil
}
