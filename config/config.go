package config

import (
	"os"
	"time"

	"github.com/Velocidex/yaml/v2"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/flowsched/constants"
)

type DatastoreConfig struct {
	// One of Memory, LevelDB, Pebble, SQLite, MySQL, Postgres
	Implementation string `yaml:"implementation,omitempty"`

	// Directory (LevelDB, Pebble) or file (SQLite) holding the data.
	Location string `yaml:"location,omitempty"`

	// DSN for the MySQL and Postgres implementations.
	ConnectionString string `yaml:"connection_string,omitempty"`

	// Writes to attributes starting with these prefixes are denied.
	ReadOnlyAttributes []string `yaml:"read_only_attributes,omitempty"`
}

type LoggingConfig struct {
	// If set we also write per level log files here.
	OutputDirectory string `yaml:"output_directory,omitempty"`

	// Minimum level to emit: debug, info, warn, error
	Level string `yaml:"level,omitempty"`
}

type CollectionsConfig struct {
	IndexSpacing        int64  `yaml:"index_spacing,omitempty"`
	IndexWriteDelaySec  uint64 `yaml:"index_write_delay_sec,omitempty"`
	IndexUpdateDelaySec uint64 `yaml:"index_update_delay_sec,omitempty"`

	// Number of open collections to keep around.
	CacheSize int    `yaml:"cache_size,omitempty"`
	CacheTTL  uint64 `yaml:"cache_ttl,omitempty"`
}

type WorkerConfig struct {
	// Identity recorded in processing_on. Defaults to the host name,
	// pid and a random id.
	WorkerId string `yaml:"worker_id,omitempty"`

	ProcessingTimeSec  uint64 `yaml:"processing_time_sec,omitempty"`
	Concurrency        int    `yaml:"concurrency,omitempty"`
	PollIntervalMs     uint64 `yaml:"poll_interval_ms,omitempty"`
	LeaseRetryDelaySec uint64 `yaml:"lease_retry_delay_sec,omitempty"`

	// Limit delivery of processing notifications. 0 means no limit.
	NotificationsPerSecond float64 `yaml:"notifications_per_second,omitempty"`
}

type Config struct {
	Datastore   *DatastoreConfig   `yaml:"Datastore,omitempty"`
	Logging     *LoggingConfig     `yaml:"Logging,omitempty"`
	Collections *CollectionsConfig `yaml:"Collections,omitempty"`
	Worker      *WorkerConfig      `yaml:"Worker,omitempty"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Datastore: &DatastoreConfig{
			Implementation: "Memory",
		},
		Logging: &LoggingConfig{
			Level: "info",
		},
		Collections: &CollectionsConfig{
			IndexSpacing:        constants.INDEX_SPACING,
			IndexWriteDelaySec:  uint64(constants.INDEX_WRITE_DELAY / time.Second),
			IndexUpdateDelaySec: uint64(constants.INDEX_UPDATE_DELAY / time.Second),
			CacheSize:           1000,
			CacheTTL:            600,
		},
		Worker: &WorkerConfig{
			ProcessingTimeSec:  uint64(constants.DEFAULT_PROCESSING_TIME / time.Second),
			Concurrency:        10,
			PollIntervalMs:     uint64(constants.PROCESSING_QUEUE_POLL / time.Millisecond),
			LeaseRetryDelaySec: uint64(constants.LEASE_RETRY_DELAY / time.Second),
		},
	}
}

// Load the config stored in the YAML file and returns a config
// object. Missing sections are filled from the defaults.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "LoadConfig")
	}

	return ParseConfigFromString(data)
}

func ParseConfigFromString(config_string []byte) (*Config, error) {
	config_obj := &Config{}
	err := yaml.UnmarshalStrict(config_string, config_obj)
	if err != nil {
		return nil, errors.Wrap(err, "ParseConfigFromString")
	}

	mergeDefaults(config_obj)

	err = ValidateConfig(config_obj)
	if err != nil {
		return nil, err
	}

	return config_obj, nil
}

func mergeDefaults(config_obj *Config) {
	defaults := GetDefaultConfig()
	if config_obj.Datastore == nil {
		config_obj.Datastore = defaults.Datastore
	}
	if config_obj.Datastore.Implementation == "" {
		config_obj.Datastore.Implementation = defaults.Datastore.Implementation
	}

	if config_obj.Logging == nil {
		config_obj.Logging = defaults.Logging
	}

	if config_obj.Collections == nil {
		config_obj.Collections = defaults.Collections
	}
	c := config_obj.Collections
	if c.IndexSpacing == 0 {
		c.IndexSpacing = defaults.Collections.IndexSpacing
	}
	if c.IndexWriteDelaySec == 0 {
		c.IndexWriteDelaySec = defaults.Collections.IndexWriteDelaySec
	}
	if c.IndexUpdateDelaySec == 0 {
		c.IndexUpdateDelaySec = defaults.Collections.IndexUpdateDelaySec
	}
	if c.CacheSize == 0 {
		c.CacheSize = defaults.Collections.CacheSize
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = defaults.Collections.CacheTTL
	}

	if config_obj.Worker == nil {
		config_obj.Worker = defaults.Worker
	}
	w := config_obj.Worker
	if w.ProcessingTimeSec == 0 {
		w.ProcessingTimeSec = defaults.Worker.ProcessingTimeSec
	}
	if w.Concurrency == 0 {
		w.Concurrency = defaults.Worker.Concurrency
	}
	if w.PollIntervalMs == 0 {
		w.PollIntervalMs = defaults.Worker.PollIntervalMs
	}
	if w.LeaseRetryDelaySec == 0 {
		w.LeaseRetryDelaySec = defaults.Worker.LeaseRetryDelaySec
	}
}

func ValidateConfig(config_obj *Config) error {
	if config_obj.Datastore == nil {
		return errors.New("No Datastore section in config")
	}

	switch config_obj.Datastore.Implementation {
	case "Memory":
	case "LevelDB", "Pebble", "SQLite":
		if config_obj.Datastore.Location == "" {
			return errors.Errorf("Datastore %v requires a location",
				config_obj.Datastore.Implementation)
		}
	case "MySQL", "Postgres":
		if config_obj.Datastore.ConnectionString == "" {
			return errors.Errorf("Datastore %v requires a connection_string",
				config_obj.Datastore.Implementation)
		}
	default:
		return errors.Errorf("Unknown datastore implementation %v",
			config_obj.Datastore.Implementation)
	}

	if config_obj.Collections != nil && config_obj.Collections.IndexSpacing < 0 {
		return errors.New("Collections.index_spacing must be positive")
	}

	if config_obj.Worker != nil && config_obj.Worker.Concurrency < 0 {
		return errors.New("Worker.concurrency must be positive")
	}

	return nil
}

func Encode(config_obj *Config) ([]byte, error) {
	return yaml.Marshal(config_obj)
}

func WriteConfigToFile(filename string, config_obj *Config) error {
	serialized, err := Encode(config_obj)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, serialized, 0600)
}
