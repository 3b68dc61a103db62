package datastore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"www.velocidex.com/golang/flowsched/config"
)

var (
	DatastoreHistorgram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowsched_datastore_latency",
			Help:    "Latency to access datastore.",
			Buckets: prometheus.LinearBuckets(0.01, 0.05, 10),
		},
		[]string{"action", "datastore"},
	)
)

func Instrument(access_type, datastore string) func() time.Duration {
	timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		DatastoreHistorgram.WithLabelValues(access_type, datastore).Observe(v)
	}))

	return timer.ObserveDuration
}

// Records the latency of every call to the delegate.
type InstrumentedDataStore struct {
	delegate DataStore
	name     string
}

func NewInstrumentedDataStore(
	delegate DataStore, name string) *InstrumentedDataStore {
	return &InstrumentedDataStore{delegate: delegate, name: name}
}

func (self *InstrumentedDataStore) Set(config_obj *config.Config,
	subject, attribute string, value []byte, timestamp int64) error {
	defer Instrument("set", self.name)()
	return self.delegate.Set(config_obj, subject, attribute, value, timestamp)
}

func (self *InstrumentedDataStore) Resolve(config_obj *config.Config,
	subject, attribute string) (*Record, error) {
	defer Instrument("resolve", self.name)()
	return self.delegate.Resolve(config_obj, subject, attribute)
}

func (self *InstrumentedDataStore) ScanAttribute(config_obj *config.Config,
	subject_prefix, attribute, after_subject string,
	max_records int) ([]*Record, error) {
	defer Instrument("scan", self.name)()
	return self.delegate.ScanAttribute(config_obj,
		subject_prefix, attribute, after_subject, max_records)
}

func (self *InstrumentedDataStore) ResolvePrefix(config_obj *config.Config,
	subject, attribute_prefix string) ([]*Record, error) {
	defer Instrument("resolve_prefix", self.name)()
	return self.delegate.ResolvePrefix(config_obj, subject, attribute_prefix)
}

func (self *InstrumentedDataStore) MultiResolve(config_obj *config.Config,
	subjects []string, attribute string) ([]*Record, error) {
	defer Instrument("multi_resolve", self.name)()
	return self.delegate.MultiResolve(config_obj, subjects, attribute)
}

func (self *InstrumentedDataStore) DeleteAttributes(config_obj *config.Config,
	subject string, attributes []string) error {
	defer Instrument("delete_attributes", self.name)()
	return self.delegate.DeleteAttributes(config_obj, subject, attributes)
}

func (self *InstrumentedDataStore) DeleteSubject(
	config_obj *config.Config, subject string) error {
	defer Instrument("delete_subject", self.name)()
	return self.delegate.DeleteSubject(config_obj, subject)
}

func (self *InstrumentedDataStore) DeletePrefix(
	config_obj *config.Config, subject_prefix string) error {
	defer Instrument("delete_prefix", self.name)()
	return self.delegate.DeletePrefix(config_obj, subject_prefix)
}

func (self *InstrumentedDataStore) Close() {
	self.delegate.Close()
}
