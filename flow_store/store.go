/*
   Velociraptor - Hunting Evil
   Copyright (C) 2019 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

// The flow store keeps clients, flows, their requests and responses,
// results, logs, the messages queued for clients and the requests
// queued for server side message handlers.
//
// All operations are atomic with respect to each other: a single
// store mutex is held for the duration of each operation. Processing
// notifications are only emitted after the mutex is released so a
// handler delivered inline may call back into the store.
package flow_store

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"www.velocidex.com/golang/flowsched/collections"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/constants"
	"www.velocidex.com/golang/flowsched/datastore"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/json"
	"www.velocidex.com/golang/flowsched/logging"
	"www.velocidex.com/golang/flowsched/notifications"
	"www.velocidex.com/golang/flowsched/paths"
	"www.velocidex.com/golang/flowsched/utils"
)

var (
	flowResponsesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowsched_flow_store_responses_written",
		Help: "Number of flow responses written to the store.",
	})

	flowRequestsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowsched_flow_store_requests_completed",
		Help: "Number of flow requests that received all their responses.",
	})
)

type Store struct {
	mu sync.Mutex

	ctx         context.Context
	config_obj  *config.Config
	db          datastore.DataStore
	clock       utils.Clock
	collections *collections.Manager
	queue       *ProcessingQueue
	notifier    *notifications.NotificationPool

	// Recorded in the processing_on field of leased flows.
	worker_id string

	// Timestamps handed out by nextTimestamp() are strictly
	// increasing.
	last_timestamp int64

	// The registered message handler loop.
	handler_mu     sync.Mutex
	handler_cancel func()
	handler_wg     sync.WaitGroup
}

func (self *Store) WorkerId() string {
	return self.worker_id
}

func (self *Store) Queue() *ProcessingQueue {
	return self.queue
}

func (self *Store) Collections() *collections.Manager {
	return self.collections
}

func (self *Store) Notifier() *notifications.NotificationPool {
	return self.notifier
}

// Must be called with the lock held.
func (self *Store) nextTimestamp() int64 {
	now := utils.Microseconds(self.clock.Now())
	if now <= self.last_timestamp {
		now = self.last_timestamp + 1
	}
	self.last_timestamp = now
	return now
}

func (self *Store) getJSON(subject, attribute string, target interface{}) error {
	record, err := self.db.Resolve(self.config_obj, subject, attribute)
	if err != nil {
		return err
	}

	return json.Unmarshal(record.Value, target)
}

func (self *Store) setJSON(
	subject, attribute string, item interface{}, timestamp int64) error {
	serialized, err := json.Marshal(item)
	if err != nil {
		return err
	}

	if timestamp == 0 {
		timestamp = utils.Microseconds(self.clock.Now())
	}
	return self.db.Set(self.config_obj, subject, attribute, serialized, timestamp)
}

func (self *Store) WriteClientMetadata(metadata *flows.ClientMetadata) error {
	err := paths.ValidateId("client_id", metadata.ClientId)
	if err != nil {
		return err
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	record := *metadata
	now := utils.Microseconds(self.clock.Now())
	if record.FirstSeen == 0 {
		existing := &flows.ClientMetadata{}
		err := self.getJSON(
			paths.NewClientPathManager(record.ClientId).Path(),
			constants.CLIENT_METADATA_ATTRIBUTE, existing)
		if err == nil && existing.FirstSeen != 0 {
			record.FirstSeen = existing.FirstSeen
		} else {
			record.FirstSeen = now
		}
	}

	return self.setJSON(paths.NewClientPathManager(record.ClientId).Path(),
		constants.CLIENT_METADATA_ATTRIBUTE, &record, now)
}

func (self *Store) ReadClientMetadata(client_id string) (*flows.ClientMetadata, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.readClientMetadata(client_id)
}

func (self *Store) readClientMetadata(client_id string) (*flows.ClientMetadata, error) {
	err := paths.ValidateId("client_id", client_id)
	if err != nil {
		return nil, err
	}

	result := &flows.ClientMetadata{}
	err = self.getJSON(paths.NewClientPathManager(client_id).Path(),
		constants.CLIENT_METADATA_ATTRIBUTE, result)
	if errors.Is(err, os.ErrNotExist) {
		return nil, flows.UnknownClientError{ClientId: client_id}
	}
	return result, err
}

func NewStore(
	ctx context.Context,
	wg *sync.WaitGroup,
	config_obj *config.Config,
	db datastore.DataStore,
	clock utils.Clock) *Store {

	worker_id := ""
	if config_obj.Worker != nil {
		worker_id = config_obj.Worker.WorkerId
	}
	if worker_id == "" {
		worker_id = utils.ProcessIdString()
	}

	self := &Store{
		ctx:         ctx,
		config_obj:  config_obj,
		db:          db,
		clock:       clock,
		collections: collections.NewManager(ctx, wg, config_obj, db, clock),
		queue:       NewProcessingQueue(ctx, wg, config_obj, clock),
		notifier:    notifications.NewNotificationPool(),
		worker_id:   worker_id,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		self.UnregisterMessageHandler()
		self.notifier.Shutdown()
	}()

	logger := logging.GetLogger(config_obj, &logging.GenericComponent)
	logger.Info("Flow store running as <green>%v</>", worker_id)

	return self
}
