package flow_store

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/flowsched/constants"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/json"
	"www.velocidex.com/golang/flowsched/paths"
	"www.velocidex.com/golang/flowsched/utils"
)

// Task and message handler request ids are a timestamp with random
// low bits so stores sharing a datastore do not hand out the same id.
const idRandomBits = 12

// Must be called with the lock held.
func (self *Store) newRecordId(
	subject func(id uint64) string, attribute string) (uint64, error) {
	for {
		id := uint64(self.nextTimestamp())<<idRandomBits |
			uint64(rand.Intn(1<<idRandomBits))

		_, err := self.db.Resolve(self.config_obj, subject(id), attribute)
		if errors.Is(err, os.ErrNotExist) {
			return id, nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Queues messages for clients. Messages without a task id are given
// one. Task ids increase so messages are leased in the order queued.
// Fails without writing anything if a client is unknown.
func (self *Store) WriteClientMessages(messages []*flows.ClientMessage) error {
	var to_notify []string
	defer func() {
		for _, client_id := range to_notify {
			self.notifier.Notify(client_id)
		}
	}()

	self.mu.Lock()
	defer self.mu.Unlock()

	for _, m := range messages {
		_, err := self.readClientMetadata(m.ClientId)
		if err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	for _, m := range messages {
		message := *m
		if message.TaskId == 0 {
			task_id, err := self.newRecordId(
				paths.NewClientPathManager(message.ClientId).Task,
				constants.CLIENT_MESSAGE_ATTRIBUTE)
			if err != nil {
				return err
			}
			message.TaskId = task_id
		}
		m.TaskId = message.TaskId

		err := self.setJSON(
			paths.NewClientPathManager(message.ClientId).Task(message.TaskId),
			constants.CLIENT_MESSAGE_ATTRIBUTE, &message, 0)
		if err != nil {
			return err
		}

		if !seen[message.ClientId] {
			seen[message.ClientId] = true
			to_notify = append(to_notify, message.ClientId)
		}
	}

	return nil
}

// Must be called with the lock held.
func (self *Store) readClientMessages(client_id string) ([]*flows.ClientMessage, error) {
	_, err := self.readClientMetadata(client_id)
	if err != nil {
		return nil, err
	}

	records, err := self.db.ScanAttribute(self.config_obj,
		paths.NewClientPathManager(client_id).TasksPrefix(),
		constants.CLIENT_MESSAGE_ATTRIBUTE, "", 0)
	if err != nil {
		return nil, err
	}

	result := make([]*flows.ClientMessage, 0, len(records))
	for _, record := range records {
		message := &flows.ClientMessage{}
		err := json.Unmarshal(record.Value, message)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %v", record.Subject)
		}
		result = append(result, message)
	}
	return result, nil
}

// All queued messages of the client ordered by task id, leased or
// not.
func (self *Store) ReadClientMessages(client_id string) ([]*flows.ClientMessage, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.readClientMessages(client_id)
}

// Leases up to limit messages which are not currently leased.
// limit <= 0 means no limit. A leased message becomes available again
// once the lease expires unless it is deleted first.
func (self *Store) LeaseClientMessages(client_id string,
	lease_time time.Duration, limit int) ([]*flows.ClientMessage, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	messages, err := self.readClientMessages(client_id)
	if err != nil {
		return nil, err
	}

	now := self.clock.Now()
	now_us := utils.Microseconds(now)
	leased_until := utils.Microseconds(now.Add(lease_time))

	result := []*flows.ClientMessage{}
	for _, message := range messages {
		if limit > 0 && len(result) >= limit {
			break
		}

		if message.LeasedUntil > now_us {
			continue
		}

		message.LeasedUntil = leased_until
		message.LeasedBy = self.worker_id

		err := self.setJSON(
			paths.NewClientPathManager(client_id).Task(message.TaskId),
			constants.CLIENT_MESSAGE_ATTRIBUTE, message, 0)
		if err != nil {
			return nil, err
		}
		result = append(result, message)
	}

	return result, nil
}

// Removes acknowledged messages. Unknown messages are ignored but the
// same message may not be given twice.
func (self *Store) DeleteClientMessages(messages []*flows.ClientMessage) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	seen := make(map[string]bool)
	for _, m := range messages {
		key := fmt.Sprintf("%v/%v", m.ClientId, m.TaskId)
		if seen[key] {
			return errors.WithMessagef(utils.InvalidArgError,
				"duplicate client message %v", key)
		}
		seen[key] = true

		err := paths.ValidateId("client_id", m.ClientId)
		if err != nil {
			return err
		}
	}

	for _, m := range messages {
		err := self.db.DeleteSubject(self.config_obj,
			paths.NewClientPathManager(m.ClientId).Task(m.TaskId))
		if err != nil {
			return err
		}
	}
	return nil
}
