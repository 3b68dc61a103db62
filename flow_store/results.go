package flow_store

import (
	"context"

	"www.velocidex.com/golang/flowsched/collections"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/paths"
)

// Results and logs are appended to collections kept under the flow.
// Records are keyed by strictly increasing timestamps so they read
// back in the order written. The suffix is random so stores sharing
// a datastore do not overwrite each other's records.

func (self *Store) addToCollection(
	collection_id, kind string, item interface{}, timestamp int64) error {
	payload, err := collections.NewPayload(kind, item)
	if err != nil {
		return err
	}

	collection := self.collections.Open(collection_id)
	_, err = collection.AddPayloadWithKey(payload,
		collections.Key{Timestamp: timestamp})
	return err
}

func (self *Store) WriteFlowResults(results []*flows.FlowResult) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	keys := make([]flowKey, 0, len(results))
	for _, r := range results {
		keys = append(keys, flowKey{r.ClientId, r.FlowId})
	}

	_, err := self.readFlows(keys)
	if err != nil {
		return err
	}

	for _, r := range results {
		result := *r
		timestamp := self.nextTimestamp()
		if result.Timestamp == 0 {
			result.Timestamp = timestamp
		}

		err := self.addToCollection(
			paths.NewFlowPathManager(r.ClientId, r.FlowId).Results(),
			flows.FlowResultKind, &result, timestamp)
		if err != nil {
			return err
		}
	}

	return nil
}

// Reads up to count results starting at offset. count <= 0 means all
// of them.
func (self *Store) ReadFlowResults(ctx context.Context,
	client_id, flow_id string, offset, count int64) ([]*flows.FlowResult, error) {
	collection, err := self.openFlowCollection(client_id, flow_id, false)
	if err != nil {
		return nil, err
	}

	result := []*flows.FlowResult{}
	err = readPayloads(ctx, collection, offset, count, func(item *collections.PayloadItem) error {
		flow_result := &flows.FlowResult{}
		err := item.Payload.Decode(flows.FlowResultKind, flow_result)
		if err != nil {
			return err
		}
		result = append(result, flow_result)
		return nil
	})
	return result, err
}

func (self *Store) CountFlowResults(ctx context.Context,
	client_id, flow_id string) (int64, error) {
	collection, err := self.openFlowCollection(client_id, flow_id, false)
	if err != nil {
		return 0, err
	}
	return collection.Length(ctx)
}

func (self *Store) WriteFlowLogEntries(entries []*flows.FlowLogEntry) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	keys := make([]flowKey, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, flowKey{e.ClientId, e.FlowId})
	}

	_, err := self.readFlows(keys)
	if err != nil {
		return err
	}

	for _, e := range entries {
		entry := *e
		timestamp := self.nextTimestamp()
		if entry.Timestamp == 0 {
			entry.Timestamp = timestamp
		}

		err := self.addToCollection(
			paths.NewFlowPathManager(e.ClientId, e.FlowId).Logs(),
			flows.FlowLogEntryKind, &entry, timestamp)
		if err != nil {
			return err
		}
	}

	return nil
}

func (self *Store) ReadFlowLogEntries(ctx context.Context,
	client_id, flow_id string, offset, count int64) ([]*flows.FlowLogEntry, error) {
	collection, err := self.openFlowCollection(client_id, flow_id, true)
	if err != nil {
		return nil, err
	}

	result := []*flows.FlowLogEntry{}
	err = readPayloads(ctx, collection, offset, count, func(item *collections.PayloadItem) error {
		entry := &flows.FlowLogEntry{}
		err := item.Payload.Decode(flows.FlowLogEntryKind, entry)
		if err != nil {
			return err
		}
		result = append(result, entry)
		return nil
	})
	return result, err
}

func (self *Store) CountFlowLogEntries(ctx context.Context,
	client_id, flow_id string) (int64, error) {
	collection, err := self.openFlowCollection(client_id, flow_id, true)
	if err != nil {
		return 0, err
	}
	return collection.Length(ctx)
}

func (self *Store) openFlowCollection(
	client_id, flow_id string, logs bool) (*collections.Collection, error) {
	self.mu.Lock()
	_, err := self.readFlow(client_id, flow_id)
	self.mu.Unlock()
	if err != nil {
		return nil, err
	}

	path_manager := paths.NewFlowPathManager(client_id, flow_id)
	if logs {
		return self.collections.Open(path_manager.Logs()), nil
	}
	return self.collections.Open(path_manager.Results()), nil
}

func readPayloads(ctx context.Context, collection *collections.Collection,
	offset, count int64, cb func(item *collections.PayloadItem) error) error {
	sub_ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var read int64
	for item := range collection.GeneratePayloads(sub_ctx, offset) {
		if count > 0 && read >= count {
			break
		}

		err := cb(item)
		if err != nil {
			return err
		}
		read++
	}
	return nil
}
