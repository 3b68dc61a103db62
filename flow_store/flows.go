package flow_store

import (
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/flowsched/constants"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/json"
	"www.velocidex.com/golang/flowsched/paths"
	"www.velocidex.com/golang/flowsched/utils"
)

// Changes applied by UpdateFlow. nil fields are left unchanged.
type FlowUpdate struct {
	State              *flows.FlowState
	ErrorMessage       *string
	PendingTermination *flows.PendingTermination
	ClientCrashInfo    *flows.ClientCrash
}

// Must be called with the lock held.
func (self *Store) readFlow(client_id, flow_id string) (*flows.Flow, error) {
	err := paths.ValidateId("client_id", client_id)
	if err != nil {
		return nil, err
	}

	err = paths.ValidateId("flow_id", flow_id)
	if err != nil {
		return nil, err
	}

	result := &flows.Flow{}
	err = self.getJSON(paths.NewFlowPathManager(client_id, flow_id).Path(),
		constants.FLOW_OBJECT_ATTRIBUTE, result)
	if errors.Is(err, os.ErrNotExist) {
		return nil, flows.UnknownFlowError{ClientId: client_id, FlowId: flow_id}
	}
	return result, err
}

// Must be called with the lock held.
func (self *Store) writeFlow(flow *flows.Flow) error {
	return self.setJSON(paths.NewFlowPathManager(flow.ClientId, flow.FlowId).Path(),
		constants.FLOW_OBJECT_ATTRIBUTE, flow, 0)
}

// Creates or replaces the flow. The client must be known.
func (self *Store) WriteFlowObject(flow *flows.Flow) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	_, err := self.readClientMetadata(flow.ClientId)
	if err != nil {
		return err
	}

	err = paths.ValidateId("flow_id", flow.FlowId)
	if err != nil {
		return err
	}

	record := flow.Copy()
	if record.CreateTime == 0 {
		record.CreateTime = utils.Microseconds(self.clock.Now())
	}
	if record.State == "" {
		record.State = flows.FlowRunning
	}

	return self.writeFlow(record)
}

func (self *Store) ReadFlowObject(client_id, flow_id string) (*flows.Flow, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.readFlow(client_id, flow_id)
}

// All flows of the client ordered by flow id.
func (self *Store) ReadAllFlowObjects(client_id string) ([]*flows.Flow, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.readAllFlows(client_id)
}

func (self *Store) readAllFlows(client_id string) ([]*flows.Flow, error) {
	_, err := self.readClientMetadata(client_id)
	if err != nil {
		return nil, err
	}

	records, err := self.db.ScanAttribute(self.config_obj,
		paths.NewClientPathManager(client_id).FlowsPrefix(),
		constants.FLOW_OBJECT_ATTRIBUTE, "", 0)
	if err != nil {
		return nil, err
	}

	result := make([]*flows.Flow, 0, len(records))
	for _, record := range records {
		flow := &flows.Flow{}
		err := json.Unmarshal(record.Value, flow)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %v", record.Subject)
		}
		result = append(result, flow)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FlowId < result[j].FlowId
	})
	return result, nil
}

func (self *Store) ReadChildFlowObjects(
	client_id, parent_flow_id string) ([]*flows.Flow, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	all, err := self.readAllFlows(client_id)
	if err != nil {
		return nil, err
	}

	result := []*flows.Flow{}
	for _, flow := range all {
		if flow.ParentFlowId == parent_flow_id {
			result = append(result, flow)
		}
	}
	return result, nil
}

func (self *Store) UpdateFlow(client_id, flow_id string, update FlowUpdate) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	flow, err := self.readFlow(client_id, flow_id)
	if err != nil {
		return err
	}

	if update.State != nil {
		flow.State = *update.State
	}
	if update.ErrorMessage != nil {
		flow.ErrorMessage = *update.ErrorMessage
	}
	if update.PendingTermination != nil {
		pending := *update.PendingTermination
		flow.PendingTermination = &pending
	}
	if update.ClientCrashInfo != nil {
		crash := *update.ClientCrashInfo
		flow.ClientCrashInfo = &crash
	}

	return self.writeFlow(flow)
}

// Acquire the processing lease on the flow. This is a compare and
// swap: the lease is only granted if the flow is not leased or its
// lease expired.
func (self *Store) LeaseFlowForProcessing(
	client_id, flow_id string,
	processing_time time.Duration) (*flows.Flow, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	flow, err := self.readFlow(client_id, flow_id)
	if err != nil {
		return nil, err
	}

	now := self.clock.Now()
	if flow.IsLeased(now) {
		return nil, flows.LeaseConflictError{
			ClientId:     client_id,
			FlowId:       flow_id,
			ProcessingOn: flow.ProcessingOn,
			Deadline:     flow.ProcessingDeadline,
		}
	}

	flow.ProcessingOn = self.worker_id
	flow.ProcessingSince = utils.Microseconds(now)
	flow.ProcessingDeadline = utils.Microseconds(now.Add(processing_time))

	err = self.writeFlow(flow)
	if err != nil {
		return nil, err
	}

	return flow, nil
}

// Releases the lease and persists the flow. Refuses to do so (and
// changes nothing) when the request the flow needs next became ready
// while it was processed: the caller must process it before
// returning the flow.
func (self *Store) ReturnProcessedFlow(flow *flows.Flow) (bool, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	stored, err := self.readFlow(flow.ClientId, flow.FlowId)
	if err != nil {
		return false, err
	}

	request, pres, err := self.readRequest(
		flow.ClientId, flow.FlowId, flow.NextRequestToProcess)
	if err != nil {
		return false, err
	}

	if pres && request.NeedsProcessing {
		return false, nil
	}

	record := flow.Copy()
	record.ClearLease()

	// Termination may have been requested while we processed.
	if record.PendingTermination == nil && stored.PendingTermination != nil {
		record.PendingTermination = stored.PendingTermination
	}

	err = self.writeFlow(record)
	if err != nil {
		return false, err
	}

	return true, nil
}
