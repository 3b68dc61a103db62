package flow_store

import (
	"www.velocidex.com/golang/flowsched/flows"
)

// The store owns the processing queue. These pass through to it so
// callers only deal with the store.

func (self *Store) WriteFlowProcessingRequests(
	requests []*flows.FlowProcessingRequest) {
	self.queue.WriteFlowProcessingRequests(requests)
}

func (self *Store) ReadFlowProcessingRequests() []*flows.FlowProcessingRequest {
	return self.queue.ReadFlowProcessingRequests()
}

func (self *Store) DeleteFlowProcessingRequests(
	requests []*flows.FlowProcessingRequest) error {
	return self.queue.DeleteFlowProcessingRequests(requests)
}

func (self *Store) RegisterFlowProcessingHandler(handler ProcessingHandler) {
	self.queue.RegisterFlowProcessingHandler(handler)
}

func (self *Store) UnregisterFlowProcessingHandler() {
	self.queue.UnregisterFlowProcessingHandler()
}
