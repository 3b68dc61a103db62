package paths

import (
	"path"
)

type FlowPathManager struct {
	root      string
	client_id string
	flow_id   string
}

func NewFlowPathManager(client_id, flow_id string) *FlowPathManager {
	return &FlowPathManager{
		root:      path.Join(CLIENTS_ROOT, client_id, "flows", flow_id),
		client_id: client_id,
		flow_id:   flow_id,
	}
}

// The flow object itself.
func (self FlowPathManager) Path() string {
	return self.root
}

func (self FlowPathManager) RequestsPrefix() string {
	return self.root + "/requests/"
}

func (self FlowPathManager) Request(request_id uint64) string {
	return self.RequestsPrefix() + FormatId(request_id)
}

func (self FlowPathManager) ResponsesPrefix() string {
	return self.root + "/responses/"
}

// All responses of a single request.
func (self FlowPathManager) RequestResponsesPrefix(request_id uint64) string {
	return self.ResponsesPrefix() + FormatId(request_id) + "/"
}

func (self FlowPathManager) Response(request_id, response_id uint64) string {
	return self.RequestResponsesPrefix(request_id) + FormatId(response_id)
}

// Collection ids for results and logs emitted by the flow.
func (self FlowPathManager) Results() string {
	return self.root + "/results"
}

func (self FlowPathManager) Logs() string {
	return self.root + "/logs"
}
