package paths

import (
	"path"
)

type ClientPathManager struct {
	root      string
	client_id string
}

func NewClientPathManager(client_id string) *ClientPathManager {
	return &ClientPathManager{
		root:      path.Join(CLIENTS_ROOT, client_id),
		client_id: client_id,
	}
}

// Where we store the client's metadata record.
func (self ClientPathManager) Path() string {
	return self.root
}

// All flows of the client are stored under here.
func (self ClientPathManager) FlowsPrefix() string {
	return self.root + "/flows/"
}

// Queue tasks for the client in a directory within the client's
// main directory.
func (self ClientPathManager) TasksPrefix() string {
	return self.root + "/tasks/"
}

func (self ClientPathManager) Task(task_id uint64) string {
	return self.TasksPrefix() + FormatId(task_id)
}

func (self ClientPathManager) Flow(flow_id string) *FlowPathManager {
	return NewFlowPathManager(self.client_id, flow_id)
}
