package flows

import (
	"sort"
	"sync"
)

// Describes a client action: the payload types it may send back.
type ActionDescriptor struct {
	Name          string
	ResponseTypes []string
}

func (self *ActionDescriptor) Accepts(payload_type string) bool {
	for _, t := range self.ResponseTypes {
		if t == payload_type {
			return true
		}
	}
	return false
}

type ActionRegistry struct {
	mu      sync.Mutex
	actions map[string]*ActionDescriptor
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{
		actions: make(map[string]*ActionDescriptor),
	}
}

func (self *ActionRegistry) Register(name string, response_types ...string) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.actions[name] = &ActionDescriptor{
		Name:          name,
		ResponseTypes: append([]string(nil), response_types...),
	}
}

func (self *ActionRegistry) Get(name string) (*ActionDescriptor, bool) {
	if self == nil {
		return nil, false
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	action, pres := self.actions[name]
	return action, pres
}

func (self *ActionRegistry) Names() []string {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := make([]string, 0, len(self.actions))
	for k := range self.actions {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
