package paths

// Requests for server side message handlers are queued per handler.
type MessageHandlerPathManager struct {
	handler_name string
}

func NewMessageHandlerPathManager(handler_name string) *MessageHandlerPathManager {
	return &MessageHandlerPathManager{handler_name: handler_name}
}

// Requests of all the handlers live under here.
func MessageHandlersPrefix() string {
	return MESSAGE_HANDLERS_ROOT + "/"
}

func (self MessageHandlerPathManager) Path() string {
	return MessageHandlersPrefix() + self.handler_name
}

func (self MessageHandlerPathManager) Request(request_id uint64) string {
	return self.Path() + "/" + FormatId(request_id)
}
