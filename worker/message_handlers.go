package worker

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/constants"
	"www.velocidex.com/golang/flowsched/flow_store"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/json"
	"www.velocidex.com/golang/flowsched/logging"
)

var (
	handledMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsched_worker_message_handler_requests",
			Help: "Number of message handler requests handled.",
		},
		[]string{"handler", "status"},
	)
)

const ClientStartupHandler = "ClientStartup"

// Handles a single request. Errors are logged and the request is
// dropped.
type MessageHandlerFunc func(
	ctx context.Context, request *flows.MessageHandlerRequest) error

// Dispatches requests queued for message handlers by handler name.
type MessageHandlers struct {
	mu sync.Mutex

	config_obj *config.Config
	store      *flow_store.Store
	handlers   map[string]MessageHandlerFunc
}

func (self *MessageHandlers) Register(name string, handler MessageHandlerFunc) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.handlers[name] = handler
}

func (self *MessageHandlers) get(name string) (MessageHandlerFunc, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()

	handler, pres := self.handlers[name]
	return handler, pres
}

func (self *MessageHandlers) process(
	ctx context.Context, requests []*flows.MessageHandlerRequest) {
	logger := logging.GetLogger(self.config_obj, &logging.WorkerComponent)

	for _, request := range requests {
		handler, pres := self.get(request.HandlerName)
		if !pres {
			logger.Error("MessageHandlers: No handler %v for request %v",
				request.HandlerName, request.RequestId)
			handledMessages.WithLabelValues(request.HandlerName, "unknown").Inc()
			continue
		}

		err := handler(ctx, request)
		if err != nil {
			logger.Error("MessageHandlers: %v: request %v: %v",
				request.HandlerName, request.RequestId, err)
			handledMessages.WithLabelValues(request.HandlerName, "error").Inc()
			continue
		}
		handledMessages.WithLabelValues(request.HandlerName, "ok").Inc()
	}

	err := self.store.DeleteMessageHandlerRequests(requests)
	if err != nil {
		logger.Error("MessageHandlers: DeleteMessageHandlerRequests: %v", err)
	}
}

type clientStartup struct {
	Hostname string `json:"hostname,omitempty"`
}

// Records a client's startup information, enrolling it if it is new.
func (self *MessageHandlers) handleClientStartup(
	ctx context.Context, request *flows.MessageHandlerRequest) error {
	startup := &clientStartup{}
	if len(request.Request) > 0 {
		err := json.Unmarshal(request.Request, startup)
		if err != nil {
			return errors.Wrap(err, "decoding startup")
		}
	}

	metadata, err := self.store.ReadClientMetadata(request.ClientId)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		metadata = &flows.ClientMetadata{ClientId: request.ClientId}
	}

	if startup.Hostname != "" {
		metadata.Hostname = startup.Hostname
	}
	metadata.LastPing = request.Timestamp

	return self.store.WriteClientMetadata(metadata)
}

// Leases requests for message handlers from the store until ctx is
// done.
func NewMessageHandlers(
	ctx context.Context,
	wg *sync.WaitGroup,
	config_obj *config.Config,
	store *flow_store.Store) *MessageHandlers {

	self := &MessageHandlers{
		config_obj: config_obj,
		store:      store,
		handlers:   make(map[string]MessageHandlerFunc),
	}
	self.Register(ClientStartupHandler, self.handleClientStartup)

	store.RegisterMessageHandler(self.process,
		constants.MESSAGE_HANDLER_LEASE_TIME,
		constants.MESSAGE_HANDLER_LEASE_LIMIT)

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		store.UnregisterMessageHandler()
	}()

	return self
}
