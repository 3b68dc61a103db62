package flow_store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/logging"
	"www.velocidex.com/golang/flowsched/utils"
)

var (
	notificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsched_flow_processing_notifications_delivered",
			Help: "Number of flow processing notifications delivered to the handler.",
		},
		[]string{"mode"},
	)

	notificationsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowsched_flow_processing_notifications_queued",
		Help: "Number of flow processing notifications queued for the dispatcher.",
	})
)

// Called for each flow processing notification that becomes due.
type ProcessingHandler func(
	ctx context.Context, request *flows.FlowProcessingRequest)

func processingKey(client_id, flow_id string) string {
	return client_id + "/" + flow_id
}

// Delivers flow processing notifications to a single registered
// handler. Notifications are delivered inline when possible,
// otherwise a dispatcher goroutine polls for due notifications.
//
// Notifications are keyed by flow: a flow needs to be processed at
// most once for any number of ready requests.
type ProcessingQueue struct {
	mu sync.Mutex

	// Serializes inline delivery.
	inline_mu sync.Mutex

	ctx        context.Context
	config_obj *config.Config
	clock      utils.Clock
	limiter    *rate.Limiter

	pending map[string]*flows.FlowProcessingRequest
	handler ProcessingHandler

	// Set while the dispatcher goroutine runs.
	cancel func()
	wg     sync.WaitGroup
}

func (self *ProcessingQueue) WriteFlowProcessingRequests(
	requests []*flows.FlowProcessingRequest) {
	if len(requests) == 0 {
		return
	}

	now := self.clock.Now()

	self.mu.Lock()
	handler := self.handler
	inline := handler != nil && self.cancel == nil
	for _, r := range requests {
		if !r.DeliveryTime.IsZero() {
			inline = false
		}
	}

	// Inline delivery never runs concurrently with itself. A
	// handler writing more notifications goes through the queue.
	if !inline || !self.inline_mu.TryLock() {
		self.queue(requests, now)
		self.mu.Unlock()
		return
	}
	self.mu.Unlock()
	defer self.inline_mu.Unlock()

	for _, r := range requests {
		request := *r
		request.Timestamp = now
		self.deliver(self.ctx, handler, &request, "inline")
	}
}

// Must be called with the lock held.
func (self *ProcessingQueue) queue(
	requests []*flows.FlowProcessingRequest, now time.Time) {
	for _, r := range requests {
		request := *r
		request.Timestamp = now
		self.pending[processingKey(r.ClientId, r.FlowId)] = &request
		notificationsQueued.Inc()
	}

	if self.handler != nil {
		self.startDispatcher()
	}
}

func (self *ProcessingQueue) deliver(
	ctx context.Context, handler ProcessingHandler,
	request *flows.FlowProcessingRequest, mode string) {
	if self.limiter != nil {
		err := self.limiter.Wait(ctx)
		if err != nil {
			return
		}
	}
	notificationsDelivered.WithLabelValues(mode).Inc()
	handler(ctx, request)
}

// Pending notifications ordered by client and flow.
func (self *ProcessingQueue) ReadFlowProcessingRequests() []*flows.FlowProcessingRequest {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := make([]*flows.FlowProcessingRequest, 0, len(self.pending))
	for _, r := range self.pending {
		request := *r
		result = append(result, &request)
	}

	sort.Slice(result, func(i, j int) bool {
		return processingKey(result[i].ClientId, result[i].FlowId) <
			processingKey(result[j].ClientId, result[j].FlowId)
	})
	return result
}

// Removes pending notifications. Fails without removing anything if
// any of them is not pending.
func (self *ProcessingQueue) DeleteFlowProcessingRequests(
	requests []*flows.FlowProcessingRequest) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	for _, r := range requests {
		_, pres := self.pending[processingKey(r.ClientId, r.FlowId)]
		if !pres {
			return flows.UnknownFlowRequestError{
				ClientId:  r.ClientId,
				FlowId:    r.FlowId,
				RequestId: r.RequestId,
			}
		}
	}

	for _, r := range requests {
		delete(self.pending, processingKey(r.ClientId, r.FlowId))
	}
	return nil
}

func (self *ProcessingQueue) RegisterFlowProcessingHandler(handler ProcessingHandler) {
	self.UnregisterFlowProcessingHandler()

	self.mu.Lock()
	defer self.mu.Unlock()

	self.handler = handler

	// Notifications queued before the handler was registered.
	if len(self.pending) > 0 {
		self.startDispatcher()
	}
}

// Stops the dispatcher and waits for it to exit.
func (self *ProcessingQueue) UnregisterFlowProcessingHandler() {
	self.mu.Lock()
	cancel := self.cancel
	self.cancel = nil
	self.handler = nil
	self.mu.Unlock()

	if cancel != nil {
		cancel()
		self.wg.Wait()
	}
}

func (self *ProcessingQueue) IsDispatcherRunning() bool {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.cancel != nil
}

// Must be called with the lock held.
func (self *ProcessingQueue) startDispatcher() {
	if self.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(self.ctx)
	self.cancel = cancel
	handler := self.handler

	self.wg.Add(1)
	go func() {
		defer self.wg.Done()
		defer cancel()

		logger := logging.GetLogger(self.config_obj, &logging.WorkerComponent)
		logger.Debug("<green>Starting</> flow processing dispatcher")

		ticker := time.NewTicker(self.config_obj.PollInterval())
		defer ticker.Stop()

		for {
			for _, request := range self.popDue() {
				self.deliver(ctx, handler, request, "queued")
			}

			select {
			case <-ctx.Done():
				logger.Debug("<red>Stopped</> flow processing dispatcher")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Remove and return all notifications that are due.
func (self *ProcessingQueue) popDue() []*flows.FlowProcessingRequest {
	now := self.clock.Now()

	self.mu.Lock()
	defer self.mu.Unlock()

	result := []*flows.FlowProcessingRequest{}
	for k, r := range self.pending {
		if r.DeliveryTime.IsZero() || !r.DeliveryTime.After(now) {
			result = append(result, r)
			delete(self.pending, k)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result
}

func (self *ProcessingQueue) String() string {
	self.mu.Lock()
	defer self.mu.Unlock()

	return fmt.Sprintf("ProcessingQueue(pending=%v, dispatcher=%v)",
		len(self.pending), self.cancel != nil)
}

func NewProcessingQueue(
	ctx context.Context,
	wg *sync.WaitGroup,
	config_obj *config.Config,
	clock utils.Clock) *ProcessingQueue {

	self := &ProcessingQueue{
		ctx:        ctx,
		config_obj: config_obj,
		clock:      clock,
		pending:    make(map[string]*flows.FlowProcessingRequest),
	}

	if config_obj.Worker != nil && config_obj.Worker.NotificationsPerSecond > 0 {
		self.limiter = rate.NewLimiter(
			rate.Limit(config_obj.Worker.NotificationsPerSecond), 1)
	}

	// Stop the dispatcher when the service shuts down.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		self.UnregisterFlowProcessingHandler()
	}()

	return self
}
