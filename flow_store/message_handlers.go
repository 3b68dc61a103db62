package flow_store

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"www.velocidex.com/golang/flowsched/constants"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/json"
	"www.velocidex.com/golang/flowsched/logging"
	"www.velocidex.com/golang/flowsched/paths"
	"www.velocidex.com/golang/flowsched/utils"
)

var (
	messageHandlerRequestsLeased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowsched_message_handler_requests_leased",
		Help: "Number of message handler requests leased by a handler loop.",
	})
)

// Receives a batch of leased message handler requests. Requests not
// deleted by the handler are handed out again once their lease
// expires.
type MessageHandler func(
	ctx context.Context, requests []*flows.MessageHandlerRequest)

// Queues requests for message handlers. Requests without a request
// id are given one.
func (self *Store) WriteMessageHandlerRequests(
	requests []*flows.MessageHandlerRequest) error {
	for _, r := range requests {
		err := paths.ValidateId("handler_name", r.HandlerName)
		if err != nil {
			return err
		}
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	for _, r := range requests {
		request := *r
		path_manager := paths.NewMessageHandlerPathManager(request.HandlerName)
		if request.RequestId == 0 {
			request_id, err := self.newRecordId(path_manager.Request,
				constants.MESSAGE_HANDLER_ATTRIBUTE)
			if err != nil {
				return err
			}
			request.RequestId = request_id
		}
		r.RequestId = request.RequestId

		request.LeasedUntil = 0
		request.LeasedBy = ""
		request.Timestamp = self.nextTimestamp()

		err := self.setJSON(path_manager.Request(request.RequestId),
			constants.MESSAGE_HANDLER_ATTRIBUTE, &request, 0)
		if err != nil {
			return err
		}
	}
	return nil
}

// Must be called with the lock held.
func (self *Store) readMessageHandlerRequests() ([]*flows.MessageHandlerRequest, error) {
	records, err := self.db.ScanAttribute(self.config_obj,
		paths.MessageHandlersPrefix(), constants.MESSAGE_HANDLER_ATTRIBUTE, "", 0)
	if err != nil {
		return nil, err
	}

	result := make([]*flows.MessageHandlerRequest, 0, len(records))
	for _, record := range records {
		request := &flows.MessageHandlerRequest{}
		err := json.Unmarshal(record.Value, request)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %v", record.Subject)
		}
		result = append(result, request)
	}
	return result, nil
}

// All queued requests, leased or not, most recently written first.
func (self *Store) ReadMessageHandlerRequests() ([]*flows.MessageHandlerRequest, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	result, err := self.readMessageHandlerRequests()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp > result[j].Timestamp
	})
	return result, nil
}

// Removes handled requests. Unknown requests are ignored.
func (self *Store) DeleteMessageHandlerRequests(
	requests []*flows.MessageHandlerRequest) error {
	for _, r := range requests {
		err := paths.ValidateId("handler_name", r.HandlerName)
		if err != nil {
			return err
		}
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	for _, r := range requests {
		err := self.db.DeleteSubject(self.config_obj,
			paths.NewMessageHandlerPathManager(r.HandlerName).Request(r.RequestId))
		if err != nil {
			return err
		}
	}
	return nil
}

// Leases up to limit requests which are not currently leased. limit
// <= 0 means no limit.
func (self *Store) LeaseMessageHandlerRequests(
	lease_time time.Duration, limit int) ([]*flows.MessageHandlerRequest, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	requests, err := self.readMessageHandlerRequests()
	if err != nil {
		return nil, err
	}

	now := self.clock.Now()
	now_us := utils.Microseconds(now)
	leased_until := utils.Microseconds(now.Add(lease_time))

	result := []*flows.MessageHandlerRequest{}
	for _, request := range requests {
		if limit > 0 && len(result) >= limit {
			break
		}

		if request.LeasedUntil > now_us {
			continue
		}

		request.LeasedUntil = leased_until
		request.LeasedBy = self.worker_id

		err := self.setJSON(
			paths.NewMessageHandlerPathManager(request.HandlerName).
				Request(request.RequestId),
			constants.MESSAGE_HANDLER_ATTRIBUTE, request, 0)
		if err != nil {
			return nil, err
		}
		result = append(result, request)
	}

	messageHandlerRequestsLeased.Add(float64(len(result)))
	return result, nil
}

// Starts a loop leasing requests and passing them to the handler. A
// previously registered handler is stopped first.
func (self *Store) RegisterMessageHandler(
	handler MessageHandler, lease_time time.Duration, limit int) {
	self.UnregisterMessageHandler()

	self.handler_mu.Lock()
	defer self.handler_mu.Unlock()

	ctx, cancel := context.WithCancel(self.ctx)
	self.handler_cancel = cancel

	self.handler_wg.Add(1)
	go func() {
		defer self.handler_wg.Done()
		defer cancel()

		logger := logging.GetLogger(self.config_obj, &logging.WorkerComponent)
		logger.Debug("<green>Starting</> message handler loop")

		ticker := time.NewTicker(self.config_obj.PollInterval())
		defer ticker.Stop()

		for {
			requests, err := self.LeaseMessageHandlerRequests(lease_time, limit)
			if err != nil {
				logger.Error("LeaseMessageHandlerRequests: %v", err)
			}

			if len(requests) > 0 {
				handler(ctx, requests)
				if ctx.Err() != nil {
					return
				}
				continue
			}

			select {
			case <-ctx.Done():
				logger.Debug("<red>Stopped</> message handler loop")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stops the handler loop and waits for it to exit.
func (self *Store) UnregisterMessageHandler() {
	self.handler_mu.Lock()
	cancel := self.handler_cancel
	self.handler_cancel = nil
	self.handler_mu.Unlock()

	if cancel != nil {
		cancel()
		self.handler_wg.Wait()
	}
}
