/*
   Velociraptor - Hunting Evil
   Copyright (C) 2019 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

// The flow processor drives flows forward.
//
// It registers as the store's processing handler. Every notification
// is handled on a worker pool: the processor leases the flow, reads
// its ready requests, assembles their responses and hands them to
// the flow runner in request order. It then writes what the runner
// produced and returns the flow.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/flow_store"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/logging"
	"www.velocidex.com/golang/flowsched/utils"
)

var (
	processedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowsched_worker_processed_requests",
		Help: "Number of flow requests processed.",
	})

	leaseConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowsched_worker_lease_conflicts",
		Help: "Number of times a flow was already leased by another worker.",
	})

	failedFlows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowsched_worker_failed_flows",
		Help: "Number of flows marked as failed by the worker.",
	})
)

type Processor struct {
	ctx        context.Context
	config_obj *config.Config
	store      *flow_store.Store
	registry   *flows.ActionRegistry
	runner     FlowRunner
	clock      utils.Clock
	pool       pond.Pool
}

func (self *Processor) handle(
	ctx context.Context, request *flows.FlowProcessingRequest) {
	self.pool.Submit(func() {
		_ = self.ProcessFlow(self.ctx, request)
	})
}

// Process all the ready requests of the flow named in the
// notification. Lease conflicts are not errors: the notification is
// retried later.
func (self *Processor) ProcessFlow(
	ctx context.Context, request *flows.FlowProcessingRequest) error {
	logger := logging.GetLogger(self.config_obj, &logging.WorkerComponent)

	flow, err := self.store.LeaseFlowForProcessing(
		request.ClientId, request.FlowId, self.config_obj.ProcessingTime())
	if errors.Is(err, flows.ErrLeaseConflict) {
		leaseConflicts.Inc()
		logger.Debug("ProcessFlow: %v", err)

		retry := *request
		retry.DeliveryTime = self.clock.Now().Add(self.config_obj.LeaseRetryDelay())
		self.store.WriteFlowProcessingRequests(
			[]*flows.FlowProcessingRequest{&retry})
		return nil
	}

	if err != nil {
		logger.Error("ProcessFlow: Unable to lease %v/%v: %v",
			request.ClientId, request.FlowId, err)
		return err
	}

	for {
		err = self.processReadyRequests(ctx, flow)
		if err != nil {
			self.failFlow(flow, err)
		}

		ok, err := self.store.ReturnProcessedFlow(flow)
		if err != nil {
			logger.Error("ProcessFlow: Unable to return %v/%v: %v",
				flow.ClientId, flow.FlowId, err)
			return err
		}

		// More requests became ready while we were working.
		if !ok {
			continue
		}
		return nil
	}
}

func (self *Processor) processReadyRequests(
	ctx context.Context, flow *flows.Flow) error {
	ready, err := self.store.ReadRequestsReadyFrom(
		flow.ClientId, flow.FlowId, flow.NextRequestToProcess)
	if err != nil {
		return err
	}

	for _, item := range ready {
		err := self.checkTermination(flow)
		if err != nil {
			return err
		}

		if flow.State != "" && flow.State != flows.FlowRunning {
			// Nothing more to do for this flow, discard stale
			// requests.
			err = self.store.DeleteFlowRequests(
				[]*flows.FlowRequest{item.Request})
			if err != nil {
				return err
			}
			flow.NextRequestToProcess++
			continue
		}

		err = self.processRequest(ctx, flow, item)
		if err != nil {
			return err
		}
	}

	return nil
}

// Termination is cooperative: it is checked before each request.
func (self *Processor) checkTermination(flow *flows.Flow) error {
	stored, err := self.store.ReadFlowObject(flow.ClientId, flow.FlowId)
	if err != nil {
		return err
	}

	if flow.PendingTermination == nil {
		flow.PendingTermination = stored.PendingTermination
	}

	if flow.PendingTermination != nil {
		return errors.New(flow.PendingTermination.Reason)
	}
	return nil
}

func (self *Processor) processRequest(ctx context.Context,
	flow *flows.Flow, item *flow_store.RequestAndResponses) error {
	responses, err := flows.Assemble(self.config_obj, self.registry,
		item.Request, item.Responses)
	if err != nil {
		return err
	}

	result, err := self.runner.ProcessRequest(ctx, flow, responses)
	if err != nil {
		return err
	}

	if result != nil {
		err = self.writeResult(flow, result)
		if err != nil {
			return err
		}

		if result.Finished {
			flow.State = flows.FlowFinished
		}
	}

	err = self.store.DeleteFlowRequests([]*flows.FlowRequest{item.Request})
	if err != nil {
		return err
	}

	flow.NextRequestToProcess++
	processedRequests.Inc()
	return nil
}

func (self *Processor) writeResult(
	flow *flows.Flow, result *FlowRunnerResult) error {
	for _, r := range result.Requests {
		r.ClientId = flow.ClientId
		r.FlowId = flow.FlowId
	}

	if len(result.Requests) > 0 {
		err := self.store.WriteFlowRequests(result.Requests)
		if err != nil {
			return err
		}
	}

	if len(result.Results) > 0 {
		err := self.store.WriteFlowResults(result.Results)
		if err != nil {
			return err
		}
	}

	if len(result.Logs) > 0 {
		err := self.store.WriteFlowLogEntries(result.Logs)
		if err != nil {
			return err
		}
	}

	if len(result.ClientMessages) > 0 {
		err := self.store.WriteClientMessages(result.ClientMessages)
		if err != nil {
			return err
		}
	}
	return nil
}

// Errors are fatal for the flow but never for the worker. The flow's
// outstanding requests are removed so it is not scheduled again.
func (self *Processor) failFlow(flow *flows.Flow, err error) {
	logger := logging.GetLogger(self.config_obj, &logging.WorkerComponent)
	logger.Error("ProcessFlow: Flow %v/%v failed: %v",
		flow.ClientId, flow.FlowId, err)

	failedFlows.Inc()
	flow.State = flows.FlowError
	flow.ErrorMessage = err.Error()

	err = self.store.DeleteAllFlowRequestsAndResponses(
		flow.ClientId, flow.FlowId)
	if err != nil {
		logger.Error("ProcessFlow: Unable to delete requests of %v/%v: %v",
			flow.ClientId, flow.FlowId, err)
	}
}

func NewProcessor(
	ctx context.Context,
	wg *sync.WaitGroup,
	config_obj *config.Config,
	store *flow_store.Store,
	registry *flows.ActionRegistry,
	runner FlowRunner,
	clock utils.Clock) *Processor {

	concurrency := 10
	if config_obj.Worker != nil && config_obj.Worker.Concurrency > 0 {
		concurrency = config_obj.Worker.Concurrency
	}

	self := &Processor{
		ctx:        ctx,
		config_obj: config_obj,
		store:      store,
		registry:   registry,
		runner:     runner,
		clock:      clock,
		pool:       pond.NewPool(concurrency),
	}

	store.RegisterFlowProcessingHandler(self.handle)

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		store.UnregisterFlowProcessingHandler()
		self.pool.StopAndWait()
	}()

	logger := logging.GetLogger(config_obj, &logging.WorkerComponent)
	logger.Info("<green>Starting</> flow processor as %v with %v workers",
		store.WorkerId(), concurrency)

	return self
}
