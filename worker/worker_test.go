package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/datastore"
	"www.velocidex.com/golang/flowsched/flow_store"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/utils"
	"www.velocidex.com/golang/flowsched/vtesting"
)

type WorkerTestSuite struct {
	suite.Suite

	config_obj *config.Config
	clock      *clockwork.FakeClock
	ctx        context.Context
	cancel     func()
	wg         *sync.WaitGroup
	store      *flow_store.Store
	registry   *flows.ActionRegistry
	processor  *Processor

	mu        sync.Mutex
	processed []string
	fail      bool
}

func (self *WorkerTestSuite) SetupTest() {
	self.config_obj = vtesting.GetTestConfig(self.T())
	self.config_obj.Worker.WorkerId = "worker1"
	self.config_obj.Worker.Concurrency = 2

	self.clock = clockwork.NewFakeClockAt(time.Unix(1700000000, 0))
	self.ctx, self.cancel = context.WithCancel(context.Background())
	self.wg = &sync.WaitGroup{}
	self.processed = nil
	self.fail = false

	self.store = flow_store.NewStore(self.ctx, self.wg, self.config_obj,
		datastore.NewMemoryDataStore(), self.clock)

	self.registry = flows.NewActionRegistry()
	self.registry.Register("ListDirectory", "StatEntry")

	self.processor = NewProcessor(self.ctx, self.wg, self.config_obj,
		self.store, self.registry, FlowRunnerFunc(self.runner), self.clock)

	require.NoError(self.T(), self.store.WriteClientMetadata(
		&flows.ClientMetadata{ClientId: "C.1"}))
	require.NoError(self.T(), self.store.WriteFlowObject(&flows.Flow{
		ClientId:             "C.1",
		FlowId:               "F.1",
		NextRequestToProcess: 1,
	}))
}

func (self *WorkerTestSuite) TearDownTest() {
	self.cancel()
	self.wg.Wait()
}

// Records the requests it sees and echoes the responses as results.
func (self *WorkerTestSuite) runner(ctx context.Context,
	flow *flows.Flow, responses *flows.Responses) (*FlowRunnerResult, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.fail {
		return nil, errors.New("runner exploded")
	}

	self.processed = append(self.processed, fmt.Sprintf("%v:%v",
		responses.Request.RequestId, responses.Len()))

	result, err := EchoRunner{}.ProcessRequest(ctx, flow, responses)
	if err != nil {
		return nil, err
	}

	// Request 1 leads to a follow up request.
	if responses.Request.RequestId == 1 {
		result.Requests = append(result.Requests, &flows.FlowRequest{
			RequestId:  10,
			ActionName: "ListDirectory",
		})
		result.ClientMessages = append(result.ClientMessages,
			&flows.ClientMessage{
				ClientId:   flow.ClientId,
				FlowId:     flow.FlowId,
				RequestId:  10,
				ActionName: "ListDirectory",
			})
	}
	return result, nil
}

func (self *WorkerTestSuite) getProcessed() []string {
	self.mu.Lock()
	defer self.mu.Unlock()

	return append([]string{}, self.processed...)
}

func (self *WorkerTestSuite) writeRequests(ids ...uint64) {
	requests := []*flows.FlowRequest{}
	for _, id := range ids {
		requests = append(requests, &flows.FlowRequest{
			ClientId:  "C.1",
			FlowId:    "F.1",
			RequestId: id,
		})
	}
	require.NoError(self.T(), self.store.WriteFlowRequests(requests))
}

func (self *WorkerTestSuite) complete(request_id, count uint64) {
	responses := []*flows.FlowResponse{}
	for i := uint64(1); i <= count; i++ {
		responses = append(responses, &flows.FlowResponse{
			ClientId:    "C.1",
			FlowId:      "F.1",
			RequestId:   request_id,
			ResponseId:  i,
			Type:        flows.ResponseData,
			AuthState:   flows.Authenticated,
			PayloadType: "StatEntry",
			Payload:     []byte(fmt.Sprintf("%v/%v", request_id, i)),
		})
	}
	responses = append(responses, &flows.FlowResponse{
		ClientId:   "C.1",
		FlowId:     "F.1",
		RequestId:  request_id,
		ResponseId: count,
		Type:       flows.ResponseStatus,
		AuthState:  flows.Authenticated,
		Status:     &flows.Status{Code: flows.StatusOK},
	})
	require.NoError(self.T(), self.store.WriteFlowResponses(responses))
}

func (self *WorkerTestSuite) waitForFlow(cb func(flow *flows.Flow) bool) *flows.Flow {
	var flow *flows.Flow
	vtesting.WaitUntil(5*time.Second, self.T(), func() bool {
		stored, err := self.store.ReadFlowObject("C.1", "F.1")
		if err != nil || stored.ProcessingOn != "" {
			return false
		}
		flow = stored
		return cb(stored)
	})
	return flow
}

func (self *WorkerTestSuite) TestProcessesRequestsInOrder() {
	before, err := utils.GetCounterValue(processedRequests)
	require.NoError(self.T(), err)

	self.writeRequests(1, 2, 3)

	// Requests complete out of order.
	self.complete(3, 1)
	self.complete(2, 2)
	assert.Equal(self.T(), []string{}, self.getProcessed())

	self.complete(1, 3)

	flow := self.waitForFlow(func(flow *flows.Flow) bool {
		return flow.NextRequestToProcess == 4
	})
	assert.Equal(self.T(), flows.FlowRunning, flow.State)
	assert.Equal(self.T(), []string{"1:3", "2:2", "3:1"}, self.getProcessed())

	after, err := utils.GetCounterValue(processedRequests)
	require.NoError(self.T(), err)
	assert.Equal(self.T(), int64(3), after-before)

	count, err := self.store.CountFlowResults(self.ctx, "C.1", "F.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), int64(6), count)

	results, err := self.store.ReadFlowResults(self.ctx, "C.1", "F.1", 0, 1)
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 1, len(results))
	assert.Equal(self.T(), "1/1", string(results[0].Payload))

	// The follow up request and its client message were written.
	all, err := self.store.ReadAllFlowRequestsAndResponses("C.1", "F.1")
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 1, len(all))
	assert.Equal(self.T(), uint64(10), all[0].Request.RequestId)

	messages, err := self.store.ReadClientMessages("C.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 1, len(messages))

	logs, err := self.store.CountFlowLogEntries(self.ctx, "C.1", "F.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), int64(3), logs)
}

func (self *WorkerTestSuite) TestProtocolErrorFailsFlow() {
	require.NoError(self.T(), self.store.WriteFlowRequests(
		[]*flows.FlowRequest{{
			ClientId:   "C.1",
			FlowId:     "F.1",
			RequestId:  1,
			ActionName: "Format",
		}}))
	self.complete(1, 1)

	flow := self.waitForFlow(func(flow *flows.Flow) bool {
		return flow.State == flows.FlowError
	})
	assert.Contains(self.T(), flow.ErrorMessage, "Client action Format is not known")
	assert.Equal(self.T(), []string{}, self.getProcessed())

	all, err := self.store.ReadAllFlowRequestsAndResponses("C.1", "F.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 0, len(all))
}

func (self *WorkerTestSuite) TestRunnerErrorFailsFlow() {
	self.mu.Lock()
	self.fail = true
	self.mu.Unlock()

	self.writeRequests(1)
	self.complete(1, 1)

	flow := self.waitForFlow(func(flow *flows.Flow) bool {
		return flow.State == flows.FlowError
	})
	assert.Equal(self.T(), "runner exploded", flow.ErrorMessage)
}

func (self *WorkerTestSuite) TestPendingTermination() {
	require.NoError(self.T(), self.store.UpdateFlow("C.1", "F.1",
		flow_store.FlowUpdate{
			PendingTermination: &flows.PendingTermination{
				Reason: "Cancelled by admin"},
		}))

	self.writeRequests(1)
	self.complete(1, 1)

	flow := self.waitForFlow(func(flow *flows.Flow) bool {
		return flow.State == flows.FlowError
	})
	assert.Equal(self.T(), "Cancelled by admin", flow.ErrorMessage)
	assert.Equal(self.T(), []string{}, self.getProcessed())
}

func (self *WorkerTestSuite) TestLeaseConflictIsRetried() {
	// Another worker holds the flow.
	_, err := self.store.LeaseFlowForProcessing("C.1", "F.1", time.Minute)
	require.NoError(self.T(), err)

	self.writeRequests(1)
	self.complete(1, 1)

	// The notification is put back with a delay.
	vtesting.WaitUntil(5*time.Second, self.T(), func() bool {
		return len(self.store.ReadFlowProcessingRequests()) == 1
	})
	assert.Equal(self.T(), []string{}, self.getProcessed())

	// The other worker's lease expires.
	self.clock.Advance(2 * time.Minute)

	self.waitForFlow(func(flow *flows.Flow) bool {
		return flow.NextRequestToProcess == 2
	})
	assert.Equal(self.T(), []string{"1:1"}, self.getProcessed())
}

func (self *WorkerTestSuite) TestFinishedFlowDropsLaterRequests() {
	require.NoError(self.T(), self.store.WriteFlowRequests(
		[]*flows.FlowRequest{
			{ClientId: "C.1", FlowId: "F.1", RequestId: 1, NextState: "End"},
			{ClientId: "C.1", FlowId: "F.1", RequestId: 2},
		}))
	self.complete(2, 1)
	self.complete(1, 1)

	flow := self.waitForFlow(func(flow *flows.Flow) bool {
		return flow.State == flows.FlowFinished && flow.NextRequestToProcess == 3
	})
	assert.Equal(self.T(), "", flow.ErrorMessage)
	assert.Equal(self.T(), []string{"1:1"}, self.getProcessed())
}

func TestWorker(t *testing.T) {
	suite.Run(t, &WorkerTestSuite{})
}
