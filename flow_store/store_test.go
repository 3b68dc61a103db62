package flow_store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/datastore"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/logging"
	"www.velocidex.com/golang/flowsched/utils"
	"www.velocidex.com/golang/flowsched/vtesting"
)

var (
	start_time = time.Unix(1700000000, 0)
)

type FlowStoreTestSuite struct {
	suite.Suite

	config_obj *config.Config
	db         *datastore.MemoryDataStore
	clock      *clockwork.FakeClock
	ctx        context.Context
	cancel     func()
	wg         *sync.WaitGroup
	store      *Store

	mu       sync.Mutex
	notified []*flows.FlowProcessingRequest
}

func (self *FlowStoreTestSuite) SetupTest() {
	self.config_obj = vtesting.GetTestConfig(self.T())
	self.config_obj.Worker.WorkerId = "worker1"

	self.db = datastore.NewMemoryDataStore()
	self.clock = clockwork.NewFakeClockAt(start_time)
	self.ctx, self.cancel = context.WithCancel(context.Background())
	self.wg = &sync.WaitGroup{}
	self.store = NewStore(self.ctx, self.wg, self.config_obj, self.db, self.clock)
	self.notified = nil

	self.store.RegisterFlowProcessingHandler(
		func(ctx context.Context, request *flows.FlowProcessingRequest) {
			self.mu.Lock()
			defer self.mu.Unlock()
			self.notified = append(self.notified, request)
		})

	require.NoError(self.T(), self.store.WriteClientMetadata(
		&flows.ClientMetadata{ClientId: "C.1"}))
	require.NoError(self.T(), self.store.WriteFlowObject(&flows.Flow{
		ClientId:             "C.1",
		FlowId:               "F.1",
		NextRequestToProcess: 1,
	}))

	logging.ClearMemoryLogs()
}

func (self *FlowStoreTestSuite) TearDownTest() {
	self.cancel()
	self.wg.Wait()
}

func (self *FlowStoreTestSuite) getNotified() []uint64 {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []uint64{}
	for _, n := range self.notified {
		result = append(result, n.RequestId)
	}
	return result
}

func (self *FlowStoreTestSuite) request(request_id uint64) *flows.FlowRequest {
	return &flows.FlowRequest{
		ClientId:  "C.1",
		FlowId:    "F.1",
		RequestId: request_id,
	}
}

func (self *FlowStoreTestSuite) data(
	request_id, response_id uint64) *flows.FlowResponse {
	return &flows.FlowResponse{
		ClientId:   "C.1",
		FlowId:     "F.1",
		RequestId:  request_id,
		ResponseId: response_id,
		Type:       flows.ResponseData,
		AuthState:  flows.Authenticated,
		Payload:    []byte{byte(response_id)},
	}
}

func (self *FlowStoreTestSuite) status(
	request_id, response_id uint64) *flows.FlowResponse {
	return &flows.FlowResponse{
		ClientId:   "C.1",
		FlowId:     "F.1",
		RequestId:  request_id,
		ResponseId: response_id,
		Type:       flows.ResponseStatus,
		AuthState:  flows.Authenticated,
		Status:     &flows.Status{Code: flows.StatusOK},
	}
}

// Write all data responses and a status declaring them.
func (self *FlowStoreTestSuite) complete(request_id, count uint64) {
	responses := []*flows.FlowResponse{}
	for i := uint64(1); i <= count; i++ {
		responses = append(responses, self.data(request_id, i))
	}
	responses = append(responses, self.status(request_id, count))
	require.NoError(self.T(), self.store.WriteFlowResponses(responses))
}

func (self *FlowStoreTestSuite) TestUnknownEntities() {
	err := self.store.WriteFlowObject(&flows.Flow{ClientId: "C.2", FlowId: "F.1"})
	assert.IsType(self.T(), flows.UnknownClientError{}, err)

	_, err = self.store.ReadFlowObject("C.1", "F.2")
	assert.IsType(self.T(), flows.UnknownFlowError{}, err)
	assert.True(self.T(), errors.Is(err, os.ErrNotExist))

	// One unknown flow fails the whole write.
	unknown := self.request(1)
	unknown.FlowId = "F.2"
	err = self.store.WriteFlowRequests([]*flows.FlowRequest{
		self.request(1), unknown})
	assert.IsType(self.T(), flows.UnknownFlowError{}, err)

	all, err := self.store.ReadAllFlowRequestsAndResponses("C.1", "F.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 0, len(all))

	bad_response := self.data(1, 1)
	bad_response.FlowId = "F.2"
	err = self.store.WriteFlowResponses([]*flows.FlowResponse{bad_response})
	assert.IsType(self.T(), flows.UnknownFlowError{}, err)

	err = self.store.WriteFlowObject(&flows.Flow{ClientId: "C.1", FlowId: "F/1"})
	assert.True(self.T(), errors.Is(err, utils.InvalidArgError))
}

func (self *FlowStoreTestSuite) TestRequestCompletesWhenAllResponsesArrive() {
	require.NoError(self.T(), self.store.WriteFlowRequests(
		[]*flows.FlowRequest{self.request(1)}))

	require.NoError(self.T(), self.store.WriteFlowResponses(
		[]*flows.FlowResponse{
			self.data(1, 1), self.data(1, 2), self.status(1, 3)}))

	ready, err := self.store.ReadFlowRequestsReadyForProcessing("C.1", "F.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 0, len(ready))
	assert.Equal(self.T(), []uint64{}, self.getNotified())

	// The status declared three data responses.
	all, err := self.store.ReadAllFlowRequestsAndResponses("C.1", "F.1")
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 1, len(all))
	assert.Equal(self.T(), uint64(3), *all[0].Request.NrResponsesExpected)
	assert.False(self.T(), all[0].Request.NeedsProcessing)

	require.NoError(self.T(), self.store.WriteFlowResponses(
		[]*flows.FlowResponse{self.data(1, 3)}))

	ready, err = self.store.ReadFlowRequestsReadyForProcessing("C.1", "F.1")
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 1, len(ready))
	assert.Equal(self.T(), uint64(1), ready[0].Request.RequestId)
	assert.True(self.T(), ready[0].Request.NeedsProcessing)

	responses, err := flows.Assemble(self.config_obj, nil,
		ready[0].Request, ready[0].Responses)
	assert.NoError(self.T(), err)
	assert.True(self.T(), responses.Success)
	assert.Equal(self.T(), [][]byte{{1}, {2}, {3}}, responses.Payloads())

	// Processing notification was delivered inline.
	assert.Equal(self.T(), []uint64{1}, self.getNotified())
}

func (self *FlowStoreTestSuite) TestIncompleteRequestBlocksLaterOnes() {
	require.NoError(self.T(), self.store.WriteFlowRequests(
		[]*flows.FlowRequest{self.request(1), self.request(2)}))

	// Request 1 is missing its status.
	require.NoError(self.T(), self.store.WriteFlowResponses(
		[]*flows.FlowResponse{self.data(1, 1)}))
	self.complete(2, 2)

	ready, err := self.store.ReadFlowRequestsReadyForProcessing("C.1", "F.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 0, len(ready))

	// Request 2 is not the next request so nothing is notified.
	assert.Equal(self.T(), []uint64{}, self.getNotified())

	require.NoError(self.T(), self.store.WriteFlowResponses(
		[]*flows.FlowResponse{self.status(1, 1)}))

	ready, err = self.store.ReadFlowRequestsReadyForProcessing("C.1", "F.1")
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 2, len(ready))
	assert.Equal(self.T(), uint64(1), ready[0].Request.RequestId)
	assert.Equal(self.T(), uint64(2), ready[1].Request.RequestId)
	assert.Equal(self.T(), 3, len(ready[1].Responses))
	assert.Equal(self.T(), []uint64{1}, self.getNotified())
}

func (self *FlowStoreTestSuite) TestRequestsWrittenReady() {
	ready_request := self.request(1)
	ready_request.NeedsProcessing = true

	later_request := self.request(2)
	later_request.NeedsProcessing = true

	require.NoError(self.T(), self.store.WriteFlowRequests(
		[]*flows.FlowRequest{ready_request, later_request}))
	assert.Equal(self.T(), []uint64{1}, self.getNotified())

	ready, err := self.store.ReadRequestsReadyFrom("C.1", "F.1", 2)
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 1, len(ready))
	assert.Equal(self.T(), uint64(2), ready[0].Request.RequestId)
}

func (self *FlowStoreTestSuite) TestResponseForUnknownRequest() {
	require.NoError(self.T(), self.store.WriteFlowResponses(
		[]*flows.FlowResponse{self.data(7, 1)}))

	vtesting.MemoryLogsContain(self.T(),
		"^ERROR: C.1/F.1: Response 1 for unknown request 7 dropped")
}

func (self *FlowStoreTestSuite) TestLeases() {
	flow, err := self.store.LeaseFlowForProcessing("C.1", "F.1", time.Minute)
	require.NoError(self.T(), err)
	assert.Equal(self.T(), "worker1", flow.ProcessingOn)
	assert.Equal(self.T(), utils.Microseconds(start_time), flow.ProcessingSince)
	assert.Equal(self.T(), utils.Microseconds(start_time.Add(time.Minute)),
		flow.ProcessingDeadline)

	_, err = self.store.LeaseFlowForProcessing("C.1", "F.1", time.Minute)
	assert.True(self.T(), errors.Is(err, flows.ErrLeaseConflict))

	self.clock.Advance(30 * time.Second)
	_, err = self.store.LeaseFlowForProcessing("C.1", "F.1", time.Minute)
	assert.True(self.T(), errors.Is(err, flows.ErrLeaseConflict))

	// Lease expired.
	self.clock.Advance(30 * time.Second)
	flow, err = self.store.LeaseFlowForProcessing("C.1", "F.1", time.Minute)
	require.NoError(self.T(), err)
	assert.Equal(self.T(), utils.Microseconds(start_time.Add(time.Minute)),
		flow.ProcessingSince)

	_, err = self.store.LeaseFlowForProcessing("C.1", "F.2", time.Minute)
	assert.IsType(self.T(), flows.UnknownFlowError{}, err)
}

func (self *FlowStoreTestSuite) TestConcurrentLeases() {
	var mu sync.Mutex
	var wg sync.WaitGroup
	succeeded := 0
	conflicts := 0

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := self.store.LeaseFlowForProcessing("C.1", "F.1", time.Minute)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, flows.ErrLeaseConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(self.T(), 1, succeeded)
	assert.Equal(self.T(), 1, conflicts)
}

func (self *FlowStoreTestSuite) TestReturnProcessedFlow() {
	require.NoError(self.T(), self.store.WriteFlowRequests(
		[]*flows.FlowRequest{self.request(1), self.request(2)}))
	self.complete(1, 1)

	flow, err := self.store.LeaseFlowForProcessing("C.1", "F.1", time.Minute)
	require.NoError(self.T(), err)

	ready, err := self.store.ReadFlowRequestsReadyForProcessing("C.1", "F.1")
	require.NoError(self.T(), err)
	require.Equal(self.T(), 1, len(ready))

	// Process request 1.
	require.NoError(self.T(), self.store.DeleteFlowRequests(
		[]*flows.FlowRequest{ready[0].Request}))
	flow.NextRequestToProcess++

	// Meanwhile request 2 completes.
	self.complete(2, 1)

	ok, err := self.store.ReturnProcessedFlow(flow)
	assert.NoError(self.T(), err)
	assert.False(self.T(), ok)

	// Nothing changed.
	stored, err := self.store.ReadFlowObject("C.1", "F.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), uint64(1), stored.NextRequestToProcess)
	assert.Equal(self.T(), "worker1", stored.ProcessingOn)

	// Process request 2 then return the flow.
	ready, err = self.store.ReadRequestsReadyFrom(
		"C.1", "F.1", flow.NextRequestToProcess)
	require.NoError(self.T(), err)
	require.Equal(self.T(), 1, len(ready))
	require.NoError(self.T(), self.store.DeleteFlowRequests(
		[]*flows.FlowRequest{ready[0].Request}))
	flow.NextRequestToProcess++

	ok, err = self.store.ReturnProcessedFlow(flow)
	assert.NoError(self.T(), err)
	assert.True(self.T(), ok)

	stored, err = self.store.ReadFlowObject("C.1", "F.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), uint64(3), stored.NextRequestToProcess)
	assert.Equal(self.T(), "", stored.ProcessingOn)
	assert.Equal(self.T(), int64(0), stored.ProcessingDeadline)

	// The flow can be leased again straight away.
	_, err = self.store.LeaseFlowForProcessing("C.1", "F.1", time.Minute)
	assert.NoError(self.T(), err)
}

func (self *FlowStoreTestSuite) TestReturnKeepsPendingTermination() {
	flow, err := self.store.LeaseFlowForProcessing("C.1", "F.1", time.Minute)
	require.NoError(self.T(), err)

	require.NoError(self.T(), self.store.UpdateFlow("C.1", "F.1", FlowUpdate{
		PendingTermination: &flows.PendingTermination{Reason: "cancelled"},
	}))

	ok, err := self.store.ReturnProcessedFlow(flow)
	assert.NoError(self.T(), err)
	assert.True(self.T(), ok)

	stored, err := self.store.ReadFlowObject("C.1", "F.1")
	assert.NoError(self.T(), err)
	require.NotNil(self.T(), stored.PendingTermination)
	assert.Equal(self.T(), "cancelled", stored.PendingTermination.Reason)
}

func (self *FlowStoreTestSuite) TestUpdateAndChildFlows() {
	for _, flow_id := range []string{"F.3", "F.2"} {
		require.NoError(self.T(), self.store.WriteFlowObject(&flows.Flow{
			ClientId:     "C.1",
			FlowId:       flow_id,
			ParentFlowId: "F.1",
		}))
	}

	children, err := self.store.ReadChildFlowObjects("C.1", "F.1")
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 2, len(children))
	assert.Equal(self.T(), "F.2", children[0].FlowId)
	assert.Equal(self.T(), flows.FlowRunning, children[0].State)
	assert.Equal(self.T(), utils.Microseconds(start_time), children[0].CreateTime)

	state := flows.FlowError
	message := "Client crashed"
	require.NoError(self.T(), self.store.UpdateFlow("C.1", "F.2", FlowUpdate{
		State:        &state,
		ErrorMessage: &message,
	}))

	flow, err := self.store.ReadFlowObject("C.1", "F.2")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), flows.FlowError, flow.State)
	assert.Equal(self.T(), "Client crashed", flow.ErrorMessage)
	assert.Equal(self.T(), "F.1", flow.ParentFlowId)

	all, err := self.store.ReadAllFlowObjects("C.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 3, len(all))

	err = self.store.UpdateFlow("C.1", "F.9", FlowUpdate{State: &state})
	assert.IsType(self.T(), flows.UnknownFlowError{}, err)
}

func (self *FlowStoreTestSuite) TestDeleteFlowRequests() {
	require.NoError(self.T(), self.store.WriteFlowRequests(
		[]*flows.FlowRequest{self.request(1), self.request(2)}))
	self.complete(1, 2)

	err := self.store.DeleteFlowRequests(
		[]*flows.FlowRequest{self.request(1), self.request(5)})
	assert.IsType(self.T(), flows.UnknownFlowRequestError{}, err)

	all, err := self.store.ReadAllFlowRequestsAndResponses("C.1", "F.1")
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 2, len(all))
	assert.Equal(self.T(), 3, len(all[0].Responses))

	require.NoError(self.T(), self.store.DeleteFlowRequests(
		[]*flows.FlowRequest{self.request(1)}))

	all, err = self.store.ReadAllFlowRequestsAndResponses("C.1", "F.1")
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 1, len(all))
	assert.Equal(self.T(), uint64(2), all[0].Request.RequestId)

	require.NoError(self.T(),
		self.store.DeleteAllFlowRequestsAndResponses("C.1", "F.1"))
	all, err = self.store.ReadAllFlowRequestsAndResponses("C.1", "F.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 0, len(all))
}

func (self *FlowStoreTestSuite) TestResultsAndLogs() {
	results := []*flows.FlowResult{}
	for _, tag := range []string{"a", "b", "c"} {
		results = append(results, &flows.FlowResult{
			ClientId: "C.1",
			FlowId:   "F.1",
			Tag:      tag,
		})
	}
	require.NoError(self.T(), self.store.WriteFlowResults(results))

	count, err := self.store.CountFlowResults(self.ctx, "C.1", "F.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), int64(3), count)

	read, err := self.store.ReadFlowResults(self.ctx, "C.1", "F.1", 1, 1)
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 1, len(read))
	assert.Equal(self.T(), "b", read[0].Tag)

	read, err = self.store.ReadFlowResults(self.ctx, "C.1", "F.1", 0, 0)
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 3, len(read))
	assert.True(self.T(), read[0].Timestamp < read[1].Timestamp)

	require.NoError(self.T(), self.store.WriteFlowLogEntries(
		[]*flows.FlowLogEntry{{
			ClientId: "C.1", FlowId: "F.1", Message: "Hello",
		}}))

	logs, err := self.store.ReadFlowLogEntries(self.ctx, "C.1", "F.1", 0, 10)
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 1, len(logs))
	assert.Equal(self.T(), "Hello", logs[0].Message)

	count, err = self.store.CountFlowLogEntries(self.ctx, "C.1", "F.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), int64(1), count)

	err = self.store.WriteFlowResults([]*flows.FlowResult{
		{ClientId: "C.1", FlowId: "F.7"}})
	assert.IsType(self.T(), flows.UnknownFlowError{}, err)
}

func (self *FlowStoreTestSuite) TestClientMessages() {
	listener, closer := self.store.Notifier().Listen("C.1")
	defer closer()

	messages := []*flows.ClientMessage{}
	for i := 0; i < 3; i++ {
		messages = append(messages, &flows.ClientMessage{
			ClientId:   "C.1",
			ActionName: "ListDirectory",
		})
	}
	require.NoError(self.T(), self.store.WriteClientMessages(messages))

	// Queuing messages wakes the client.
	select {
	case <-listener:
	default:
		self.T().Fatalf("client was not notified")
	}

	assert.True(self.T(), messages[0].TaskId < messages[1].TaskId)

	leased, err := self.store.LeaseClientMessages("C.1", time.Minute, 2)
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 2, len(leased))
	assert.Equal(self.T(), messages[0].TaskId, leased[0].TaskId)
	assert.Equal(self.T(), "worker1", leased[0].LeasedBy)

	leased, err = self.store.LeaseClientMessages("C.1", time.Minute, 0)
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 1, len(leased))
	assert.Equal(self.T(), messages[2].TaskId, leased[0].TaskId)

	// Everything is leased.
	leased, err = self.store.LeaseClientMessages("C.1", time.Minute, 0)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 0, len(leased))

	// Acknowledge the first message.
	err = self.store.DeleteClientMessages(
		[]*flows.ClientMessage{messages[0], messages[0]})
	assert.True(self.T(), errors.Is(err, utils.InvalidArgError))

	require.NoError(self.T(), self.store.DeleteClientMessages(
		[]*flows.ClientMessage{messages[0], {ClientId: "C.1", TaskId: 5}}))

	// Unacknowledged messages come back after the lease expires.
	self.clock.Advance(time.Minute)
	leased, err = self.store.LeaseClientMessages("C.1", time.Minute, 0)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 2, len(leased))

	all, err := self.store.ReadClientMessages("C.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 2, len(all))

	err = self.store.WriteClientMessages([]*flows.ClientMessage{
		{ClientId: "C.1"}, {ClientId: "C.2"}})
	assert.IsType(self.T(), flows.UnknownClientError{}, err)

	all, err = self.store.ReadClientMessages("C.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 2, len(all))
}

func (self *FlowStoreTestSuite) TestRelativePathIds() {
	for _, id := range []string{".", ".."} {
		err := self.store.WriteClientMetadata(&flows.ClientMetadata{ClientId: id})
		assert.True(self.T(), errors.Is(err, utils.InvalidArgError), id)

		err = self.store.WriteFlowObject(&flows.Flow{ClientId: "C.1", FlowId: id})
		assert.True(self.T(), errors.Is(err, utils.InvalidArgError), id)

		_, err = self.store.ReadFlowObject("C.1", id)
		assert.True(self.T(), errors.Is(err, utils.InvalidArgError), id)
	}
}

// Two stores over the same datastore, for example two worker
// processes, write at the same instant.
func (self *FlowStoreTestSuite) TestStoresSharingDatastore() {
	config_obj := vtesting.GetTestConfig(self.T())
	config_obj.Worker.WorkerId = "worker2"
	other := NewStore(self.ctx, self.wg, config_obj, self.db, self.clock)

	for _, store := range []*Store{self.store, other} {
		require.NoError(self.T(), store.WriteClientMessages(
			[]*flows.ClientMessage{{ClientId: "C.1", ActionName: "Echo"}}))
		require.NoError(self.T(), store.WriteFlowResults(
			[]*flows.FlowResult{{ClientId: "C.1", FlowId: "F.1", Tag: store.WorkerId()}}))
		require.NoError(self.T(), store.WriteFlowLogEntries(
			[]*flows.FlowLogEntry{{ClientId: "C.1", FlowId: "F.1", Message: store.WorkerId()}}))
	}

	messages, err := self.store.ReadClientMessages("C.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 2, len(messages))

	results, err := other.ReadFlowResults(self.ctx, "C.1", "F.1", 0, 0)
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 2, len(results))

	tags := []string{results[0].Tag, results[1].Tag}
	assert.ElementsMatch(self.T(), []string{"worker1", "worker2"}, tags)

	entries, err := self.store.ReadFlowLogEntries(self.ctx, "C.1", "F.1", 0, 0)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 2, len(entries))
}

func (self *FlowStoreTestSuite) TestClientMetadata() {
	metadata, err := self.store.ReadClientMetadata("C.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), utils.Microseconds(start_time), metadata.FirstSeen)

	self.clock.Advance(time.Hour)
	require.NoError(self.T(), self.store.WriteClientMetadata(
		&flows.ClientMetadata{ClientId: "C.1", Hostname: "host"}))

	metadata, err = self.store.ReadClientMetadata("C.1")
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), utils.Microseconds(start_time), metadata.FirstSeen)
	assert.Equal(self.T(), "host", metadata.Hostname)

	_, err = self.store.ReadClientMetadata("C.9")
	assert.True(self.T(), errors.Is(err, os.ErrNotExist))
}

func TestFlowStore(t *testing.T) {
	suite.Run(t, &FlowStoreTestSuite{})
}
