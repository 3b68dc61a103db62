package flow_store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/utils"
	"www.velocidex.com/golang/flowsched/vtesting"
)

func (self *FlowStoreTestSuite) TestMessageHandlerRequests() {
	requests := []*flows.MessageHandlerRequest{
		{HandlerName: "ClientStartup", ClientId: "C.1", Request: []byte("1")},
		{HandlerName: "ClientStartup", ClientId: "C.2", Request: []byte("2")},
		{HandlerName: "ClientCrash", ClientId: "C.1", RequestId: 7},
	}
	require.NoError(self.T(), self.store.WriteMessageHandlerRequests(requests))
	assert.NotEqual(self.T(), uint64(0), requests[0].RequestId)
	assert.NotEqual(self.T(), requests[0].RequestId, requests[1].RequestId)
	assert.Equal(self.T(), uint64(7), requests[2].RequestId)

	// Newest first.
	all, err := self.store.ReadMessageHandlerRequests()
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 3, len(all))
	assert.Equal(self.T(), "ClientCrash", all[0].HandlerName)
	assert.Equal(self.T(), "C.2", all[1].ClientId)
	assert.Equal(self.T(), "1", string(all[2].Request))

	leased, err := self.store.LeaseMessageHandlerRequests(time.Minute, 2)
	assert.NoError(self.T(), err)
	require.Equal(self.T(), 2, len(leased))
	assert.Equal(self.T(), "worker1", leased[0].LeasedBy)
	assert.Equal(self.T(),
		utils.Microseconds(start_time.Add(time.Minute)), leased[0].LeasedUntil)

	leased, err = self.store.LeaseMessageHandlerRequests(time.Minute, 0)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 1, len(leased))

	leased, err = self.store.LeaseMessageHandlerRequests(time.Minute, 0)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 0, len(leased))

	// Handle one of them.
	require.NoError(self.T(), self.store.DeleteMessageHandlerRequests(
		[]*flows.MessageHandlerRequest{requests[2],
			{HandlerName: "ClientCrash", RequestId: 99}}))

	// The rest come back once the lease expires.
	self.clock.Advance(time.Minute)
	leased, err = self.store.LeaseMessageHandlerRequests(time.Minute, 0)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 2, len(leased))

	all, err = self.store.ReadMessageHandlerRequests()
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 2, len(all))

	err = self.store.WriteMessageHandlerRequests(
		[]*flows.MessageHandlerRequest{{HandlerName: ".."}})
	assert.True(self.T(), errors.Is(err, utils.InvalidArgError))

	err = self.store.DeleteMessageHandlerRequests(
		[]*flows.MessageHandlerRequest{{HandlerName: "a/b"}})
	assert.True(self.T(), errors.Is(err, utils.InvalidArgError))
}

func (self *FlowStoreTestSuite) TestRegisterMessageHandler() {
	mu := sync.Mutex{}
	handled := []string{}
	handler := func(ctx context.Context, requests []*flows.MessageHandlerRequest) {
		mu.Lock()
		defer mu.Unlock()
		for _, r := range requests {
			handled = append(handled, r.ClientId)
		}
	}
	getHandled := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string{}, handled...)
	}

	self.store.RegisterMessageHandler(handler, time.Minute, 10)

	require.NoError(self.T(), self.store.WriteMessageHandlerRequests(
		[]*flows.MessageHandlerRequest{
			{HandlerName: "ClientStartup", ClientId: "C.1"},
			{HandlerName: "ClientStartup", ClientId: "C.2"},
		}))

	vtesting.WaitUntil(5*time.Second, self.T(), func() bool {
		return len(getHandled()) == 2
	})
	assert.ElementsMatch(self.T(), []string{"C.1", "C.2"}, getHandled())

	// The handler did not delete them so they are retried after
	// the lease.
	self.clock.Advance(2 * time.Minute)
	vtesting.WaitUntil(5*time.Second, self.T(), func() bool {
		return len(getHandled()) == 4
	})

	// Nothing is delivered once unregistered.
	self.store.UnregisterMessageHandler()
	self.clock.Advance(2 * time.Minute)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(self.T(), 4, len(getHandled()))

	// The requests are still leasable by someone else.
	leased, err := self.store.LeaseMessageHandlerRequests(time.Minute, 0)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 2, len(leased))
}
