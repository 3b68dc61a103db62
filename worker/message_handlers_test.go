package worker

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/logging"
	"www.velocidex.com/golang/flowsched/vtesting"
)

func (self *WorkerTestSuite) TestMessageHandlers() {
	logging.ClearMemoryLogs()

	handlers := NewMessageHandlers(self.ctx, self.wg, self.config_obj, self.store)
	handlers.Register("Broken", func(ctx context.Context,
		request *flows.MessageHandlerRequest) error {
		return errors.New("handler exploded")
	})

	require.NoError(self.T(), self.store.WriteMessageHandlerRequests(
		[]*flows.MessageHandlerRequest{
			{
				HandlerName: ClientStartupHandler,
				ClientId:    "C.2",
				Request:     []byte(`{"hostname":"host2"}`),
			},
			{HandlerName: ClientStartupHandler, ClientId: "C.1"},
			{HandlerName: "Broken", ClientId: "C.1"},
			{HandlerName: "Missing", ClientId: "C.1"},
		}))

	// Everything is removed once handled, whether it worked or not.
	vtesting.WaitUntil(5*time.Second, self.T(), func() bool {
		pending, err := self.store.ReadMessageHandlerRequests()
		return err == nil && len(pending) == 0
	})

	// A new client is enrolled.
	metadata, err := self.store.ReadClientMetadata("C.2")
	require.NoError(self.T(), err)
	assert.Equal(self.T(), "host2", metadata.Hostname)
	assert.NotEqual(self.T(), int64(0), metadata.LastPing)

	metadata, err = self.store.ReadClientMetadata("C.1")
	require.NoError(self.T(), err)
	assert.NotEqual(self.T(), int64(0), metadata.LastPing)

	vtesting.MemoryLogsContain(self.T(), "Broken: request .+: handler exploded")
	vtesting.MemoryLogsContain(self.T(), "No handler Missing for request")
}
