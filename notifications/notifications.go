// Wakes up clients waiting for new messages.
//
// A client connection blocked waiting for work listens on the pool.
// When the store queues a message for the client it notifies the
// pool, which releases the listener so the connection can lease the
// new messages.
package notifications

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowsched_client_message_notification_count",
		Help: "Number of notifications we issue to waiting clients.",
	})
)

type NotificationPool struct {
	mu      sync.Mutex
	clients map[string]chan bool
	done    chan bool
}

func NewNotificationPool() *NotificationPool {
	return &NotificationPool{
		clients: make(map[string]chan bool),
		done:    make(chan bool),
	}
}

func (self *NotificationPool) IsClientConnected(client_id string) bool {
	self.mu.Lock()
	_, pres := self.clients[client_id]
	self.mu.Unlock()

	return pres
}

// Returns a channel that is closed when the client is notified and a
// function to stop listening.
func (self *NotificationPool) Listen(client_id string) (chan bool, func()) {
	new_c := make(chan bool)

	self.mu.Lock()

	// Only one listener per client: a newer connection replaces
	// an older one, which is released.
	c, pres := self.clients[client_id]
	if pres {
		defer close(c)
		delete(self.clients, client_id)
	}
	self.clients[client_id] = new_c
	self.mu.Unlock()

	return new_c, func() {
		self.mu.Lock()
		c, pres := self.clients[client_id]
		if pres && c == new_c {
			defer close(c)
			delete(self.clients, client_id)
		}
		self.mu.Unlock()
	}
}

func (self *NotificationPool) Notify(client_id string) {
	self.mu.Lock()
	c, pres := self.clients[client_id]
	if pres {
		notificationCounter.Inc()
		defer close(c)
		delete(self.clients, client_id)
	}
	self.mu.Unlock()
}

func (self *NotificationPool) Shutdown() {
	self.mu.Lock()
	defer self.mu.Unlock()

	select {
	case <-self.done:
		return
	default:
		close(self.done)
	}

	for _, c := range self.clients {
		close(c)
	}

	self.clients = make(map[string]chan bool)
}
