package collections

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/logging"
	"www.velocidex.com/golang/flowsched/utils"
)

var (
	indexUpdatesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowsched_collection_index_updates",
		Help: "Number of background collection index updates.",
	})
)

type indexRequest struct {
	collection_id string
	due           time.Time
}

// Updates collection indexes in the background. Collections are
// queued with a delay so their tail records become old enough to
// index by the time we get to them.
type IndexUpdater struct {
	mu      sync.Mutex
	queue   []indexRequest
	pending map[string]bool

	// Signals the loop there is new work.
	notify chan bool

	config_obj *config.Config
	clock      utils.Clock
	delay      time.Duration
	process    func(ctx context.Context, collection_id string) error
}

func (self *IndexUpdater) Enqueue(collection_id string) {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.pending[collection_id] {
		return
	}
	self.pending[collection_id] = true

	self.queue = append(self.queue, indexRequest{
		collection_id: collection_id,
		due:           self.clock.Now().Add(self.delay),
	})

	select {
	case self.notify <- true:
	default:
	}
}

// Number of collections waiting to be indexed.
func (self *IndexUpdater) Len() int {
	self.mu.Lock()
	defer self.mu.Unlock()

	return len(self.queue)
}

func (self *IndexUpdater) pop() (indexRequest, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()

	if len(self.queue) == 0 {
		return indexRequest{}, false
	}

	result := self.queue[0]
	self.queue = self.queue[1:]
	return result, true
}

func (self *IndexUpdater) processOne(ctx context.Context, req indexRequest) {
	utils.SleepWithClock(ctx, self.clock, req.due.Sub(self.clock.Now()))
	if ctx.Err() != nil {
		return
	}

	// Adds from now on should queue the collection again.
	self.mu.Lock()
	delete(self.pending, req.collection_id)
	self.mu.Unlock()

	err := self.process(ctx, req.collection_id)
	if err != nil {
		logger := logging.GetLogger(self.config_obj, &logging.GenericComponent)
		logger.Error("IndexUpdater: %v: %v", req.collection_id, err)
		return
	}
	indexUpdatesCounter.Inc()
}

func NewIndexUpdater(
	ctx context.Context,
	wg *sync.WaitGroup,
	config_obj *config.Config,
	clock utils.Clock,
	process func(ctx context.Context, collection_id string) error) *IndexUpdater {

	self := &IndexUpdater{
		pending:    make(map[string]bool),
		notify:     make(chan bool, 1),
		config_obj: config_obj,
		clock:      clock,
		delay:      config_obj.IndexUpdateDelay(),
		process:    process,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case <-self.notify:
			}

			for {
				req, ok := self.pop()
				if !ok {
					break
				}
				self.processOne(ctx, req)
				if ctx.Err() != nil {
					return
				}
			}
		}
	}()

	return self
}
