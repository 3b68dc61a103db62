package collections

import (
	"context"
	"sync"
	"time"

	"github.com/Velocidex/ttlcache/v2"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/datastore"
	"www.velocidex.com/golang/flowsched/logging"
	"www.velocidex.com/golang/flowsched/utils"
)

// Opens collections and owns the background index updater. Opened
// collections are cached together with their loaded index.
type Manager struct {
	mu sync.Mutex

	config_obj *config.Config
	db         datastore.DataStore
	clock      utils.Clock
	lru        *ttlcache.Cache
	updater    *IndexUpdater
}

func (self *Manager) Open(collection_id string) *Collection {
	self.mu.Lock()
	defer self.mu.Unlock()

	cached, err := self.lru.Get(collection_id)
	if err == nil {
		collection, ok := cached.(*Collection)
		if ok {
			return collection
		}
	}

	collection := NewCollection(self.config_obj, self.db, self.clock,
		collection_id, self.updater)
	_ = self.lru.Set(collection_id, collection)
	return collection
}

func (self *Manager) Delete(collection_id string) error {
	err := self.Open(collection_id).Delete()
	if err != nil {
		return err
	}

	self.mu.Lock()
	_ = self.lru.Remove(collection_id)
	self.mu.Unlock()
	return nil
}

func (self *Manager) Updater() *IndexUpdater {
	return self.updater
}

func NewManager(
	ctx context.Context,
	wg *sync.WaitGroup,
	config_obj *config.Config,
	db datastore.DataStore,
	clock utils.Clock) *Manager {

	self := &Manager{
		config_obj: config_obj,
		db:         db,
		clock:      clock,
		lru:        ttlcache.NewCache(),
	}

	cache_size := 1000
	ttl := 10 * time.Minute
	if config_obj.Collections != nil {
		if config_obj.Collections.CacheSize > 0 {
			cache_size = config_obj.Collections.CacheSize
		}
		if config_obj.Collections.CacheTTL > 0 {
			ttl = time.Duration(config_obj.Collections.CacheTTL) * time.Second
		}
	}
	self.lru.SetCacheSizeLimit(cache_size)
	_ = self.lru.SetTTL(ttl)

	self.updater = NewIndexUpdater(ctx, wg, config_obj, clock,
		func(ctx context.Context, collection_id string) error {
			return self.Open(collection_id).UpdateIndex(ctx)
		})

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		self.lru.Close()
	}()

	logger := logging.GetLogger(config_obj, &logging.GenericComponent)
	logger.Debug("<green>Starting</> collection manager")

	return self
}
