package config

import (
	"time"

	"www.velocidex.com/golang/flowsched/constants"
)

// Accessors tolerate partially filled configs (e.g. in tests) by
// falling back to the defaults.

func (self *Config) IndexSpacing() int64 {
	if self == nil || self.Collections == nil || self.Collections.IndexSpacing <= 0 {
		return constants.INDEX_SPACING
	}
	return self.Collections.IndexSpacing
}

func (self *Config) IndexWriteDelay() time.Duration {
	if self == nil || self.Collections == nil || self.Collections.IndexWriteDelaySec == 0 {
		return constants.INDEX_WRITE_DELAY
	}
	return time.Duration(self.Collections.IndexWriteDelaySec) * time.Second
}

func (self *Config) IndexUpdateDelay() time.Duration {
	if self == nil || self.Collections == nil || self.Collections.IndexUpdateDelaySec == 0 {
		return constants.INDEX_UPDATE_DELAY
	}
	return time.Duration(self.Collections.IndexUpdateDelaySec) * time.Second
}

func (self *Config) ProcessingTime() time.Duration {
	if self == nil || self.Worker == nil || self.Worker.ProcessingTimeSec == 0 {
		return constants.DEFAULT_PROCESSING_TIME
	}
	return time.Duration(self.Worker.ProcessingTimeSec) * time.Second
}

func (self *Config) PollInterval() time.Duration {
	if self == nil || self.Worker == nil || self.Worker.PollIntervalMs == 0 {
		return constants.PROCESSING_QUEUE_POLL
	}
	return time.Duration(self.Worker.PollIntervalMs) * time.Millisecond
}

func (self *Config) LeaseRetryDelay() time.Duration {
	if self == nil || self.Worker == nil || self.Worker.LeaseRetryDelaySec == 0 {
		return constants.LEASE_RETRY_DELAY
	}
	return time.Duration(self.Worker.LeaseRetryDelaySec) * time.Second
}
