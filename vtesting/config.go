package vtesting

import (
	"testing"

	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/flowsched/config"
)

// A memory backed config with fast polling, suitable for tests.
func GetTestConfig(t *testing.T) *config.Config {
	config_obj := config.GetDefaultConfig()
	config_obj.Datastore.Implementation = "Memory"
	config_obj.Worker.PollIntervalMs = 10
	config_obj.Worker.LeaseRetryDelaySec = 1

	require.NoError(t, config.ValidateConfig(config_obj))
	return config_obj
}
