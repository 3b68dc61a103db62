package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/flowsched/config"
)

func TestMemoryLogs(t *testing.T) {
	ClearMemoryLogs()

	logger := GetLogger(nil, &GenericComponent)
	logger.Info("<green>Starting</> %v", "worker")
	logger.Debug("not shown at info level")

	logs := GetMemoryLogs()
	require.Equal(t, 1, len(logs))
	assert.Equal(t, "INFO: Starting worker", logs[0])
}

func TestFileOutput(t *testing.T) {
	dir := t.TempDir()

	config_obj := config.GetDefaultConfig()
	config_obj.Logging.OutputDirectory = dir
	config_obj.Logging.Level = "debug"

	require.NoError(t, InitLogging(config_obj))
	defer InitLogging(nil)

	logger := GetLogger(config_obj, &ToolComponent)
	logger.Error("Something failed: %v", 42)

	data, err := os.ReadFile(filepath.Join(dir, "flowsched_error.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "Something failed: 42"))
}

func TestBadLevel(t *testing.T) {
	config_obj := config.GetDefaultConfig()
	config_obj.Logging.Level = "chatty"
	assert.Error(t, InitLogging(config_obj))
}
