package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/json"
)

var (
	GenericComponent  = "FlowSched"
	FrontendComponent = "FlowSchedFrontend"
	WorkerComponent   = "FlowSchedWorker"
	ToolComponent     = "FlowSchedTool"

	tag_regex         = regexp.MustCompile("<[a-z_]*>")
	closing_tag_regex = regexp.MustCompile("</>")

	mu      sync.Mutex
	manager *LogManager
)

type LogContext struct {
	*logrus.Logger
}

func (self *LogContext) Debug(format string, args ...interface{}) {
	self.Logger.Debug(fmt.Sprintf(format, args...))
}

func (self *LogContext) Info(format string, args ...interface{}) {
	self.Logger.Info(fmt.Sprintf(format, args...))
}

func (self *LogContext) Warn(format string, args ...interface{}) {
	self.Logger.Warn(fmt.Sprintf(format, args...))
}

func (self *LogContext) Error(format string, args ...interface{}) {
	self.Logger.Error(fmt.Sprintf(format, args...))
}

func (self *LogContext) Errorf(format string, args ...interface{}) {
	self.Logger.Error(fmt.Sprintf(format, args...))
}

type LogManager struct {
	mu       sync.Mutex
	contexts map[*string]*LogContext
	level    logrus.Level
	hooks    []logrus.Hook
}

func (self *LogManager) GetLogger(component *string) *LogContext {
	self.mu.Lock()
	defer self.mu.Unlock()

	ctx, pres := self.contexts[component]
	if pres {
		return ctx
	}

	logger := logrus.New()
	logger.Out = os.Stderr
	logger.Level = self.level
	logger.Formatter = &Formatter{component: *component}
	for _, hook := range self.hooks {
		logger.AddHook(hook)
	}
	logger.AddHook(memory_hook)

	ctx = &LogContext{Logger: logger}
	self.contexts[component] = ctx
	return ctx
}

func newLogManager(config_obj *config.Config) (*LogManager, error) {
	result := &LogManager{
		contexts: make(map[*string]*LogContext),
		level:    logrus.InfoLevel,
	}

	if config_obj == nil || config_obj.Logging == nil {
		return result, nil
	}

	if config_obj.Logging.Level != "" {
		level, err := logrus.ParseLevel(config_obj.Logging.Level)
		if err != nil {
			return nil, err
		}
		result.level = level
	}

	if config_obj.Logging.OutputDirectory != "" {
		base := config_obj.Logging.OutputDirectory
		err := os.MkdirAll(base, 0700)
		if err != nil {
			return nil, err
		}

		result.hooks = append(result.hooks, lfshook.NewHook(
			lfshook.PathMap{
				logrus.DebugLevel: filepath.Join(base, "flowsched_debug.log"),
				logrus.InfoLevel:  filepath.Join(base, "flowsched_info.log"),
				logrus.WarnLevel:  filepath.Join(base, "flowsched_warn.log"),
				logrus.ErrorLevel: filepath.Join(base, "flowsched_error.log"),
			}, &logrus.JSONFormatter{}))
	}

	return result, nil
}

// Configure the logging subsystem from the config. May be called
// again to reconfigure.
func InitLogging(config_obj *config.Config) error {
	new_manager, err := newLogManager(config_obj)
	if err != nil {
		return err
	}

	mu.Lock()
	manager = new_manager
	mu.Unlock()

	return nil
}

func GetLogger(config_obj *config.Config, component *string) *LogContext {
	mu.Lock()
	if manager == nil {
		manager, _ = newLogManager(config_obj)
	}
	m := manager
	mu.Unlock()

	return m.GetLogger(component)
}

type Formatter struct {
	component string
}

func (self *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := &bytes.Buffer{}

	levelText := strings.ToUpper(entry.Level.String())
	fmt.Fprintf(b, "[%s] %v %s: %s", levelText,
		entry.Time.UTC().Format(time.RFC3339), self.component,
		clearTag(strings.TrimRight(entry.Message, "\r\n")))

	if len(entry.Data) > 0 {
		serialized, _ := json.Marshal(entry.Data)
		fmt.Fprintf(b, " %s", serialized)
	}
	b.WriteString("\n")

	return b.Bytes(), nil
}

func clearTag(message string) string {
	message = tag_regex.ReplaceAllString(message, "")
	return closing_tag_regex.ReplaceAllString(message, "")
}
