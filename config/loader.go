package config

import (
	"fmt"
	"os"

	"github.com/Velocidex/yaml/v2"
	"github.com/pkg/errors"
)

// A hard error causes the loader to stop immediately.
type HardError struct {
	Err error
}

func (self HardError) Error() string {
	return self.Err.Error()
}

type loaderFunction struct {
	name        string
	loader_func func(self *Loader) (*Config, error)
}

type configMutator struct {
	name                string
	config_mutator_func func(self *Config) error
}

// Tries each loader in turn until one produces a config, then applies
// the mutators and validates the result.
type Loader struct {
	loaders         []loaderFunction
	config_mutators []configMutator

	log func(format string, v ...interface{})
}

func (self *Loader) WithLogger(
	log func(format string, v ...interface{})) *Loader {
	self = self.Copy()
	self.log = log
	return self
}

func (self *Loader) WithDefaultLoader() *Loader {
	self = self.Copy()
	self.loaders = append(self.loaders, loaderFunction{
		name: "WithDefaultLoader",
		loader_func: func(self *Loader) (*Config, error) {
			self.Log("Using the default config")
			return GetDefaultConfig(), nil
		}})
	return self
}

func (self *Loader) WithFileLoader(filename string) *Loader {
	if filename == "" {
		return self
	}

	self = self.Copy()
	self.loaders = append(self.loaders, loaderFunction{
		name: "WithFileLoader",
		loader_func: func(self *Loader) (*Config, error) {
			self.Log("Loading config from file %v", filename)
			result, err := read_config_from_file(filename)
			if err != nil {
				// A named file that can not be loaded stops
				// the search.
				return nil, HardError{err}
			}
			return result, nil
		}})
	return self
}

func (self *Loader) WithLiteralLoader(serialized []byte) *Loader {
	if len(serialized) == 0 {
		return self
	}

	self = self.Copy()
	self.loaders = append(self.loaders, loaderFunction{
		name: "WithLiteralLoader",
		loader_func: func(self *Loader) (*Config, error) {
			self.Log("Loading literal config")
			return parse_config(serialized)
		}})
	return self
}

func (self *Loader) WithEnvLoader(env_var string) *Loader {
	self = self.Copy()
	self.loaders = append(self.loaders, loaderFunction{
		name: "WithEnvLoader",
		loader_func: func(self *Loader) (*Config, error) {
			env_config := os.Getenv(env_var)
			if env_config != "" {
				self.Log("Loading config from env %v (%v)", env_var, env_config)
				return read_config_from_file(env_config)
			}
			return nil, fmt.Errorf("Env var %v is not set", env_var)
		}})
	return self
}

func (self *Loader) WithConfigMutator(
	name string, mutator func(config_obj *Config) error) *Loader {
	self = self.Copy()
	self.config_mutators = append(self.config_mutators, configMutator{
		name:                name,
		config_mutator_func: mutator,
	})
	return self
}

func (self *Loader) Copy() *Loader {
	return &Loader{
		log:             self.log,
		loaders:         append([]loaderFunction{}, self.loaders...),
		config_mutators: append([]configMutator{}, self.config_mutators...),
	}
}

func (self *Loader) Log(format string, v ...interface{}) {
	if self.log != nil {
		self.log(format, v...)
	}
}

func (self *Loader) LoadAndValidate() (*Config, error) {
	for _, loader := range self.loaders {
		result, err := loader.loader_func(self)
		if err == nil {
			return result, self.validate(result)
		}

		_, ok := err.(HardError)
		if ok {
			return nil, err
		}
		self.Log("%v: %v", loader.name, err)
	}
	return nil, errors.New("Unable to load config from any source.")
}

func (self *Loader) validate(config_obj *Config) error {
	for _, mutator := range self.config_mutators {
		err := mutator.config_mutator_func(config_obj)
		if err != nil {
			return errors.WithMessagef(err, "mutator %v", mutator.name)
		}
	}

	mergeDefaults(config_obj)
	return ValidateConfig(config_obj)
}

func read_config_from_file(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "LoadConfig")
	}

	return parse_config(data)
}

func parse_config(data []byte) (*Config, error) {
	result := &Config{}
	err := yaml.UnmarshalStrict(data, result)
	if err != nil {
		return nil, errors.Wrap(err, "ParseConfig")
	}
	return result, nil
}
