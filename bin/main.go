/*
   Velociraptor - Hunting Evil
   Copyright (C) 2019 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package main

import (
	"fmt"
	"os"
	"runtime/pprof"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/logging"
)

type CommandHandler func(command string) bool

var (
	app = kingpin.New("flowsched",
		"Flow scheduling and response storage for remote clients.")

	config_path = app.Flag("config", "The configuration file.").Short('c').
			Envar("FLOWSCHED_CONFIG").String()

	verbose_flag = app.Flag(
		"verbose", "Enable verbose logging.").Short('v').
		Default("false").Bool()

	profile_flag = app.Flag(
		"profile", "Write profiling information to this file.").String()

	format_flag = app.Flag("format", "Output format for listings.").
			Default("table").Enum("table", "json")

	command_handlers []CommandHandler
)

func makeDefaultConfigLoader() *config.Loader {
	loader := &config.Loader{}
	if *verbose_flag {
		loader = loader.WithLogger(func(format string, v ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", v...)
		})
	}

	return loader.
		WithFileLoader(*config_path).
		WithDefaultLoader().
		WithConfigMutator("verbose", func(config_obj *config.Config) error {
			if *verbose_flag && config_obj.Logging != nil {
				config_obj.Logging.Level = "debug"
			}
			return nil
		})
}

// Load the config and bring up logging. Failures are fatal.
func load_config() *config.Config {
	config_obj, err := makeDefaultConfigLoader().LoadAndValidate()
	kingpin.FatalIfError(err, "Unable to load config file")

	err = logging.InitLogging(config_obj)
	kingpin.FatalIfError(err, "Logging")

	return config_obj
}

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate).DefaultEnvars()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *profile_flag != "" {
		f, err := os.Create(*profile_flag)
		kingpin.FatalIfError(err, "Profile file.")

		err = pprof.StartCPUProfile(f)
		kingpin.FatalIfError(err, "Profile file.")
		defer pprof.StopCPUProfile()
	}

	for _, command_handler := range command_handlers {
		if command_handler(command) {
			break
		}
	}
}
