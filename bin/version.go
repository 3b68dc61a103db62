package main

import (
	"fmt"
	"runtime/debug"

	"github.com/Velocidex/yaml/v2"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/flowsched/constants"
)

var (
	version = app.Command("version", "Report the binary version and build information.")
)

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		if command == version.FullCommand() {
			res, err := yaml.Marshal(map[string]string{
				"name":    "flowsched",
				"version": constants.VERSION,
			})
			kingpin.FatalIfError(err, "Unable to encode version.")

			fmt.Printf("%v", string(res))

			if *verbose_flag {
				info, ok := debug.ReadBuildInfo()
				if ok {
					fmt.Printf("\n\nBuild Info:\n%v\n", info)
				}
			}

			return true
		}
		return false
	})
}
