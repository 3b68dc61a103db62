package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/flowsched/datastore"
	"www.velocidex.com/golang/flowsched/flow_store"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/logging"
	"www.velocidex.com/golang/flowsched/utils"
	"www.velocidex.com/golang/flowsched/worker"
)

var (
	worker_command = app.Command("worker", "Run a flow processor until interrupted.")

	worker_actions = worker_command.Flag("action",
		"A client action and its response types as Name:Type1,Type2").Strings()

	worker_metrics = worker_command.Flag("metrics",
		"Serve prometheus metrics on this address, e.g. 127.0.0.1:8003").String()
)

// Parses Name:Type1,Type2 into the registry.
func parseActions(registry *flows.ActionRegistry, specs []string) error {
	for _, spec := range specs {
		name, types, _ := strings.Cut(spec, ":")
		if name == "" {
			return fmt.Errorf("Invalid action %q", spec)
		}

		response_types := []string{}
		for _, t := range strings.Split(types, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				response_types = append(response_types, t)
			}
		}
		registry.Register(name, response_types...)
	}
	return nil
}

func doWorker() error {
	config_obj := load_config()
	logger := logging.GetLogger(config_obj, &logging.WorkerComponent)

	registry := flows.NewActionRegistry()
	err := parseActions(registry, *worker_actions)
	if err != nil {
		return err
	}

	db, err := datastore.GetDataStore(config_obj)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	wg := &sync.WaitGroup{}
	defer wg.Wait()

	store := flow_store.NewStore(ctx, wg, config_obj, db, utils.RealClock{})
	worker.NewProcessor(ctx, wg, config_obj, store, registry,
		worker.EchoRunner{}, utils.RealClock{})
	worker.NewMessageHandlers(ctx, wg, config_obj, store)

	if *worker_metrics != "" {
		server := &http.Server{
			Addr:    *worker_metrics,
			Handler: promhttp.Handler(),
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			_ = server.Close()
		}()

		go func() {
			logger.Info("Serving metrics on <green>%v</>", *worker_metrics)
			err := server.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server: %v", err)
			}
		}()
	}

	logger.Info("Processing flows for actions %v", registry.Names())
	<-ctx.Done()
	logger.Info("<red>Shutting down</> worker")

	return nil
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		if command == worker_command.FullCommand() {
			kingpin.FatalIfError(doWorker(), command)
			return true
		}
		return false
	})
}
