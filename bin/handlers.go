package main

import (
	"context"
	"fmt"

	"github.com/Velocidex/ordereddict"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/flow_store"
	"www.velocidex.com/golang/flowsched/flows"
)

var (
	handlers_command = app.Command("handlers", "Inspect and queue message handler requests.")

	handlers_ls = handlers_command.Command("ls", "List the queued message handler requests.")

	handlers_queue         = handlers_command.Command("queue", "Queue a request for a message handler.")
	handlers_queue_name    = handlers_queue.Arg("handler", "The handler name, e.g. ClientStartup.").Required().String()
	handlers_queue_client  = handlers_queue.Arg("client_id", "The client id.").Required().String()
	handlers_queue_request = handlers_queue.Flag("request", "The request as JSON.").String()
)

func doHandlersLs() error {
	return withFlowStore(func(ctx context.Context,
		config_obj *config.Config, store *flow_store.Store) error {
		requests, err := store.ReadMessageHandlerRequests()
		if err != nil {
			return err
		}

		rows := []*ordereddict.Dict{}
		for _, r := range requests {
			rows = append(rows, ordereddict.NewDict().
				Set("Handler", r.HandlerName).
				Set("RequestId", r.RequestId).
				Set("ClientId", r.ClientId).
				Set("Queued", humanTime(r.Timestamp)).
				Set("LeasedBy", r.LeasedBy).
				Set("Request", string(r.Request)))
		}
		return print_rows(rows)
	})
}

func doHandlersQueue() error {
	return withFlowStore(func(ctx context.Context,
		config_obj *config.Config, store *flow_store.Store) error {
		request := &flows.MessageHandlerRequest{
			HandlerName: *handlers_queue_name,
			ClientId:    *handlers_queue_client,
			Request:     []byte(*handlers_queue_request),
		}

		err := store.WriteMessageHandlerRequests(
			[]*flows.MessageHandlerRequest{request})
		if err != nil {
			return err
		}

		fmt.Println(request.RequestId)
		return nil
	})
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		var err error

		switch command {
		case handlers_ls.FullCommand():
			err = doHandlersLs()

		case handlers_queue.FullCommand():
			err = doHandlersQueue()

		default:
			return false
		}

		kingpin.FatalIfError(err, command)
		return true
	})
}
