package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Velocidex/ordereddict"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/datastore"
	"www.velocidex.com/golang/flowsched/flow_store"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/utils"
)

var (
	flows_command = app.Command("flows", "Inspect and manage flows.")

	flows_ls        = flows_command.Command("ls", "List the flows of a client.")
	flows_ls_client = flows_ls.Arg("client_id", "The client id.").Required().String()

	flows_create        = flows_command.Command("create", "Create a flow, registering the client if needed.")
	flows_create_client = flows_create.Arg("client_id", "The client id.").Required().String()
	flows_create_flow   = flows_create.Arg("flow_id", "The flow id.").Required().String()
	flows_create_class  = flows_create.Flag("class", "The flow class name.").String()
	flows_create_parent = flows_create.Flag("parent", "The parent flow id.").String()

	flows_requests        = flows_command.Command("requests", "List all the outstanding requests of a flow.")
	flows_requests_client = flows_requests.Arg("client_id", "The client id.").Required().String()
	flows_requests_flow   = flows_requests.Arg("flow_id", "The flow id.").Required().String()

	flows_ready        = flows_command.Command("ready", "List the requests of a flow ready for processing.")
	flows_ready_client = flows_ready.Arg("client_id", "The client id.").Required().String()
	flows_ready_flow   = flows_ready.Arg("flow_id", "The flow id.").Required().String()

	flows_results        = flows_command.Command("results", "Show the results of a flow.")
	flows_results_client = flows_results.Arg("client_id", "The client id.").Required().String()
	flows_results_flow   = flows_results.Arg("flow_id", "The flow id.").Required().String()
	flows_results_offset = flows_results.Flag("offset", "Start at this result.").Default("0").Int64()
	flows_results_count  = flows_results.Flag("count", "Show at most this many results.").Default("100").Int64()

	flows_logs        = flows_command.Command("logs", "Show the log of a flow.")
	flows_logs_client = flows_logs.Arg("client_id", "The client id.").Required().String()
	flows_logs_flow   = flows_logs.Arg("flow_id", "The flow id.").Required().String()

	flows_cancel        = flows_command.Command("cancel", "Request termination of a flow.")
	flows_cancel_client = flows_cancel.Arg("client_id", "The client id.").Required().String()
	flows_cancel_flow   = flows_cancel.Arg("flow_id", "The flow id.").Required().String()
	flows_cancel_reason = flows_cancel.Flag("reason", "Why the flow is cancelled.").
				Default("Cancelled by user").String()
)

// Runs cb with a store over the configured datastore. The store's
// services are shut down when cb returns.
func withFlowStore(cb func(ctx context.Context,
	config_obj *config.Config, store *flow_store.Store) error) error {
	config_obj := load_config()

	db, err := datastore.GetDataStore(config_obj)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	defer wg.Wait()
	defer cancel()

	store := flow_store.NewStore(ctx, wg, config_obj, db, utils.RealClock{})
	return cb(ctx, config_obj, store)
}

func flowRow(flow *flows.Flow, now time.Time) *ordereddict.Dict {
	terminating := ""
	if flow.PendingTermination != nil {
		terminating = flow.PendingTermination.Reason
	}

	return ordereddict.NewDict().
		Set("FlowId", flow.FlowId).
		Set("Parent", flow.ParentFlowId).
		Set("Class", flow.FlowClassName).
		Set("State", flow.State).
		Set("Created", humanTime(flow.CreateTime)).
		Set("NextRequest", flow.NextRequestToProcess).
		Set("ProcessingOn", flow.ProcessingOn).
		Set("LeaseExpires", humanDeadline(flow.ProcessingDeadline, now)).
		Set("Termination", terminating).
		Set("Error", flow.ErrorMessage)
}

func requestRows(items []*flow_store.RequestAndResponses) []*ordereddict.Dict {
	rows := []*ordereddict.Dict{}
	for _, item := range items {
		expected := "unknown"
		if item.Request.NrResponsesExpected != nil {
			expected = fmt.Sprintf("%v", *item.Request.NrResponsesExpected)
		}

		rows = append(rows, ordereddict.NewDict().
			Set("RequestId", item.Request.RequestId).
			Set("Action", item.Request.ActionName).
			Set("NextState", item.Request.NextState).
			Set("Expected", expected).
			Set("Received", len(item.Responses)).
			Set("Ready", item.Request.NeedsProcessing))
	}
	return rows
}

func doFlowsLs() error {
	return withFlowStore(func(ctx context.Context,
		config_obj *config.Config, store *flow_store.Store) error {
		all, err := store.ReadAllFlowObjects(*flows_ls_client)
		if err != nil {
			return err
		}

		now := time.Now()
		rows := []*ordereddict.Dict{}
		for _, flow := range all {
			rows = append(rows, flowRow(flow, now))
		}
		return print_rows(rows)
	})
}

func doFlowsCreate() error {
	return withFlowStore(func(ctx context.Context,
		config_obj *config.Config, store *flow_store.Store) error {
		_, err := store.ReadClientMetadata(*flows_create_client)
		if err != nil {
			err = store.WriteClientMetadata(&flows.ClientMetadata{
				ClientId: *flows_create_client,
			})
			if err != nil {
				return err
			}
		}

		return store.WriteFlowObject(&flows.Flow{
			ClientId:             *flows_create_client,
			FlowId:               *flows_create_flow,
			FlowClassName:        *flows_create_class,
			ParentFlowId:         *flows_create_parent,
			NextRequestToProcess: 1,
		})
	})
}

func doFlowsRequests() error {
	return withFlowStore(func(ctx context.Context,
		config_obj *config.Config, store *flow_store.Store) error {
		all, err := store.ReadAllFlowRequestsAndResponses(
			*flows_requests_client, *flows_requests_flow)
		if err != nil {
			return err
		}
		return print_rows(requestRows(all))
	})
}

func doFlowsReady() error {
	return withFlowStore(func(ctx context.Context,
		config_obj *config.Config, store *flow_store.Store) error {
		ready, err := store.ReadFlowRequestsReadyForProcessing(
			*flows_ready_client, *flows_ready_flow)
		if err != nil {
			return err
		}
		return print_rows(requestRows(ready))
	})
}

func doFlowsResults() error {
	return withFlowStore(func(ctx context.Context,
		config_obj *config.Config, store *flow_store.Store) error {
		results, err := store.ReadFlowResults(ctx,
			*flows_results_client, *flows_results_flow,
			*flows_results_offset, *flows_results_count)
		if err != nil {
			return err
		}

		rows := []*ordereddict.Dict{}
		for _, result := range results {
			rows = append(rows, ordereddict.NewDict().
				Set("Time", humanTime(result.Timestamp)).
				Set("Tag", result.Tag).
				Set("Type", result.PayloadType).
				Set("Payload", string(result.Payload)))
		}
		return print_rows(rows)
	})
}

func doFlowsLogs() error {
	return withFlowStore(func(ctx context.Context,
		config_obj *config.Config, store *flow_store.Store) error {
		entries, err := store.ReadFlowLogEntries(ctx,
			*flows_logs_client, *flows_logs_flow, 0, 0)
		if err != nil {
			return err
		}

		rows := []*ordereddict.Dict{}
		for _, entry := range entries {
			rows = append(rows, ordereddict.NewDict().
				Set("Time", humanTime(entry.Timestamp)).
				Set("Level", entry.Level).
				Set("Message", entry.Message))
		}
		return print_rows(rows)
	})
}

func doFlowsCancel() error {
	return withFlowStore(func(ctx context.Context,
		config_obj *config.Config, store *flow_store.Store) error {
		return store.UpdateFlow(*flows_cancel_client, *flows_cancel_flow,
			flow_store.FlowUpdate{
				PendingTermination: &flows.PendingTermination{
					Reason: *flows_cancel_reason,
				},
			})
	})
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		var err error

		switch command {
		case flows_ls.FullCommand():
			err = doFlowsLs()

		case flows_create.FullCommand():
			err = doFlowsCreate()

		case flows_requests.FullCommand():
			err = doFlowsRequests()

		case flows_ready.FullCommand():
			err = doFlowsReady()

		case flows_results.FullCommand():
			err = doFlowsResults()

		case flows_logs.FullCommand():
			err = doFlowsLogs()

		case flows_cancel.FullCommand():
			err = doFlowsCancel()

		default:
			return false
		}

		kingpin.FatalIfError(err, command)
		return true
	})
}
