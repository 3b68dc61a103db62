package worker

import (
	"context"
	"fmt"

	"www.velocidex.com/golang/flowsched/flows"
)

// What the flow logic produced while processing a request. The
// processor writes it to the store on behalf of the flow.
type FlowRunnerResult struct {
	// New outbound requests of this flow.
	Requests []*flows.FlowRequest

	// Messages for the client carrying the new requests.
	ClientMessages []*flows.ClientMessage

	Results []*flows.FlowResult
	Logs    []*flows.FlowLogEntry

	// The flow has no more work to do.
	Finished bool
}

// The flow logic. It is called once for every request in order, with
// the request's validated responses. An error fails the flow.
type FlowRunner interface {
	ProcessRequest(ctx context.Context, flow *flows.Flow,
		responses *flows.Responses) (*FlowRunnerResult, error)
}

type FlowRunnerFunc func(ctx context.Context, flow *flows.Flow,
	responses *flows.Responses) (*FlowRunnerResult, error)

func (self FlowRunnerFunc) ProcessRequest(ctx context.Context,
	flow *flows.Flow, responses *flows.Responses) (*FlowRunnerResult, error) {
	return self(ctx, flow, responses)
}

// Stores every response payload as a result of the flow. The flow
// finishes when a request is processed whose next state is "End".
type EchoRunner struct{}

func (self EchoRunner) ProcessRequest(ctx context.Context,
	flow *flows.Flow, responses *flows.Responses) (*FlowRunnerResult, error) {
	request := responses.Request
	result := &FlowRunnerResult{
		Finished: request.NextState == "End",
	}

	for _, response := range responses.Messages() {
		result.Results = append(result.Results, &flows.FlowResult{
			ClientId:    flow.ClientId,
			FlowId:      flow.FlowId,
			Tag:         request.NextState,
			PayloadType: response.PayloadType,
			Payload:     response.Payload,
		})
	}

	result.Logs = append(result.Logs, &flows.FlowLogEntry{
		ClientId: flow.ClientId,
		FlowId:   flow.FlowId,
		Level:    "INFO",
		Message: fmt.Sprintf("Processed request %v with %v responses (success %v)",
			request.RequestId, responses.Len(), responses.Success),
	})

	return result, nil
}
