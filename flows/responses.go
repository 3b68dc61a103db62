package flows

import (
	"sort"

	"www.velocidex.com/golang/flowsched/config"
	"www.velocidex.com/golang/flowsched/logging"
)

// The validated responses to a single request, in the order the flow
// state method should see them.
type Responses struct {
	Request  *FlowRequest
	Status   *Status
	Success  bool
	Iterator *FlowResponse

	responses []*FlowResponse
}

func (self *Responses) Len() int {
	return len(self.responses)
}

func (self *Responses) Messages() []*FlowResponse {
	return self.responses
}

func (self *Responses) Payloads() [][]byte {
	result := make([][]byte, 0, len(self.responses))
	for _, r := range self.responses {
		result = append(result, r.Payload)
	}
	return result
}

// The first response or nil if there are none.
func (self *Responses) First() *FlowResponse {
	if len(self.responses) == 0 {
		return nil
	}
	return self.responses[0]
}

// Sort by response id. A STATUS sorts after a data response with the
// same id because it terminates the stream.
func sortResponses(raw []*FlowResponse) []*FlowResponse {
	result := append([]*FlowResponse(nil), raw...)
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].ResponseId != result[j].ResponseId {
			return result[i].ResponseId < result[j].ResponseId
		}
		return result[i].Type != ResponseStatus &&
			result[j].Type == ResponseStatus
	})
	return result
}

// Assemble validates the raw responses to a request. A nil registry
// means no action is known: only requests without an action name can
// be assembled.
func Assemble(
	config_obj *config.Config,
	registry *ActionRegistry,
	request *FlowRequest,
	raw []*FlowResponse) (*Responses, error) {

	logger := logging.GetLogger(config_obj, &logging.WorkerComponent)

	var action *ActionDescriptor
	if request.ActionName != "" {
		descriptor, pres := registry.Get(request.ActionName)
		if !pres {
			return nil, newProtocolError(request,
				"Client action %v is not known", request.ActionName)
		}
		action = descriptor
	}

	result := &Responses{Request: request}
	sorted := sortResponses(raw)

	for _, msg := range sorted {
		if msg.AuthState == Unauthenticated {
			logger.Error("%v/%v: Dropping unauthenticated response %v for request %v",
				msg.ClientId, msg.FlowId, msg.ResponseId, msg.RequestId)
			continue
		}

		switch msg.Type {
		case ResponseIterator:
			if result.Iterator != nil {
				return nil, newProtocolError(request,
					"Multiple iterator messages")
			}
			result.Iterator = msg
			continue

		case ResponseStatus:
			if msg.Status == nil {
				return nil, newProtocolError(request,
					"Status message %v without a status", msg.ResponseId)
			}
			result.Status = msg.Status
			result.Success = msg.Status.OK()
		}

		if result.Status != nil {
			break
		}

		// Retransmission of the previous response.
		last := len(result.responses) - 1
		if last >= 0 && result.responses[last].ResponseId == msg.ResponseId {
			continue
		}

		if action != nil {
			err := checkResponseType(request, action, msg)
			if err != nil {
				return nil, err
			}
		}

		result.responses = append(result.responses, msg)
	}

	if result.Status == nil {
		for _, msg := range sorted {
			logger.Error("%v/%v: De-synchronized response %v for request %v",
				msg.ClientId, msg.FlowId, msg.ResponseId, msg.RequestId)
		}
		return nil, newProtocolError(request, "No valid Status message")
	}

	return result, nil
}

func checkResponseType(request *FlowRequest,
	action *ActionDescriptor, msg *FlowResponse) error {
	if len(action.ResponseTypes) == 0 {
		return newProtocolError(request,
			"Client action %v does not specify response types",
			action.Name)
	}

	if msg.PayloadType == "" {
		return newProtocolError(request,
			"Deprecated message format: response %v has no type",
			msg.ResponseId)
	}

	if !action.Accepts(msg.PayloadType) {
		return newProtocolError(request,
			"Response %v has type %v but action %v returns %v",
			msg.ResponseId, msg.PayloadType, action.Name,
			action.ResponseTypes)
	}
	return nil
}
