package flows

import (
	"path"
	"strings"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/flowsched/json"
	"www.velocidex.com/golang/flowsched/paths"
	"www.velocidex.com/golang/flowsched/utils"
)

// The envelope of a message received from a client. The transport
// has already authenticated it and set AuthState.
type Message struct {
	ClientId string `json:"client_id"`

	// Either the bare flow id or a path ending with it
	// (e.g. C.1234/flows/F.5678).
	SessionId    string       `json:"session_id"`
	RequestId    uint64       `json:"request_id"`
	ResponseId   uint64       `json:"response_id"`
	Type         ResponseType `json:"type"`
	AuthState    AuthState    `json:"auth_state"`
	Payload      []byte       `json:"payload,omitempty"`
	ArgsTypeName string       `json:"args_type_name,omitempty"`
	Timestamp    int64        `json:"timestamp,omitempty"`
}

func flowIdFromSession(session_id string) string {
	return path.Base(strings.TrimRight(session_id, "/"))
}

// Convert a client message to a flow response. STATUS payloads are
// decoded into the response's Status.
func MessageToResponse(msg *Message) (*FlowResponse, error) {
	if msg.ClientId == "" {
		return nil, errors.WithMessage(utils.InvalidArgError,
			"message without client id")
	}

	flow_id := ""
	if msg.SessionId != "" {
		flow_id = flowIdFromSession(msg.SessionId)
	}
	err := paths.ValidateId("flow_id", flow_id)
	if err != nil {
		return nil, errors.WithMessagef(err,
			"message from %v with session id %q", msg.ClientId, msg.SessionId)
	}

	if msg.RequestId == 0 {
		return nil, errors.WithMessagef(utils.InvalidArgError,
			"message for %v/%v without request id", msg.ClientId, flow_id)
	}

	result := &FlowResponse{
		ClientId:    msg.ClientId,
		FlowId:      flow_id,
		RequestId:   msg.RequestId,
		ResponseId:  msg.ResponseId,
		Type:        msg.Type,
		AuthState:   msg.AuthState,
		PayloadType: msg.ArgsTypeName,
		Payload:     msg.Payload,
		Timestamp:   msg.Timestamp,
	}

	switch msg.Type {
	case ResponseData, ResponseIterator:
	case "":
		result.Type = ResponseData

	case ResponseStatus:
		status := &Status{}
		err := json.Unmarshal(msg.Payload, status)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding status for %v/%v",
				msg.ClientId, flow_id)
		}
		if status.Code == "" {
			status.Code = StatusOK
		}
		result.Status = status

	default:
		return nil, errors.WithMessagef(utils.InvalidArgError,
			"unknown message type %v", msg.Type)
	}

	return result, nil
}

func MessagesToResponses(messages []*Message) ([]*FlowResponse, error) {
	result := make([]*FlowResponse, 0, len(messages))
	for _, msg := range messages {
		response, err := MessageToResponse(msg)
		if err != nil {
			return nil, err
		}
		result = append(result, response)
	}
	return result, nil
}
