package flows

import (
	"fmt"
	"os"

	errors "github.com/go-errors/errors"
)

var (
	ErrLeaseConflict = errors.New("flow is already leased")
	ErrProtocol      = errors.New("protocol error")
)

type UnknownClientError struct {
	ClientId string
}

func (self UnknownClientError) Error() string {
	return fmt.Sprintf("unknown client %v", self.ClientId)
}

func (self UnknownClientError) Is(target error) bool {
	return target == os.ErrNotExist
}

type UnknownFlowError struct {
	ClientId string
	FlowId   string
}

func (self UnknownFlowError) Error() string {
	return fmt.Sprintf("unknown flow %v/%v", self.ClientId, self.FlowId)
}

func (self UnknownFlowError) Is(target error) bool {
	return target == os.ErrNotExist
}

type UnknownFlowRequestError struct {
	ClientId  string
	FlowId    string
	RequestId uint64
}

func (self UnknownFlowRequestError) Error() string {
	return fmt.Sprintf("unknown request %v/%v/%v",
		self.ClientId, self.FlowId, self.RequestId)
}

func (self UnknownFlowRequestError) Is(target error) bool {
	return target == os.ErrNotExist
}

// The response stream of a request is malformed. Processing of the
// request must not proceed.
type ProtocolError struct {
	ClientId  string
	FlowId    string
	RequestId uint64
	Message   string
}

func (self ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %v/%v request %v: %v",
		self.ClientId, self.FlowId, self.RequestId, self.Message)
}

func (self ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func newProtocolError(request *FlowRequest, format string,
	args ...interface{}) ProtocolError {
	return ProtocolError{
		ClientId:  request.ClientId,
		FlowId:    request.FlowId,
		RequestId: request.RequestId,
		Message:   fmt.Sprintf(format, args...),
	}
}

type LeaseConflictError struct {
	ClientId     string
	FlowId       string
	ProcessingOn string
	Deadline     int64
}

func (self LeaseConflictError) Error() string {
	return fmt.Sprintf("flow %v/%v is already being processed on %v",
		self.ClientId, self.FlowId, self.ProcessingOn)
}

func (self LeaseConflictError) Is(target error) bool {
	return target == ErrLeaseConflict
}
