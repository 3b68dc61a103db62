package flows

import (
	"time"

	"www.velocidex.com/golang/flowsched/utils"
)

type FlowState string

const (
	FlowRunning  FlowState = "RUNNING"
	FlowFinished FlowState = "FINISHED"
	FlowError    FlowState = "ERROR"
)

type ResponseType string

const (
	ResponseData     ResponseType = "DATA"
	ResponseStatus   ResponseType = "STATUS"
	ResponseIterator ResponseType = "ITERATOR"
)

type AuthState string

const (
	Authenticated   AuthState = "AUTHENTICATED"
	Unauthenticated AuthState = "UNAUTHENTICATED"
	Desynchronized  AuthState = "DESYNCHRONIZED"
)

type StatusCode string

const (
	StatusOK          StatusCode = "OK"
	StatusError       StatusCode = "ERROR"
	StatusIOError     StatusCode = "IOERROR"
	StatusWorkerStuck StatusCode = "WORKER_STUCK"
	StatusCpuExceeded StatusCode = "CPU_LIMIT_EXCEEDED"
)

type ClientMetadata struct {
	ClientId  string `json:"client_id"`
	FirstSeen int64  `json:"first_seen,omitempty"`
	LastPing  int64  `json:"last_ping,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
}

type PendingTermination struct {
	Reason string `json:"reason"`
}

type ClientCrash struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// A flow is a server side state machine driven by the responses of a
// single client.
type Flow struct {
	ClientId      string    `json:"client_id"`
	FlowId        string    `json:"flow_id"`
	ParentFlowId  string    `json:"parent_flow_id,omitempty"`
	FlowClassName string    `json:"flow_class_name,omitempty"`
	State         FlowState `json:"state,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreateTime    int64     `json:"create_time,omitempty"`

	// The next request the flow expects to process. Only ever
	// advanced by one, by the worker holding the lease.
	NextRequestToProcess uint64 `json:"next_request_to_process"`

	// Lease fields. All times are in microseconds.
	ProcessingOn       string `json:"processing_on,omitempty"`
	ProcessingSince    int64  `json:"processing_since,omitempty"`
	ProcessingDeadline int64  `json:"processing_deadline,omitempty"`

	PendingTermination *PendingTermination `json:"pending_termination,omitempty"`
	ClientCrashInfo    *ClientCrash        `json:"client_crash_info,omitempty"`
}

func (self *Flow) Copy() *Flow {
	result := *self
	if self.PendingTermination != nil {
		pending := *self.PendingTermination
		result.PendingTermination = &pending
	}
	if self.ClientCrashInfo != nil {
		crash := *self.ClientCrashInfo
		result.ClientCrashInfo = &crash
	}
	return &result
}

// The flow is leased if the deadline is still in the future.
func (self *Flow) IsLeased(now time.Time) bool {
	return self.ProcessingOn != "" &&
		self.ProcessingDeadline > utils.Microseconds(now)
}

func (self *Flow) ClearLease() {
	self.ProcessingOn = ""
	self.ProcessingSince = 0
	self.ProcessingDeadline = 0
}

type FlowRequest struct {
	ClientId  string `json:"client_id"`
	FlowId    string `json:"flow_id"`
	RequestId uint64 `json:"request_id"`

	// Set when all the responses of the request have arrived.
	NeedsProcessing bool `json:"needs_processing,omitempty"`

	// Declared by the STATUS response. nil until it arrives.
	NrResponsesExpected *uint64 `json:"nr_responses_expected,omitempty"`

	// The client action this request was sent to and the flow
	// state that handles its responses.
	ActionName string `json:"action_name,omitempty"`
	NextState  string `json:"next_state,omitempty"`
	Payload    []byte `json:"payload,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

func (self *FlowRequest) Copy() *FlowRequest {
	result := *self
	if self.NrResponsesExpected != nil {
		expected := *self.NrResponsesExpected
		result.NrResponsesExpected = &expected
	}
	result.Payload = append([]byte(nil), self.Payload...)
	return &result
}

func (self *FlowRequest) SetResponsesExpected(count uint64) {
	self.NrResponsesExpected = &count
}

type Status struct {
	Code         StatusCode `json:"code"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Backtrace    string     `json:"backtrace,omitempty"`
}

func (self *Status) OK() bool {
	return self != nil && self.Code == StatusOK
}

type FlowResponse struct {
	ClientId   string       `json:"client_id"`
	FlowId     string       `json:"flow_id"`
	RequestId  uint64       `json:"request_id"`
	ResponseId uint64       `json:"response_id"`
	Type       ResponseType `json:"type"`
	AuthState  AuthState    `json:"auth_state,omitempty"`

	// The type name of the payload as declared by the client.
	PayloadType string `json:"payload_type,omitempty"`
	Payload     []byte `json:"payload,omitempty"`

	// Only set on STATUS responses.
	Status    *Status `json:"status,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

func (self *FlowResponse) Copy() *FlowResponse {
	result := *self
	result.Payload = append([]byte(nil), self.Payload...)
	if self.Status != nil {
		status := *self.Status
		result.Status = &status
	}
	return &result
}

// A notification that the flow has a request ready for processing.
type FlowProcessingRequest struct {
	ClientId  string `json:"client_id"`
	FlowId    string `json:"flow_id"`
	RequestId uint64 `json:"request_id"`

	// Zero means deliver as soon as possible.
	DeliveryTime time.Time `json:"delivery_time,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

// A message queued for delivery to a client. Clients lease messages
// and delete them once they are acknowledged.
type ClientMessage struct {
	ClientId    string `json:"client_id"`
	TaskId      uint64 `json:"task_id"`
	FlowId      string `json:"flow_id,omitempty"`
	RequestId   uint64 `json:"request_id,omitempty"`
	ActionName  string `json:"action_name,omitempty"`
	Payload     []byte `json:"payload,omitempty"`
	LeasedUntil int64  `json:"leased_until,omitempty"`
	LeasedBy    string `json:"leased_by,omitempty"`
}

// A request queued for a named server side message handler, for
// example one recording client startups. Handlers lease requests and
// delete them once handled.
type MessageHandlerRequest struct {
	ClientId    string `json:"client_id,omitempty"`
	HandlerName string `json:"handler_name"`
	RequestId   uint64 `json:"request_id"`
	Request     []byte `json:"request,omitempty"`
	LeasedUntil int64  `json:"leased_until,omitempty"`
	LeasedBy    string `json:"leased_by,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

type FlowResult struct {
	ClientId    string `json:"client_id"`
	FlowId      string `json:"flow_id"`
	Tag         string `json:"tag,omitempty"`
	PayloadType string `json:"payload_type,omitempty"`
	Payload     []byte `json:"payload,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

type FlowLogEntry struct {
	ClientId  string `json:"client_id"`
	FlowId    string `json:"flow_id"`
	Level     string `json:"level,omitempty"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Kinds of payloads stored in the flow's collections.
const (
	FlowResultKind   = "FlowResult"
	FlowLogEntryKind = "FlowLogEntry"
)
