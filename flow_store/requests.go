package flow_store

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/flowsched/constants"
	"www.velocidex.com/golang/flowsched/flows"
	"www.velocidex.com/golang/flowsched/json"
	"www.velocidex.com/golang/flowsched/logging"
	"www.velocidex.com/golang/flowsched/paths"
	"www.velocidex.com/golang/flowsched/utils"
)

type RequestAndResponses struct {
	Request   *flows.FlowRequest
	Responses []*flows.FlowResponse
}

type flowKey struct {
	client_id string
	flow_id   string
}

type requestKey struct {
	client_id  string
	flow_id    string
	request_id uint64
}

// Must be called with the lock held. The bool is false when the
// request does not exist.
func (self *Store) readRequest(client_id, flow_id string,
	request_id uint64) (*flows.FlowRequest, bool, error) {
	result := &flows.FlowRequest{}
	err := self.getJSON(
		paths.NewFlowPathManager(client_id, flow_id).Request(request_id),
		constants.FLOW_REQUEST_ATTRIBUTE, result)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

func (self *Store) writeRequest(request *flows.FlowRequest) error {
	return self.setJSON(
		paths.NewFlowPathManager(request.ClientId, request.FlowId).
			Request(request.RequestId),
		constants.FLOW_REQUEST_ATTRIBUTE, request, request.Timestamp)
}

// Reads the flows of all the keys, failing if any is unknown.
func (self *Store) readFlows(keys []flowKey) (map[flowKey]*flows.Flow, error) {
	result := make(map[flowKey]*flows.Flow)
	for _, key := range keys {
		_, pres := result[key]
		if pres {
			continue
		}

		flow, err := self.readFlow(key.client_id, key.flow_id)
		if err != nil {
			return nil, err
		}
		result[key] = flow
	}
	return result, nil
}

// Stores new requests. Fails without writing anything if any of the
// flows is unknown.
func (self *Store) WriteFlowRequests(requests []*flows.FlowRequest) error {
	var to_notify []*flows.FlowProcessingRequest
	defer func() {
		self.queue.WriteFlowProcessingRequests(to_notify)
	}()

	self.mu.Lock()
	defer self.mu.Unlock()

	keys := make([]flowKey, 0, len(requests))
	for _, r := range requests {
		if r.RequestId == 0 {
			return errors.WithMessagef(utils.InvalidArgError,
				"request for %v/%v without request id", r.ClientId, r.FlowId)
		}
		keys = append(keys, flowKey{r.ClientId, r.FlowId})
	}

	known_flows, err := self.readFlows(keys)
	if err != nil {
		return err
	}

	for _, r := range requests {
		request := r.Copy()
		if request.Timestamp == 0 {
			request.Timestamp = utils.Microseconds(self.clock.Now())
		}

		err := self.writeRequest(request)
		if err != nil {
			return err
		}

		flow := known_flows[flowKey{r.ClientId, r.FlowId}]
		if request.NeedsProcessing &&
			flow.NextRequestToProcess == request.RequestId {
			to_notify = append(to_notify, &flows.FlowProcessingRequest{
				ClientId:  request.ClientId,
				FlowId:    request.FlowId,
				RequestId: request.RequestId,
			})
		}
	}

	return nil
}

// Stores responses and detects completed requests. Responses to
// unknown requests are logged and dropped.
func (self *Store) WriteFlowResponses(responses []*flows.FlowResponse) error {
	var to_notify []*flows.FlowProcessingRequest
	defer func() {
		self.queue.WriteFlowProcessingRequests(to_notify)
	}()

	self.mu.Lock()
	defer self.mu.Unlock()

	logger := logging.GetLogger(self.config_obj, &logging.FrontendComponent)

	keys := make([]flowKey, 0, len(responses))
	for _, r := range responses {
		keys = append(keys, flowKey{r.ClientId, r.FlowId})
	}

	known_flows, err := self.readFlows(keys)
	if err != nil {
		return err
	}

	touched := make(map[requestKey]*flows.FlowRequest)
	for _, r := range responses {
		key := requestKey{r.ClientId, r.FlowId, r.RequestId}
		request, pres := touched[key]
		if !pres {
			request, pres, err = self.readRequest(
				r.ClientId, r.FlowId, r.RequestId)
			if err != nil {
				return err
			}

			if !pres {
				logger.Error("%v/%v: Response %v for unknown request %v dropped",
					r.ClientId, r.FlowId, r.ResponseId, r.RequestId)
				continue
			}
			touched[key] = request
		}

		response := r.Copy()
		if response.Timestamp == 0 {
			response.Timestamp = utils.Microseconds(self.clock.Now())
		}

		path_manager := paths.NewFlowPathManager(r.ClientId, r.FlowId)
		if response.Type == flows.ResponseStatus {
			err = self.setJSON(path_manager.Request(r.RequestId),
				constants.FLOW_STATUS_ATTRIBUTE, response, response.Timestamp)
			if err != nil {
				return err
			}
			request.SetResponsesExpected(response.ResponseId)
			err = self.writeRequest(request)

		} else {
			err = self.setJSON(path_manager.Response(r.RequestId, r.ResponseId),
				constants.FLOW_RESPONSE_ATTRIBUTE, response, response.Timestamp)
		}
		if err != nil {
			return err
		}
		flowResponsesWritten.Inc()
	}

	// Visit completed requests in a stable order.
	request_keys := make([]requestKey, 0, len(touched))
	for k := range touched {
		request_keys = append(request_keys, k)
	}
	sort.Slice(request_keys, func(i, j int) bool {
		a, b := request_keys[i], request_keys[j]
		if a.client_id != b.client_id {
			return a.client_id < b.client_id
		}
		if a.flow_id != b.flow_id {
			return a.flow_id < b.flow_id
		}
		return a.request_id < b.request_id
	})

	for _, key := range request_keys {
		request := touched[key]
		if request.NeedsProcessing || request.NrResponsesExpected == nil {
			continue
		}

		count, err := self.countResponses(
			key.client_id, key.flow_id, key.request_id)
		if err != nil {
			return err
		}

		if count != *request.NrResponsesExpected {
			continue
		}

		request.NeedsProcessing = true
		err = self.writeRequest(request)
		if err != nil {
			return err
		}
		flowRequestsCompleted.Inc()

		flow := known_flows[flowKey{key.client_id, key.flow_id}]
		if flow.NextRequestToProcess == key.request_id {
			to_notify = append(to_notify, &flows.FlowProcessingRequest{
				ClientId:  key.client_id,
				FlowId:    key.flow_id,
				RequestId: key.request_id,
			})
		}
	}

	return nil
}

// The number of data responses stored for the request.
func (self *Store) countResponses(
	client_id, flow_id string, request_id uint64) (uint64, error) {
	records, err := self.db.ScanAttribute(self.config_obj,
		paths.NewFlowPathManager(client_id, flow_id).
			RequestResponsesPrefix(request_id),
		constants.FLOW_RESPONSE_ATTRIBUTE, "", 0)
	return uint64(len(records)), err
}

// Data responses ordered by id followed by the status if present.
func (self *Store) readResponses(
	client_id, flow_id string, request_id uint64) ([]*flows.FlowResponse, error) {
	path_manager := paths.NewFlowPathManager(client_id, flow_id)
	records, err := self.db.ScanAttribute(self.config_obj,
		path_manager.RequestResponsesPrefix(request_id),
		constants.FLOW_RESPONSE_ATTRIBUTE, "", 0)
	if err != nil {
		return nil, err
	}

	result := make([]*flows.FlowResponse, 0, len(records)+1)
	for _, record := range records {
		response := &flows.FlowResponse{}
		err := json.Unmarshal(record.Value, response)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %v", record.Subject)
		}
		result = append(result, response)
	}

	status := &flows.FlowResponse{}
	err = self.getJSON(path_manager.Request(request_id),
		constants.FLOW_STATUS_ATTRIBUTE, status)
	if err == nil {
		result = append(result, status)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return result, nil
}

// The contiguous run of ready requests starting at the flow's
// next_request_to_process.
func (self *Store) ReadFlowRequestsReadyForProcessing(
	client_id, flow_id string) ([]*RequestAndResponses, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	flow, err := self.readFlow(client_id, flow_id)
	if err != nil {
		return nil, err
	}

	return self.readReadyFrom(client_id, flow_id, flow.NextRequestToProcess)
}

// Like ReadFlowRequestsReadyForProcessing but starting at the given
// request. Used by the lease holder whose view of the flow is ahead
// of the stored one.
func (self *Store) ReadRequestsReadyFrom(
	client_id, flow_id string,
	next_needed_request uint64) ([]*RequestAndResponses, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	_, err := self.readFlow(client_id, flow_id)
	if err != nil {
		return nil, err
	}

	return self.readReadyFrom(client_id, flow_id, next_needed_request)
}

func (self *Store) readReadyFrom(client_id, flow_id string,
	next_needed_request uint64) ([]*RequestAndResponses, error) {
	result := []*RequestAndResponses{}
	for request_id := next_needed_request; ; request_id++ {
		request, pres, err := self.readRequest(client_id, flow_id, request_id)
		if err != nil {
			return nil, err
		}

		if !pres || !request.NeedsProcessing {
			break
		}

		responses, err := self.readResponses(client_id, flow_id, request_id)
		if err != nil {
			return nil, err
		}

		result = append(result, &RequestAndResponses{
			Request:   request,
			Responses: responses,
		})
	}

	return result, nil
}

// All requests of the flow in request id order.
func (self *Store) ReadAllFlowRequestsAndResponses(
	client_id, flow_id string) ([]*RequestAndResponses, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	_, err := self.readFlow(client_id, flow_id)
	if err != nil {
		return nil, err
	}

	records, err := self.db.ScanAttribute(self.config_obj,
		paths.NewFlowPathManager(client_id, flow_id).RequestsPrefix(),
		constants.FLOW_REQUEST_ATTRIBUTE, "", 0)
	if err != nil {
		return nil, err
	}

	result := make([]*RequestAndResponses, 0, len(records))
	for _, record := range records {
		request := &flows.FlowRequest{}
		err := json.Unmarshal(record.Value, request)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %v", record.Subject)
		}

		responses, err := self.readResponses(
			client_id, flow_id, request.RequestId)
		if err != nil {
			return nil, err
		}

		result = append(result, &RequestAndResponses{
			Request:   request,
			Responses: responses,
		})
	}

	return result, nil
}

// Deletes the requests and their responses. Fails without deleting
// anything if any request is unknown.
func (self *Store) DeleteFlowRequests(requests []*flows.FlowRequest) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	for _, r := range requests {
		_, err := self.readFlow(r.ClientId, r.FlowId)
		if err != nil {
			return err
		}

		_, pres, err := self.readRequest(r.ClientId, r.FlowId, r.RequestId)
		if err != nil {
			return err
		}
		if !pres {
			return flows.UnknownFlowRequestError{
				ClientId:  r.ClientId,
				FlowId:    r.FlowId,
				RequestId: r.RequestId,
			}
		}
	}

	for _, r := range requests {
		path_manager := paths.NewFlowPathManager(r.ClientId, r.FlowId)
		err := self.db.DeleteSubject(self.config_obj,
			path_manager.Request(r.RequestId))
		if err != nil {
			return err
		}

		err = self.db.DeletePrefix(self.config_obj,
			path_manager.RequestResponsesPrefix(r.RequestId))
		if err != nil {
			return err
		}
	}

	return nil
}

func (self *Store) DeleteAllFlowRequestsAndResponses(
	client_id, flow_id string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	_, err := self.readFlow(client_id, flow_id)
	if err != nil {
		return err
	}

	path_manager := paths.NewFlowPathManager(client_id, flow_id)
	err = self.db.DeletePrefix(self.config_obj, path_manager.RequestsPrefix())
	if err != nil {
		return err
	}

	return self.db.DeletePrefix(self.config_obj, path_manager.ResponsesPrefix())
}
