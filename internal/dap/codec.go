package dap

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-dap"
	"github.com/tidwall/gjson"
)

type messageCtor func() dap.Message

var customRequests = map[string]messageCtor{
	CommandListProcesses:            func() dap.Message { return &ListProcessesRequest{} },
	CommandContinueAfterProcessExit: func() dap.Message { return &ContinueAfterProcessExitRequest{} },
	CommandHandleNewProcess:         func() dap.Message { return &HandleNewProcessRequest{} },
	CommandSelectInferior:           func() dap.Message { return &SelectInferiorRequest{} },
	CommandAddInferiors:             func() dap.Message { return &AddInferiorsRequest{} },
	CommandDetachInferiors:          func() dap.Message { return &DetachInferiorsRequest{} },
}

var customResponses = map[string]messageCtor{
	"launch":                        func() dap.Message { return &LaunchResponse{} },
	CommandListProcesses:            func() dap.Message { return &ListProcessesResponse{} },
	CommandContinueAfterProcessExit: func() dap.Message { return &ContinueAfterProcessExitResponse{} },
	CommandHandleNewProcess:         func() dap.Message { return &HandleNewProcessResponse{} },
	CommandSelectInferior:           func() dap.Message { return &SelectInferiorResponse{} },
	CommandAddInferiors:             func() dap.Message { return &AddInferiorsResponse{} },
	CommandDetachInferiors:          func() dap.Message { return &DetachInferiorsResponse{} },
}

var customEvents = map[string]messageCtor{
	EventExitedProcess: func() dap.Message { return &ExitedProcessEvent{} },
	EventNewProcess:    func() dap.Message { return &NewProcessEvent{} },
}

// DecodeMessage parses a DAP message body. The adapter's custom messages are
// decoded into this package's types, standard ones by go-dap, and anything go-dap
// rejects falls back to the Unknown* types so that no field is lost.
func DecodeMessage(data []byte) (dap.Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON in DAP message")
	}
	header := gjson.GetManyBytes(data, "type", "command", "event", "success")
	msgType, command, event := header[0].String(), header[1].String(), header[2].String()

	var ctor messageCtor
	switch msgType {
	case "request":
		ctor = customRequests[command]
	case "response":
		if !header[3].Bool() {
			ctor = func() dap.Message { return &dap.ErrorResponse{} }
		} else {
			ctor = customResponses[command]
		}
	case "event":
		ctor = customEvents[event]
	default:
		return nil, fmt.Errorf("unknown DAP message type %q", msgType)
	}
	if ctor != nil {
		return unmarshalInto(ctor(), data)
	}

	msg, err := dap.DecodeProtocolMessage(data)
	if err == nil {
		return msg, nil
	}

	switch msgType {
	case "request":
		return unmarshalInto(&UnknownRequest{}, data)
	case "response":
		return unmarshalInto(&UnknownResponse{}, data)
	default:
		return unmarshalInto(&UnknownEvent{}, data)
	}
}

func unmarshalInto(msg dap.Message, data []byte) (dap.Message, error) {
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to decode DAP message: %w", err)
	}
	return msg, nil
}

// Command returns the command of a request or response, or the event name of an event.
func Command(msg dap.Message) string {
	switch m := msg.(type) {
	case dap.RequestMessage:
		return m.GetRequest().Command
	case dap.ResponseMessage:
		return m.GetResponse().Command
	case dap.EventMessage:
		return m.GetEvent().Event
	default:
		return ""
	}
}

// ErrorText extracts a readable reason from a failed response.
func ErrorText(msg dap.Message) string {
	if er, ok := msg.(*dap.ErrorResponse); ok && er.Body.Error != nil && er.Body.Error.Format != "" {
		return er.Body.Error.Format
	}
	if rm, ok := msg.(dap.ResponseMessage); ok {
		if m := rm.GetResponse().Message; m != "" {
			return m
		}
	}
	return "request failed"
}
