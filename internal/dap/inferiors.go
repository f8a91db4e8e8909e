package dap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-dap"

	"github.com/ctagard/dap-inferiors/internal/errors"
)

// Requester sends a request to the adapter and returns its response.
// *Proxy implements it.
type Requester interface {
	SendRequest(ctx context.Context, request dap.Message) (dap.Message, error)
}

// InferiorClient issues the adapter's multi-inferior requests.
// Every failure is returned as a PROTOCOL_REQUEST_FAILED DebugError.
type InferiorClient struct {
	requester Requester
}

// NewInferiorClient creates a client that sends its requests through requester.
func NewInferiorClient(requester Requester) *InferiorClient {
	return &InferiorClient{requester: requester}
}

// ListProcesses returns the adapter's process set and current process.
func (c *InferiorClient) ListProcesses(ctx context.Context) (*ProcessListBody, error) {
	req := &ListProcessesRequest{Request: newRequest(CommandListProcesses), Arguments: json.RawMessage("{}")}
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	lp, ok := resp.(*ListProcessesResponse)
	if !ok {
		return nil, unexpected(CommandListProcesses, resp)
	}
	return &lp.Body, nil
}

// ContinueAfterProcessExit asks whether debugging goes on after a debuggee exited.
func (c *InferiorClient) ContinueAfterProcessExit(ctx context.Context) (bool, error) {
	req := &ContinueAfterProcessExitRequest{Request: newRequest(CommandContinueAfterProcessExit), Arguments: json.RawMessage("{}")}
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return false, err
	}
	cr, ok := resp.(*ContinueAfterProcessExitResponse)
	if !ok {
		return false, unexpected(CommandContinueAfterProcessExit, resp)
	}
	return cr.Body.Continue, nil
}

// HandleNewProcess lets the adapter pick up a newly spawned debuggee.
func (c *InferiorClient) HandleNewProcess(ctx context.Context, spawnerPid *int, program string) (*ProcessListBody, error) {
	req := &HandleNewProcessRequest{
		Request:   newRequest(CommandHandleNewProcess),
		Arguments: HandleNewProcessArguments{SpawnerPid: spawnerPid, Program: program},
	}
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	hr, ok := resp.(*HandleNewProcessResponse)
	if !ok {
		return nil, unexpected(CommandHandleNewProcess, resp)
	}
	return &hr.Body, nil
}

// SelectInferior makes pid the adapter's current inferior.
func (c *InferiorClient) SelectInferior(ctx context.Context, pid int) error {
	req := &SelectInferiorRequest{Request: newRequest(CommandSelectInferior), Arguments: SelectInferiorArguments{Pid: pid}}
	_, err := c.roundTrip(ctx, req)
	return err
}

// AddInferiors attaches the adapter to pids.
func (c *InferiorClient) AddInferiors(ctx context.Context, pids []int) error {
	req := &AddInferiorsRequest{Request: newRequest(CommandAddInferiors), Arguments: InferiorsArguments{Pids: pids}}
	_, err := c.roundTrip(ctx, req)
	return err
}

// DetachInferiors detaches the adapter from pids.
func (c *InferiorClient) DetachInferiors(ctx context.Context, pids []int) (*DetachInferiorsResponseBody, error) {
	req := &DetachInferiorsRequest{Request: newRequest(CommandDetachInferiors), Arguments: InferiorsArguments{Pids: pids}}
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	dr, ok := resp.(*DetachInferiorsResponse)
	if !ok {
		return nil, unexpected(CommandDetachInferiors, resp)
	}
	return &dr.Body, nil
}

func (c *InferiorClient) roundTrip(ctx context.Context, req dap.RequestMessage) (dap.Message, error) {
	command := req.GetRequest().Command
	resp, err := c.requester.SendRequest(ctx, req)
	if err != nil {
		return nil, errors.ProtocolRequestFailed(command, err)
	}
	rm, ok := resp.(dap.ResponseMessage)
	if !ok {
		return nil, unexpected(command, resp)
	}
	if !rm.GetResponse().Success {
		return nil, errors.ProtocolRequestFailed(command, fmt.Errorf("%s", ErrorText(resp)))
	}
	return resp, nil
}

func unexpected(command string, resp dap.Message) error {
	return errors.ProtocolRequestFailed(command, fmt.Errorf("unexpected response type %T", resp))
}
