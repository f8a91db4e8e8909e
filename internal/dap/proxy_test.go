package dap

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observed struct {
	command   string
	direction Direction
}

type proxyHarness struct {
	proxy   *Proxy
	ide     *Transport
	adapter *Transport
	done    chan error

	mu   sync.Mutex
	seen []observed
}

func newProxyHarness(t *testing.T) *proxyHarness {
	t.Helper()
	ideConn, ideProxyConn := net.Pipe()
	adapterConn, adapterProxyConn := net.Pipe()

	h := &proxyHarness{
		ide:     NewConnTransport(ideConn),
		adapter: NewConnTransport(adapterConn),
		done:    make(chan error, 1),
	}
	h.proxy = NewProxy(NewConnTransport(ideProxyConn), NewConnTransport(adapterProxyConn), ProxyConfig{
		Observer: func(msg dap.Message, direction Direction) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.seen = append(h.seen, observed{command: Command(msg), direction: direction})
		},
		RequestTimeout: 5 * time.Second,
		Logger:         testr.New(t),
	})

	go func() { h.done <- h.proxy.Run(context.Background()) }()
	t.Cleanup(func() {
		h.proxy.Stop()
		_ = h.ide.Close()
		_ = h.adapter.Close()
		<-h.done
	})
	return h
}

func (h *proxyHarness) observedMessages() []observed {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]observed(nil), h.seen...)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func sendRaw(t *testing.T, tr *Transport, raw string) {
	t.Helper()
	require.NoError(t, tr.SendFrame(&Frame{Raw: []byte(raw)}))
}

func TestProxyRewritesSequenceNumbers(t *testing.T) {
	h := newProxyHarness(t)

	sendRaw(t, h.ide, `{"seq":7,"type":"request","command":"threads"}`)

	frame, err := h.adapter.Receive()
	require.NoError(t, err)
	req, ok := frame.Msg.(*dap.ThreadsRequest)
	require.True(t, ok, "got %T", frame.Msg)
	assert.Equal(t, 1, req.Seq)

	sendRaw(t, h.adapter, `{"seq":1,"type":"response","request_seq":1,"success":true,"command":"threads","body":{"threads":[{"id":1,"name":"main"}]}}`)

	frame, err = h.ide.Receive()
	require.NoError(t, err)
	resp, ok := frame.Msg.(*dap.ThreadsResponse)
	require.True(t, ok, "got %T", frame.Msg)
	assert.Equal(t, 7, resp.RequestSeq)
	assert.Equal(t, 1, resp.Seq)
	assert.Equal(t, "main", resp.Body.Threads[0].Name)
}

func TestProxyVirtualRequestIsNotForwarded(t *testing.T) {
	h := newProxyHarness(t)
	client := NewInferiorClient(h.proxy)

	type result struct {
		body *ProcessListBody
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		body, err := client.ListProcesses(context.Background())
		resCh <- result{body, err}
	}()

	frame, err := h.adapter.Receive()
	require.NoError(t, err)
	req, ok := frame.Msg.(*ListProcessesRequest)
	require.True(t, ok, "got %T", frame.Msg)

	sendRaw(t, h.adapter, `{"seq":1,"type":"response","request_seq":`+itoa(req.Seq)+`,"success":true,"command":"listProcesses","body":{"processes":[{"pid":11,"name":"srv"}],"currentProcess":11}}`)

	res := <-resCh
	require.NoError(t, res.err)
	assert.Equal(t, []ProcessInfo{{Pid: 11, Name: "srv"}}, res.body.Processes)

	// The next thing the IDE sees is the adapter's event, not the virtual response.
	sendRaw(t, h.adapter, `{"seq":2,"type":"event","event":"initialized"}`)
	frame, err = h.ide.Receive()
	require.NoError(t, err)
	_, ok = frame.Msg.(*dap.InitializedEvent)
	assert.True(t, ok, "got %T", frame.Msg)
	assert.Equal(t, 1, frame.Msg.GetSeq())
}

func TestProxyInterleavesVirtualAndIDERequests(t *testing.T) {
	h := newProxyHarness(t)

	sendRaw(t, h.ide, `{"seq":1,"type":"request","command":"threads"}`)
	first, err := h.adapter.Receive()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- NewInferiorClient(h.proxy).AddInferiors(context.Background(), []int{3})
	}()
	second, err := h.adapter.Receive()
	require.NoError(t, err)
	add, ok := second.Msg.(*AddInferiorsRequest)
	require.True(t, ok, "got %T", second.Msg)
	assert.Equal(t, []int{3}, add.Arguments.Pids)
	assert.NotEqual(t, first.Msg.GetSeq(), second.Msg.GetSeq())

	// Answer the virtual request first, then the IDE's.
	sendRaw(t, h.adapter, `{"seq":1,"type":"response","request_seq":`+itoa(second.Msg.GetSeq())+`,"success":true,"command":"addInferiors"}`)
	require.NoError(t, <-errCh)

	sendRaw(t, h.adapter, `{"seq":2,"type":"response","request_seq":`+itoa(first.Msg.GetSeq())+`,"success":true,"command":"threads","body":{"threads":[]}}`)
	frame, err := h.ide.Receive()
	require.NoError(t, err)
	assert.Equal(t, 1, frame.Msg.(dap.ResponseMessage).GetResponse().RequestSeq)
}

func TestProxyFailedVirtualRequest(t *testing.T) {
	h := newProxyHarness(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := NewInferiorClient(h.proxy).DetachInferiors(context.Background(), []int{4})
		errCh <- err
	}()
	frame, err := h.adapter.Receive()
	require.NoError(t, err)
	sendRaw(t, h.adapter, `{"seq":1,"type":"response","request_seq":`+itoa(frame.Msg.GetSeq())+`,"success":false,"command":"detachInferiors","message":"busy"}`)

	err = <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detachInferiors request failed")
	assert.Contains(t, err.Error(), "busy")
}

func TestProxyEmitEventSharesIDESequence(t *testing.T) {
	h := newProxyHarness(t)

	ev := &dap.OutputEvent{Event: NewEvent("output"), Body: dap.OutputEventBody{Category: "important", Output: "hello"}}
	require.NoError(t, h.proxy.EmitEvent(ev))

	frame, err := h.ide.Receive()
	require.NoError(t, err)
	out, ok := frame.Msg.(*dap.OutputEvent)
	require.True(t, ok, "got %T", frame.Msg)
	assert.Equal(t, "hello", out.Body.Output)
	assert.Equal(t, 1, out.Seq)

	sendRaw(t, h.adapter, `{"seq":1,"type":"event","event":"initialized"}`)
	frame, err = h.ide.Receive()
	require.NoError(t, err)
	assert.Equal(t, 2, frame.Msg.GetSeq())
}

func TestProxyReverseRequestRoundTrip(t *testing.T) {
	h := newProxyHarness(t)

	sendRaw(t, h.adapter, `{"seq":5,"type":"request","command":"runInTerminal","arguments":{"args":["a.out"],"cwd":"/"}}`)
	frame, err := h.ide.Receive()
	require.NoError(t, err)
	rit, ok := frame.Msg.(*dap.RunInTerminalRequest)
	require.True(t, ok, "got %T", frame.Msg)

	sendRaw(t, h.ide, `{"seq":3,"type":"response","request_seq":`+itoa(rit.Seq)+`,"success":true,"command":"runInTerminal","body":{"processId":99}}`)
	frame, err = h.adapter.Receive()
	require.NoError(t, err)
	resp, ok := frame.Msg.(*dap.RunInTerminalResponse)
	require.True(t, ok, "got %T", frame.Msg)
	assert.Equal(t, 5, resp.RequestSeq)
}

func TestProxyObserverSeesBothDirectionsInOrder(t *testing.T) {
	h := newProxyHarness(t)

	sendRaw(t, h.ide, `{"seq":1,"type":"request","command":"threads"}`)
	frame, err := h.adapter.Receive()
	require.NoError(t, err)
	sendRaw(t, h.adapter, `{"seq":1,"type":"response","request_seq":`+itoa(frame.Msg.GetSeq())+`,"success":true,"command":"threads","body":{"threads":[]}}`)
	_, err = h.ide.Receive()
	require.NoError(t, err)

	assert.Equal(t, []observed{
		{command: "threads", direction: Upstream},
		{command: "threads", direction: Downstream},
	}, h.observedMessages())
}

func TestProxyRunEndsWhenIDEDisconnects(t *testing.T) {
	h := newProxyHarness(t)

	require.NoError(t, h.ide.Close())

	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("proxy did not stop after the IDE disconnected")
	}

	_, err := NewInferiorClient(h.proxy).ListProcesses(context.Background())
	assert.Error(t, err)
}
