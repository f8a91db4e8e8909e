// Package dap implements the Debug Adapter Protocol plumbing of dap-inferiors.
//
// DAP is a protocol used to communicate between a development tool (like an IDE)
// and a debugger. This package provides:
//   - Transport: framed message sending/receiving over a socket or stdio
//   - DecodeMessage: decoding of standard and adapter-specific messages
//   - Proxy: relays traffic between the IDE and the adapter, lets observers see
//     every message and lets the proxy inject its own requests and events
//   - InferiorClient: typed wrappers for the adapter's multi-inferior requests
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
)

// Frame is one message as read from the wire together with its decoded form.
// Raw is what gets relayed; Msg is what observers look at.
type Frame struct {
	Raw []byte
	Msg dap.Message
}

// NewFrame encodes msg into a frame.
func NewFrame(msg dap.Message) (*Frame, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode DAP message: %w", err)
	}
	return &Frame{Raw: raw, Msg: msg}, nil
}

// Transport handles framed DAP communication with one peer
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
	once   sync.Once
}

// NewConnTransport creates a transport over an established connection
func NewConnTransport(conn io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

// Dial connects to a DAP endpoint ("unix" socket path or "tcp" address)
func Dial(ctx context.Context, network, address string) (*Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DAP server at %s: %w", address, err)
	}
	return NewConnTransport(conn), nil
}

// NewStdioTransport creates a transport reading from in and writing to out
func NewStdioTransport(in io.ReadCloser, out io.WriteCloser) *Transport {
	return NewConnTransport(&stdioRWC{reader: in, writer: out})
}

type stdioRWC struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioRWC) Read(p []byte) (n int, err error) {
	return s.reader.Read(p)
}

func (s *stdioRWC) Write(p []byte) (n int, err error) {
	return s.writer.Write(p)
}

func (s *stdioRWC) Close() error {
	err1 := s.reader.Close()
	err2 := s.writer.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Send encodes and sends a DAP message
func (t *Transport) Send(msg dap.Message) error {
	frame, err := NewFrame(msg)
	if err != nil {
		return err
	}
	return t.SendFrame(frame)
}

// SendFrame writes the raw bytes of a frame
func (t *Transport) SendFrame(frame *Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := dap.WriteBaseMessage(t.writer, frame.Raw); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}

	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}

	return nil
}

// Receive reads and decodes the next frame. io.EOF is returned unwrapped when the peer is gone.
func (t *Transport) Receive() (*Frame, error) {
	raw, err := dap.ReadBaseMessage(t.reader)
	if err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read DAP message: %w", err)
	}
	msg, err := DecodeMessage(raw)
	if err != nil {
		return nil, err
	}
	return &Frame{Raw: raw, Msg: msg}, nil
}

// Close closes the transport; later calls are no-ops
func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		err = t.conn.Close()
	})
	return err
}
