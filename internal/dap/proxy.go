package dap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/tidwall/sjson"
)

var (
	ErrProxyClosed    = errors.New("dap proxy is closed")
	ErrRequestTimeout = errors.New("dap request timed out")
)

const queueSize = 64

// Observer sees every message that passes through the proxy, in arrival order
// per direction. It runs on the reader goroutine and must not block.
type Observer func(msg dap.Message, direction Direction)

// ProxyConfig configures a Proxy.
type ProxyConfig struct {
	// Observer is optional.
	Observer Observer

	// RequestTimeout bounds SendRequest round trips; zero means only the caller's context applies.
	RequestTimeout time.Duration

	Logger logr.Logger
}

// outbound is a frame queued for one of the peers.
type outbound struct {
	frame *Frame

	// pending is registered under the assigned seq before a request reaches the adapter.
	pending *pendingRequest

	// reverse is set for adapter-originated requests heading to the IDE.
	reverse    bool
	reverseSeq int
}

// Proxy relays DAP traffic between an IDE (upstream) and a debug adapter
// (downstream). Each side sees a contiguous sequence of seq numbers, which lets
// the proxy add its own requests toward the adapter and its own events toward
// the IDE. Frames are relayed byte for byte apart from seq and request_seq.
type Proxy struct {
	ide     *Transport
	adapter *Transport

	observer       Observer
	requestTimeout time.Duration
	log            logr.Logger

	ideSeq     sequenceCounter
	adapterSeq sequenceCounter
	pending    *pendingRequestMap
	reverse    *reverseRequestMap

	toIDE     chan outbound
	toAdapter chan outbound

	ctx     context.Context
	cancel  context.CancelFunc
	runOnce sync.Once
}

// NewProxy creates a proxy between ide and adapter. Nothing is read until Run.
func NewProxy(ide, adapter *Transport, cfg ProxyConfig) *Proxy {
	ctx, cancel := context.WithCancel(context.Background())
	return &Proxy{
		ide:            ide,
		adapter:        adapter,
		observer:       cfg.Observer,
		requestTimeout: cfg.RequestTimeout,
		log:            cfg.Logger,
		pending:        newPendingRequestMap(),
		reverse:        newReverseRequestMap(),
		toIDE:          make(chan outbound, queueSize),
		toAdapter:      make(chan outbound, queueSize),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Run pumps messages until either peer disconnects, a write fails, Stop is
// called or ctx is done. A peer closing its side is not an error.
func (p *Proxy) Run(ctx context.Context) error {
	err := ErrProxyClosed
	p.runOnce.Do(func() {
		err = p.run(ctx)
	})
	return err
}

func (p *Proxy) run(ctx context.Context) error {
	errCh := make(chan error, 4)
	wg := conc.NewWaitGroup()

	wg.Go(func() { errCh <- wrapPumpErr("ide reader", p.readIDE()) })
	wg.Go(func() { errCh <- wrapPumpErr("adapter reader", p.readAdapter()) })
	wg.Go(func() { errCh <- wrapPumpErr("ide writer", p.writeIDE()) })
	wg.Go(func() { errCh <- wrapPumpErr("adapter writer", p.writeAdapter()) })

	var result error
	select {
	case result = <-errCh:
	case <-ctx.Done():
		result = ctx.Err()
	case <-p.ctx.Done():
	}

	p.cancel()
	if err := p.ide.Close(); err != nil {
		p.log.V(1).Info("Error closing IDE transport", "error", err.Error())
	}
	if err := p.adapter.Close(); err != nil {
		p.log.V(1).Info("Error closing adapter transport", "error", err.Error())
	}
	p.pending.DrainWithError()
	wg.Wait()

	if isPeerClosed(result) || errors.Is(result, context.Canceled) {
		return nil
	}
	if result != nil {
		p.log.Info("Proxy terminated", "reason", result.Error())
	}
	return result
}

// Stop ends Run. Safe to call more than once.
func (p *Proxy) Stop() {
	p.cancel()
}

// Done is closed once the proxy has stopped.
func (p *Proxy) Done() <-chan struct{} {
	return p.ctx.Done()
}

// SendRequest injects a request toward the adapter and waits for its response.
// The response is not forwarded to the IDE.
func (p *Proxy) SendRequest(ctx context.Context, request dap.Message) (dap.Message, error) {
	rm, ok := request.(dap.RequestMessage)
	if !ok {
		return nil, fmt.Errorf("expected request message, got %T", request)
	}
	if p.ctx.Err() != nil {
		return nil, ErrProxyClosed
	}

	frame, err := NewFrame(request)
	if err != nil {
		return nil, err
	}
	pr := &pendingRequest{
		command:      rm.GetRequest().Command,
		virtual:      true,
		responseChan: make(chan dap.Message, 1),
	}

	select {
	case p.toAdapter <- outbound{frame: frame, pending: pr}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrProxyClosed
	}

	waitCtx := ctx
	if p.requestTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.requestTimeout)
		defer cancel()
	}

	select {
	case resp, ok := <-pr.responseChan:
		if !ok {
			return nil, ErrProxyClosed
		}
		return resp, nil
	case <-waitCtx.Done():
		p.pending.Forget(pr)
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrRequestTimeout
		}
		return nil, waitCtx.Err()
	case <-p.ctx.Done():
		return nil, ErrProxyClosed
	}
}

// EmitEvent sends a proxy-generated event to the IDE.
func (p *Proxy) EmitEvent(event dap.Message) error {
	if _, ok := event.(dap.EventMessage); !ok {
		return fmt.Errorf("expected event message, got %T", event)
	}
	frame, err := NewFrame(event)
	if err != nil {
		return err
	}
	select {
	case p.toIDE <- outbound{frame: frame}:
		return nil
	case <-p.ctx.Done():
		return ErrProxyClosed
	}
}

func (p *Proxy) observe(msg dap.Message, direction Direction) {
	if p.observer == nil {
		return
	}
	if r := panics.Try(func() { p.observer(msg, direction) }); r != nil {
		p.log.Error(r.AsError(), "Message observer panicked", "command", Command(msg), "direction", direction.String())
	}
}

func (p *Proxy) readIDE() error {
	for {
		frame, err := p.ide.Receive()
		if err != nil {
			return err
		}
		p.observe(frame.Msg, Upstream)

		switch msg := frame.Msg.(type) {
		case dap.RequestMessage:
			req := msg.GetRequest()
			p.enqueue(p.toAdapter, outbound{
				frame:   frame,
				pending: &pendingRequest{originalSeq: req.Seq, command: req.Command},
			})
		case dap.ResponseMessage:
			resp := msg.GetResponse()
			adapterSeq, ok := p.reverse.Take(resp.RequestSeq)
			if !ok {
				p.log.Info("Dropping IDE response to unknown request", "command", resp.Command, "requestSeq", resp.RequestSeq)
				continue
			}
			if frame.Raw, err = sjson.SetBytes(frame.Raw, "request_seq", adapterSeq); err != nil {
				return err
			}
			p.enqueue(p.toAdapter, outbound{frame: frame})
		default:
			p.log.Info("Unexpected message type from IDE", "type", fmt.Sprintf("%T", msg))
		}
	}
}

func (p *Proxy) readAdapter() error {
	for {
		frame, err := p.adapter.Receive()
		if err != nil {
			return err
		}
		p.observe(frame.Msg, Downstream)

		switch msg := frame.Msg.(type) {
		case dap.ResponseMessage:
			resp := msg.GetResponse()
			pr := p.pending.Take(resp.RequestSeq)
			if pr == nil {
				p.log.Info("Dropping adapter response to unknown request", "command", resp.Command, "requestSeq", resp.RequestSeq)
				continue
			}
			if pr.virtual {
				pr.responseChan <- msg
				continue
			}
			if frame.Raw, err = sjson.SetBytes(frame.Raw, "request_seq", pr.originalSeq); err != nil {
				return err
			}
			p.enqueue(p.toIDE, outbound{frame: frame})
		case dap.EventMessage:
			p.enqueue(p.toIDE, outbound{frame: frame})
		case dap.RequestMessage:
			p.enqueue(p.toIDE, outbound{frame: frame, reverse: true, reverseSeq: msg.GetRequest().Seq})
		default:
			p.log.Info("Unexpected message type from adapter", "type", fmt.Sprintf("%T", msg))
		}
	}
}

func (p *Proxy) enqueue(queue chan<- outbound, out outbound) {
	select {
	case queue <- out:
	case <-p.ctx.Done():
	}
}

func (p *Proxy) writeIDE() error {
	for {
		select {
		case out := <-p.toIDE:
			seq := p.ideSeq.Next()
			raw, err := sjson.SetBytes(out.frame.Raw, "seq", seq)
			if err != nil {
				return err
			}
			if out.reverse {
				p.reverse.Add(seq, out.reverseSeq)
			}
			if err := p.ide.SendFrame(&Frame{Raw: raw, Msg: out.frame.Msg}); err != nil {
				return err
			}
		case <-p.ctx.Done():
			return nil
		}
	}
}

func (p *Proxy) writeAdapter() error {
	for {
		select {
		case out := <-p.toAdapter:
			seq := p.adapterSeq.Next()
			raw, err := sjson.SetBytes(out.frame.Raw, "seq", seq)
			if err != nil {
				return err
			}
			if out.pending != nil {
				p.pending.Add(seq, out.pending)
			}
			if err := p.adapter.SendFrame(&Frame{Raw: raw, Msg: out.frame.Msg}); err != nil {
				if out.pending != nil {
					p.pending.Forget(out.pending)
				}
				return err
			}
		case <-p.ctx.Done():
			return nil
		}
	}
}

func wrapPumpErr(pump string, err error) error {
	if err == nil || isPeerClosed(err) {
		return err
	}
	return fmt.Errorf("%s: %w", pump, err)
}

func isPeerClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}
