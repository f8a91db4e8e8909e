package launcher

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"

	internaldap "github.com/ctagard/dap-inferiors/internal/dap"
	"github.com/ctagard/dap-inferiors/internal/errors"
)

const killWait = 5 * time.Second

// Connection is a running adapter process that has reported readiness.
type Connection struct {
	launcher    *Launcher
	cmd         *exec.Cmd
	pid         int
	dialTimeout time.Duration
	log         logr.Logger

	mu       sync.Mutex
	endpoint Endpoint
	ready    bool
	exitCode int
	exited   bool

	done      chan struct{}
	closeOnce sync.Once
}

func (c *Connection) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid
}

func (c *Connection) Endpoint() Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// Done is closed once the adapter process has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ExitCode returns the exit code once the process has exited.
func (c *Connection) ExitCode() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode, c.exited
}

func (c *Connection) started(cmd *exec.Cmd) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmd = cmd
	c.pid = cmd.Process.Pid
}

func (c *Connection) setEndpoint(ep Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoint = ep
	c.ready = true
}

func (c *Connection) isReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Connection) markExited(code int) {
	c.mu.Lock()
	c.exitCode = code
	c.exited = true
	c.mu.Unlock()
	close(c.done)
}

// Dial connects to the adapter's endpoint, retrying until the dial timeout
// elapses. The adapter may announce its socket slightly before it accepts.
func (c *Connection) Dial(ctx context.Context) (*internaldap.Transport, error) {
	ep := c.Endpoint()
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(time.Second),
		backoff.WithMaxElapsedTime(c.dialTimeout),
	)

	attempt := 0
	transport, err := backoff.RetryWithData(func() (*internaldap.Transport, error) {
		attempt++
		select {
		case <-c.done:
			code, _ := c.ExitCode()
			return nil, backoff.Permanent(errors.AdapterExited(code))
		default:
		}
		t, err := internaldap.Dial(ctx, ep.Network, ep.Address)
		if err != nil {
			c.log.V(1).Info("Adapter not accepting connections yet", "endpoint", ep.String(), "attempt", attempt)
			return nil, err
		}
		return t, nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		if errors.HasCode(err, errors.CodeAdapterExited) {
			return nil, err
		}
		return nil, errors.AdapterConnectFailed(ep.String(), err)
	}
	c.log.Info("Connected to debug adapter", "endpoint", ep.String(), "attempts", attempt)
	return transport, nil
}

// Close kills the adapter and frees the launcher slot. Safe to call repeatedly.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		cmd := c.cmd
		c.mu.Unlock()
		select {
		case <-c.done:
		default:
			if cmd == nil {
				break
			}
			err = killProcessGroup(cmd)
			select {
			case <-c.done:
			case <-time.After(killWait):
				c.log.Info("Debug adapter did not exit after kill", "pid", c.Pid())
			}
		}
		if c.launcher != nil {
			c.launcher.release(c)
		}
	})
	return err
}
