package launcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ctagard/dap-inferiors/internal/config"
)

// Endpoint is where the adapter accepts its DAP connection.
type Endpoint struct {
	// Network is "unix" for a socket path or "tcp" for a host:port address.
	Network string `json:"network"`
	Address string `json:"address"`
}

func (e Endpoint) String() string {
	return e.Network + ":" + e.Address
}

// readinessMatcher recognizes the adapter's readiness line on stdout.
type readinessMatcher interface {
	Match(line string) (Endpoint, bool)
}

var socketPathPattern = regexp.MustCompile(`SOCKET_PATH=(.+)`)

type socketPathMatcher struct{}

func (socketPathMatcher) Match(line string) (Endpoint, bool) {
	m := socketPathPattern.FindStringSubmatch(line)
	if m == nil {
		return Endpoint{}, false
	}
	path := strings.TrimSpace(m[1])
	if path == "" {
		return Endpoint{}, false
	}
	return Endpoint{Network: "unix", Address: path}, true
}

type readyLineMatcher struct {
	literal  string
	endpoint string
}

func (m readyLineMatcher) Match(line string) (Endpoint, bool) {
	if !strings.Contains(line, m.literal) {
		return Endpoint{}, false
	}
	return Endpoint{Network: "tcp", Address: m.endpoint}, true
}

func newReadinessMatcher(cfg config.ReadinessConfig) (readinessMatcher, error) {
	switch cfg.Mode {
	case config.ReadinessSocketPath:
		return socketPathMatcher{}, nil
	case config.ReadinessReadyLine:
		if cfg.ReadyLiteral == "" || cfg.Endpoint == "" {
			return nil, fmt.Errorf("ready-line readiness needs both a literal and an endpoint")
		}
		return readyLineMatcher{literal: cfg.ReadyLiteral, endpoint: cfg.Endpoint}, nil
	default:
		return nil, fmt.Errorf("unknown readiness mode %q", cfg.Mode)
	}
}
