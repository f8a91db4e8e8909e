package dap

import (
	"sync"

	"github.com/google/go-dap"
)

// Direction tells which way a message travels through the proxy.
type Direction int

const (
	// Upstream is IDE to adapter.
	Upstream Direction = iota
	// Downstream is adapter to IDE.
	Downstream
)

func (d Direction) String() string {
	switch d {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	default:
		return "unknown"
	}
}

// Arrow renders the direction for message logs.
func (d Direction) Arrow() string {
	if d == Upstream {
		return "→"
	}
	return "←"
}

// pendingRequest is a request sent to the adapter that still awaits its response.
type pendingRequest struct {
	// seq is the sequence number the adapter saw; set by pendingRequestMap.Add.
	seq int

	// originalSeq is the IDE's sequence number; unused for virtual requests.
	originalSeq int

	command string

	// virtual requests were injected by the proxy; their responses go to
	// responseChan instead of the IDE.
	virtual      bool
	responseChan chan dap.Message
}

type pendingRequestMap struct {
	mu       sync.Mutex
	requests map[int]*pendingRequest
}

func newPendingRequestMap() *pendingRequestMap {
	return &pendingRequestMap{requests: make(map[int]*pendingRequest)}
}

func (m *pendingRequestMap) Add(seq int, req *pendingRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.seq = seq
	m.requests[seq] = req
}

// Take removes and returns the request sent with seq, or nil.
func (m *pendingRequestMap) Take(seq int) *pendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[seq]
	if !ok {
		return nil
	}
	delete(m.requests, seq)
	return req
}

// Forget drops req if it is still pending.
func (m *pendingRequestMap) Forget(req *pendingRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.requests[req.seq]; ok && cur == req {
		delete(m.requests, req.seq)
	}
}

// DrainWithError closes the channels of waiting virtual requests and clears the map.
func (m *pendingRequestMap) DrainWithError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.requests {
		if req.virtual && req.responseChan != nil {
			close(req.responseChan)
		}
	}
	m.requests = make(map[int]*pendingRequest)
}

// reverseRequestMap maps the seq the IDE saw on an adapter-originated request
// back to the seq the adapter used.
type reverseRequestMap struct {
	mu   sync.Mutex
	seqs map[int]int
}

func newReverseRequestMap() *reverseRequestMap {
	return &reverseRequestMap{seqs: make(map[int]int)}
}

func (m *reverseRequestMap) Add(ideSeq, adapterSeq int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[ideSeq] = adapterSeq
}

func (m *reverseRequestMap) Take(ideSeq int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq, ok := m.seqs[ideSeq]
	if ok {
		delete(m.seqs, ideSeq)
	}
	return seq, ok
}

type sequenceCounter struct {
	mu  sync.Mutex
	seq int
}

func (c *sequenceCounter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}
