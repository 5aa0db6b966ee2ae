package telephony

import (
	"context"
	"sync"
)

// FakeGateway is an in-memory Gateway for tests and the local env.
// Dial outcomes can be scripted per call id; unscripted dials accept.
type FakeGateway struct {
	mu      sync.Mutex
	results map[string]DialResult
	err     error
	dialed  []DialRequest
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{results: make(map[string]DialResult)}
}

func (g *FakeGateway) Name() string { return "fake" }

// Script sets the dial result for a call id.
func (g *FakeGateway) Script(callID string, res DialResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[callID] = res
}

// Fail makes every Dial return err.
func (g *FakeGateway) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *FakeGateway) Dial(ctx context.Context, req DialRequest) (DialResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dialed = append(g.dialed, req)
	if g.err != nil {
		return DialResult{}, g.err
	}
	if res, ok := g.results[req.CallID]; ok {
		return res, nil
	}
	return DialResult{Accepted: true}, nil
}

// Dialed returns a copy of all dial requests seen so far.
func (g *FakeGateway) Dialed() []DialRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]DialRequest, len(g.dialed))
	copy(out, g.dialed)
	return out
}
