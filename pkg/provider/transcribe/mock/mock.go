// Package mock provides a test double for the transcribe.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/parleylabs/parley/pkg/provider/transcribe"
)

// Provider is a mock implementation of transcribe.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call.
	Result transcribe.Result

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// CheckErr, if non-nil, is returned by Check.
	CheckErr error

	// Calls records every Transcribe request in order.
	Calls []transcribe.Request
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(_ context.Context, req transcribe.Request) (transcribe.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	if p.Err != nil {
		return transcribe.Result{}, p.Err
	}
	return p.Result, nil
}

// Check returns CheckErr, mirroring the readiness checks on real backends.
func (p *Provider) Check(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CheckErr
}

// CallCount returns the number of Transcribe calls recorded so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Requests returns a copy of the recorded requests.
func (p *Provider) Requests() []transcribe.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]transcribe.Request, len(p.Calls))
	copy(out, p.Calls)
	return out
}

// Ensure Provider implements transcribe.Provider at compile time.
var _ transcribe.Provider = (*Provider)(nil)
