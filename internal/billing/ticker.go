package billing

import (
	"context"
	"sync"
	"time"
)

// Registry owns the per-call tick goroutines and enforces the single-writer
// rule: at most one live ticker per call id in this process.
type Registry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{cancels: map[string]context.CancelFunc{}}
}

// Start launches a ticker for the call unless one is already running.
// fn returning true stops the ticker. Reports whether a ticker was started.
func (r *Registry) Start(callID string, interval time.Duration, fn func(ctx context.Context) bool) bool {
	r.mu.Lock()
	if _, ok := r.cancels[callID]; ok {
		r.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancels[callID] = cancel
	r.mu.Unlock()

	go func() {
		defer r.remove(callID)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if fn(ctx) {
					return
				}
			}
		}
	}()
	return true
}

// Stop cancels the call's ticker if one is running.
func (r *Registry) Stop(callID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[callID]
	delete(r.cancels, callID)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// StopAll cancels every ticker. Used on shutdown; sessions survive in the
// store and the reaper settles them later.
func (r *Registry) StopAll() {
	r.mu.Lock()
	cancels := r.cancels
	r.cancels = map[string]context.CancelFunc{}
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Active reports the number of live tickers.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

func (r *Registry) remove(callID string) {
	r.mu.Lock()
	if cancel, ok := r.cancels[callID]; ok {
		delete(r.cancels, callID)
		defer cancel()
	}
	r.mu.Unlock()
}
