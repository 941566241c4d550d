package tui

import (
	"context"
	"sync"
)

// deferredCallouts is the CalloutStore the view controller sees. Lookups are
// answered from a value fetched by a tea.Cmd; dismissals are queued and sent
// to the real store by another tea.Cmd, so the controller never blocks the
// UI goroutine.
type deferredCallouts struct {
	mu        sync.Mutex
	dismissed map[string]bool
	lookupErr error
	queued    []string
}

func newDeferredCallouts() *deferredCallouts {
	return &deferredCallouts{dismissed: make(map[string]bool)}
}

func (d *deferredCallouts) set(feature string, dismissed bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dismissed[feature] = dismissed
	d.lookupErr = err
}

func (d *deferredCallouts) IsDismissed(_ context.Context, feature string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lookupErr != nil {
		return false, d.lookupErr
	}
	return d.dismissed[feature], nil
}

func (d *deferredCallouts) Dismiss(_ context.Context, feature string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dismissed[feature] = true
	d.queued = append(d.queued, feature)
	return nil
}

func (d *deferredCallouts) drain() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.queued
	d.queued = nil
	return out
}
