package processes

import "context"

// exclusiveLock is a mutex whose Lock gives up when the context is done.
type exclusiveLock struct {
	ch chan struct{}
}

func newExclusiveLock() *exclusiveLock {
	return &exclusiveLock{ch: make(chan struct{}, 1)}
}

func (l *exclusiveLock) Lock(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case l.ch <- struct{}{}:
	}

	// the context may have expired while the lock was being acquired
	if ctx.Err() != nil {
		l.Unlock()
		return ctx.Err()
	}
	return nil
}

func (l *exclusiveLock) Unlock() {
	select {
	case <-l.ch:
	default:
	}
}
