package triage

import "context"

// Store is the persistence interface for triage results.
type Store interface {
	Get(ctx context.Context, id string) (*Result, bool, error)
	Put(ctx context.Context, result *Result) error
	// Recent returns up to limit results, newest first.
	Recent(ctx context.Context, limit int) ([]*Result, error)
}

// Notifier delivers urgent results to an out-of-band channel.
type Notifier interface {
	Send(ctx context.Context, result *Result) error
}
