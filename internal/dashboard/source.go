package dashboard

import "context"

// Source fetches and normalizes data from exactly one external or local
// origin. Implementations must respect the context deadline, must not mutate
// shared state, and must be safe to call again after a failure. Provider wire
// shapes never escape the implementing package.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (any, error)
}

// SourceResult is the outcome of one source invocation within a refresh run.
// Exactly one of Value and Err is meaningful.
type SourceResult struct {
	Source string
	Value  any
	Err    error
}
