package interfaces

import "context"

// Engine runs one full decision cycle across all configured symbols.
type Engine interface {
	RunCycle(ctx context.Context) error
}
