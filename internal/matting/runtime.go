package matting

import (
	"context"
)

// Runtime runs the matting network. Implementations must be safe for
// concurrent Infer calls once constructed.
type Runtime interface {
	Infer(ctx context.Context, input *Tensor) (*Tensor, error)
	Close() error
}

// Loader builds a Runtime for a model. It is called at most once per
// successful provisioning.
type Loader func(ctx context.Context, modelID string, opts LoadOptions) (Runtime, error)
