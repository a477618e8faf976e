package inference

import "errors"

var (
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("inference: pool is closed")

	// ErrSessionClosed is returned by Infer after Close.
	ErrSessionClosed = errors.New("inference: session is closed")

	// ErrShape indicates input or output tensors of inconsistent size.
	ErrShape = errors.New("inference: tensor shape mismatch")
)
