package inference

import (
	"context"
	"fmt"
)

// UnavailableClient fails every call. It stands in when the configured
// provider cannot be built so the server still starts.
type UnavailableClient struct {
	Reason string
}

func (c UnavailableClient) Complete(context.Context, Request) (Response, error) {
	return Response{}, c.err()
}

func (c UnavailableClient) CompleteStream(context.Context, Request) (<-chan StreamChunk, error) {
	return nil, c.err()
}

func (c UnavailableClient) err() error {
	if c.Reason == "" {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, c.Reason)
}
