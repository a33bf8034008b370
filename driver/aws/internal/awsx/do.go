package awsx

import (
	"context"
)

// Do executes an AWS API request.
//
// dec is a decorator function that mutates the request before it is sent.
func Do[In, Out, Option any](
	ctx context.Context,
	fn func(context.Context, *In, ...Option) (Out, error),
	dec func(*In) []Option,
	in *In,
	options ...Option,
) (out Out, err error) {
	if dec != nil {
		options = append(options, dec(in)...)
	}

	return fn(ctx, in, options...)
}
