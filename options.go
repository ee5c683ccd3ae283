package xpg

import (
	"go.uber.org/zap"
)

type options struct {
	log *zap.Logger
}

// Option configures a [Registry], [Executor] or [Pool].
type Option func(*options)

// WithLogger sets the logger used for debug output. The default discards
// everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
