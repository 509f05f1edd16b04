package plugin

import (
	"go.uber.org/zap"
)

// Options configures the wrapper objects in this package.
type Options struct {
	// Logger receives diagnostics such as duplicate-reply reports. When nil,
	// DefaultOptions installs a production logger writing to stderr.
	Logger *zap.Logger
}

// DefaultOptions returns options with a stderr production logger.
func DefaultOptions() *Options {
	return &Options{
		Logger: zap.Must(zap.NewProduction()),
	}
}

// WithLogger returns options using the given logger.
func WithLogger(logger *zap.Logger) *Options {
	return &Options{
		Logger: logger,
	}
}

// normalize fills in defaults for missing fields, accepting nil.
func (o *Options) normalize() *Options {
	if o == nil {
		return DefaultOptions()
	}
	out := *o
	if out.Logger == nil {
		out.Logger = zap.Must(zap.NewProduction())
	}
	return &out
}
