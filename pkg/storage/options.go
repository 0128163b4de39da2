package storage

type TokenCreateOptions struct {
	Labels map[string]string
}

type TokenCreateOption func(*TokenCreateOptions)

func (o *TokenCreateOptions) Apply(opts ...TokenCreateOption) {
	for _, op := range opts {
		op(o)
	}
}

// WithLabels attaches labels to the token; they are copied onto any node
// enrolled with it.
func WithLabels(labels map[string]string) TokenCreateOption {
	return func(o *TokenCreateOptions) {
		o.Labels = labels
	}
}
