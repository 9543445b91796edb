package transport

// NewFactory returns the default Factory: plain TCP when secure is false,
// TLS-over-TCP when true. Matches spec.md's "factory bound to the reactor"
// lifetime note — one factory call per Client construction.
func NewFactory(logf func(string, ...any)) Factory {
	return func(reactor *Reactor, secure bool, opts Options) Transport {
		if secure {
			return NewTLS(reactor, opts, logf)
		}
		return NewTCP(reactor, opts, logf)
	}
}
