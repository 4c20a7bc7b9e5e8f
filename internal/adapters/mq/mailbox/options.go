package mailbox

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithMaxViewers caps concurrent subscriptions. Zero or negative means no cap.
func WithMaxViewers(n int) Option {
	return func(h *Hub) {
		h.maxViewers = n
	}
}

// WithOnDrop registers a callback invoked whenever an unread frame is overwritten.
func WithOnDrop(fn func()) Option {
	return func(h *Hub) {
		if fn != nil {
			h.onDrop = fn
		}
	}
}
