package dedupe

import "time"

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithWindow sets the re-verification window. Non-positive values are ignored.
func WithWindow(window time.Duration) Option {
	return func(c *Cache) {
		if window > 0 {
			c.policy.Window = window
		}
	}
}

// WithAnchor sets the window anchor. Unknown anchors are ignored.
func WithAnchor(anchor Anchor) Option {
	return func(c *Cache) {
		switch anchor {
		case AnchorSameDay, AnchorRolling:
			c.policy.Anchor = anchor
		}
	}
}
