// Package dedup holds the caches used to suppress duplicate webhook
// deliveries. They are advisory: an in-memory cache only covers one process
// and every entry expires after the configured window.
package dedup

import "time"

// DefaultWindow is how long a processed id is remembered.
const DefaultWindow = 60 * time.Second
