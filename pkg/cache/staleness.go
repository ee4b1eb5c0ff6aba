package cache

import "time"

// FreshFor is how long a fetched entity or list is trusted before it is fetched again.
const FreshFor = 5 * time.Minute

// expired is strict: an entry exactly FreshFor old is still fresh.
func expired(lastUpdated, now time.Time) bool {
	return now.Sub(lastUpdated) > FreshFor
}
