// Package pipeline orchestrates the notification flow: parse, suppress
// duplicates, fetch posts, dispatch webhooks, persist state and receipts.
package pipeline

import "time"

// IsFreshEvent reports whether a new-post event for a KOL should be processed.
// The upstream pushes the same notification to multiple listeners, so a KOL
// whose last post was seen within the suppression window is treated as a
// duplicate. A KOL that has never had a post observed is always fresh.
func IsFreshEvent(lastPostSeenAt *time.Time, now time.Time, window time.Duration) bool {
	if lastPostSeenAt == nil {
		return true
	}
	return now.Sub(*lastPostSeenAt) > window
}
