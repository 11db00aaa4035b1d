// Package counters keeps the set of counters registered through AddCounter
// commands.
//
// Each counter is identified twice: by a small counter id allocated by the
// registry (the lowest free value, reused after removal) and by its
// registration id, which is the correlation id of the AddCounter command that
// created it. RemoveCounter commands refer to counters by registration id.
//
// The Registry is safe for concurrent use.
package counters
