// Package computehook delivers at-most-once, generation-monotone attachment
// notifications to compute. Notify stores only the latest binding per shard;
// a background worker (started by Run) drains and delivers them, coalescing
// or dropping anything superseded by a higher generation before delivery.
package computehook
