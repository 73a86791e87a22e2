// Package replica implements an in-memory storage replica: a node that
// stores matching publications with bounded version history and answers
// queries with the latest stored state. Querying subscribers reconcile
// against replicas to recover publications they were not alive to see.
package replica
