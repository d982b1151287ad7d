// Package dag provides the dependency graph underlying the stage executor:
// a small, concurrency-safe directed acyclic graph keyed by string IDs, with
// cycle detection and dependency/dependent queries.
package dag
