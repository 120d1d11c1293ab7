// Package aggregates defines the write boundaries where receipt and stock
// invariants must hold atomically, independent of how they are persisted.
package aggregates
