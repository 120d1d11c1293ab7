// Package aggregates implements the receipt lifecycle and inventory
// reconciliation write boundaries on top of the table repos in
// internal/data/repos. Every write runs inside one transaction owned by the
// aggregate and reports a coded error from internal/domain/aggregates.
package aggregates
