// Package postgres contains the PostgreSQL implementations of the store
// interfaces. Claim queries use single atomic UPDATE statements with
// FOR UPDATE SKIP LOCKED subselects so concurrent workers never own the
// same row.
package postgres
