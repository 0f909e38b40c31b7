// Package store defines persistence interfaces and shared database
// helpers. Concrete implementations live in platform/postgres.
package store
