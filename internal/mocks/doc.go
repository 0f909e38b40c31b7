// Package mocks provides in-memory fakes for the store and platform
// interfaces. The fakes honor the same claim and ordering semantics as
// the Postgres implementations so service tests exercise real pipeline
// behavior without a database.
package mocks
