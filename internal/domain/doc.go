// Package domain contains the core business entities and their state
// machines. Every status-bearing entity exposes transition methods that
// reject illegal moves, so call sites cannot put an entity into an
// inconsistent state.
package domain
