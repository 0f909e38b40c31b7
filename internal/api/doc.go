// Package api contains the HTTP handlers for the administrative and
// intake surface of the extraction pipeline: manual task retry, async
// extraction jobs, inbound webhook callbacks and the outbox admin
// endpoints. Handlers depend on narrow service interfaces and map
// service errors to sanitized responses.
package api
