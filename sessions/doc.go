// Package sessions tracks the transport sessions open against this server.
//
// Two layers exist:
//
//	Registry  -> process-local index of live sessions, keyed by id
//	Directory -> shared record of which sessions exist and where they live
//
// The Registry is what the HTTP+SSE transport consults when a client posts a
// message: the session id in the query string must name a session whose
// event stream is currently open in this process. Sessions are inserted when
// their stream opens and removed when it closes. All operations are safe for
// concurrent use.
//
// A Directory outlives any single process. Entries carry a TTL that the owner
// refreshes while the stream is open, so crashed instances age out. The
// transport uses it to report cluster-wide session counts and to recognize
// ids that belong to another instance.
//
// Implementations
//
//	MemoryDirectory : in-process, for tests and single-node deployments
//	redisdirectory  : Redis-backed, for deployments behind a load balancer
//
// directorytest provides a conformance suite shared by both.
package sessions
