// Package ssehttp serves an MCP server over the HTTP+SSE transport.
//
// A client opens GET /sse and receives an "endpoint" event naming the URL to
// post messages to, of the form /message?sessionId=<id>. Each JSON-RPC
// message the client POSTs there is queued on the session and answered with
// 202 Accepted; responses and server-initiated messages arrive on the stream
// as "message" events. The stream's session lives in a sessions.Registry for
// as long as the GET request is open.
//
// Posting without a sessionId yields 400, an unknown or closed session 404
// and a non-JSON body 415. All rejections carry {"error": "..."} bodies.
//
// The handler also serves GET / (server info), GET /healthz and, when a
// metrics collector is configured, GET /metrics. CORS is permissive.
package ssehttp
