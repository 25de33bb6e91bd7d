// Package api provides the REST client for the Warframe Market API.
//
// The client owns the pooled HTTP session for the whole pipeline: it is
// created once at startup, shared by all concurrent fetches, and released
// with Close on shutdown. Every request, including each retry, passes
// through the shared rate limiter before touching the network.
//
// Failure taxonomy:
//   - transient transport failures and upstream 429/5xx responses are
//     retried with linear backoff and surface as *ExhaustedError once
//     retries run out
//   - structurally invalid response bodies surface immediately as
//     *DecodeError and are never retried
//   - use of a released client surfaces ErrClientClosed
package api
