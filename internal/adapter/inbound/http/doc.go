// Package http is the inbound HTTP adapter for the portal gate.
//
// It exposes four surfaces:
//
//   - the auth endpoints (/auth/login, /auth/logout, /auth/session,
//     /auth/profile), JSON in the same envelope the EVCare backend uses
//   - the route guard on every other path, which waits, redirects, or
//     renders according to the route table and the current session
//   - the operational endpoints /healthz and /metrics
//   - the middleware chain: metrics, request ID correlation, real client
//     IP extraction, and cross-origin checks
//
// The adapter holds no business state. Sessions, route decisions, and audit
// records all live behind the service layer.
package http
