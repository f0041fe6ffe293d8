// Package api exposes the control plane over HTTP. Plan, apply, state,
// audit and workflow operations live under /v1; health and prometheus
// metrics are unversioned. Business refusals are 200 responses carrying a
// reason code, so error statuses always mean a malformed request or a
// fault.
package api
