// Package cronjob is the job registry and dispatch engine behind cronhook.
//
// Jobs are registered once with one or more cron schedules. An external
// scheduler (GitHub Actions, see package workflow) calls back over HTTP with
// the shared X-Cron-Secret header; a platform adapter turns that call into a
// Request and Engine.HandleRequest:
//   - checks the secret
//   - looks the job up
//   - runs its handler exactly once
//   - reports start/complete/error to the configured observers
//   - returns a Response with an HTTP-style status
//
// The engine enforces neither the advisory Timeout nor the Retry flag; both
// only shape the generated workflow.
package cronjob
