// Package workflow projects a job registry into a GitHub Actions workflow
// whose scheduled runs POST to the application's trigger endpoints.
//
// The output is deterministic for a given registry and config so that a
// committed workflow only changes when jobs change.
package workflow
