// Package githubapi adapts the GitHub REST API to the run's two remote
// roles: diff source and comment poster. API failures are classified as
// transient or auth so callers can choose a retry policy.
package githubapi
