// Package core contains the provisioning domain: accounts and projects, the
// resource lease lifecycle, and the service that orchestrates them. Store
// backends, persistence and transports depend on this package; core must not
// depend on any of them.
package core
