// Package readiness blocks process startup until every dependency endpoint
// accepts TCP connections, then hands control to the main entrypoint once.
package readiness
