// Package httptransport exposes the provisioning facade as a JSON API on gin.
// Tenants authenticate with "Authorization: Bearer <api key>".
package httptransport
