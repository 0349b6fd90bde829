// Package wellknown holds documents served under /.well-known/.
package wellknown

import "net/http"

// ProtectedResourcePath is where ProtectedResourceMetadata is served.
const ProtectedResourcePath = "/.well-known/oauth-protected-resource"

// ProtectedResourceMetadata tells OAuth clients which authorization servers
// issue tokens for this server (RFC 9728).
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
}

// MetadataURL returns the absolute metadata URL as seen by the client that
// sent r.
func MetadataURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd == "http" || fwd == "https" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + ProtectedResourcePath
}
