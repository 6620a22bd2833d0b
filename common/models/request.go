package models

// Request is the normalized inbound request handed to the resolver
type Request struct {
	ClientUID  string
	RemoteAddr string

	// Update forces a refresh, bypassing cached artifacts
	Update bool

	// FallbackID overrides the configured fallback track for this request
	FallbackID string
}
