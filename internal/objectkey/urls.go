package objectkey

import "strings"

// URLResolver maps stored keys to public URLs. Workspaces share a storage
// pool but may front it with their own CDN domain; in mock mode URLs are
// served from a local base path instead.
type URLResolver struct {
	// Mock disables CDN lookup and prefixes keys with LocalBase.
	Mock      bool
	LocalBase string

	// Domains maps workspace IDs to CDN domains from tenant infra config.
	Domains       map[string]string
	DefaultDomain string
}

func (r *URLResolver) URLFor(workspaceID, key string) string {
	key = strings.TrimPrefix(key, "/")
	if r.Mock {
		base := strings.TrimSuffix(r.LocalBase, "/")
		if base == "" {
			base = "/media"
		}
		return base + "/" + key
	}
	domain := r.Domains[workspaceID]
	if domain == "" {
		domain = r.DefaultDomain
	}
	return "https://" + domain + "/" + key
}
