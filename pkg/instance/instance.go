// Package instance names the running process in logs.
package instance

import (
	"os"

	"github.com/angelmondragon/reviewhub-backend/pkg/env"
)

// GetID returns the first of REVIEWHUB_INSTANCE_ID, DYNO or the hostname,
// falling back to kind + "-0".
func GetID(kind string) string {
	if id, ok := env.First("REVIEWHUB_INSTANCE_ID", "DYNO"); ok {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	if kind == "" {
		kind = "worker"
	}
	return kind + "-0"
}
