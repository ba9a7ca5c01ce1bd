package instance

import (
	"os"
	"strings"
)

// ID names the running process in logs and lock owners. DYNO is set on
// Heroku, HOSTNAME inside containers.
func ID(service string) string {
	for _, key := range []string{"STOREFRONT_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if service == "" {
		return "local"
	}
	return service + "-local"
}
