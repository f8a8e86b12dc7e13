package instance

import (
	"os"
	"strings"
)

// EnvWorkerID overrides the detected worker identity.
const EnvWorkerID = "MARGINLEDGER_WORKER_ID"

// GetID returns the worker instance identifier used as lock owner prefix.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv(EnvWorkerID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
