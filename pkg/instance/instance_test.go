package instance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDPrefersExplicitInstance(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "api-7")
	t.Setenv("DYNO", "web.1")
	require.Equal(t, "api-7", ID("api"))
}

func TestIDFallsBackToDyno(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "")
	t.Setenv("DYNO", "worker.2")
	require.Equal(t, "worker.2", ID("cron-worker"))
}

func TestIDDefaultsToServiceName(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "")
	t.Setenv("DYNO", "")
	t.Setenv("HOSTNAME", "")
	require.Equal(t, "cron-worker-local", ID("cron-worker"))
	require.Equal(t, "local", ID(""))
}
