package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestConfigFromEnv(t *testing.T) {
	cfg := ConfigFromEnv("fcgsalesd", "dev", envOf(nil))
	require.False(t, cfg.Enabled())
	require.Empty(t, cfg.Headers)

	cfg = ConfigFromEnv("fcgsalesd", "prod", envOf(map[string]string{
		envEndpoint: " http://collector:4318 ",
		envHeaders:  "x-tenant=sales, authorization = Bearer abc ,=skip,novalue",
		envInsecure: "false",
	}))
	require.True(t, cfg.Enabled())
	require.True(t, cfg.Traces)
	require.True(t, cfg.Metrics)
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.False(t, cfg.Insecure)
	require.Equal(t, map[string]string{"x-tenant": "sales", "authorization": "Bearer abc"}, cfg.Headers)

	cfg = ConfigFromEnv("fcgsalesd", "", envOf(map[string]string{envEndpoint: "collector:4318", envInsecure: "maybe"}))
	require.True(t, cfg.Insecure)
}

func TestInitWithoutEndpoint(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.ErrorIs(t, err, errNoServiceName)

	shutdown, err := Init(context.Background(), Config{ServiceName: "fcgsalesd", Traces: true})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
