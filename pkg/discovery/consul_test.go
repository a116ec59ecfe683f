package discovery

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConsulRegistry_RegisterAndDeregister(t *testing.T) {
	var (
		registered   api.AgentServiceRegistration
		deregistered string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/agent/service/register":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
		case strings.HasPrefix(r.URL.Path, "/v1/agent/service/deregister/"):
			deregistered = strings.TrimPrefix(r.URL.Path, "/v1/agent/service/deregister/")
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("HOST_IP", "10.0.0.7")
	reg, err := NewServiceRegistration("dashboard-service", 8080)
	require.NoError(t, err)

	registry, err := NewConsulRegistry(&ConsulConfig{
		Address: strings.TrimPrefix(srv.URL, "http://"),
		Tags:    []string{"opsdashboard"},
		Meta:    map[string]string{"env": "test"},
	}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, registry.Register(reg))
	assert.Equal(t, reg.ID, registered.ID)
	assert.Equal(t, "10.0.0.7", registered.Address)
	assert.Equal(t, []string{"opsdashboard", "http"}, registered.Tags)
	assert.Equal(t, "test", registered.Meta["env"])
	require.NotNil(t, registered.Check)
	assert.Equal(t, "http://10.0.0.7:8080/health", registered.Check.HTTP)

	require.NoError(t, registry.Deregister(reg.ID))
	assert.Equal(t, reg.ID, deregistered)
}
