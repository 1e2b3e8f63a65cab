package httpstatus

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	channels map[string][]string
	roles    map[string][]string
}

func (f fakeRegistry) ChannelMembers(channel string) []string { return f.channels[channel] }
func (f fakeRegistry) RoleMembers(role string) []string        { return f.roles[role] }

func TestHealthz(t *testing.T) {
	router := NewRouter(Sources{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsReportsMemberCounts(t *testing.T) {
	reg := fakeRegistry{
		channels: map[string][]string{"alpha": {"a1", "a2"}},
		roles:    map[string][]string{"worker": {"w1"}},
	}
	router := NewRouter(Sources{
		Agents:   reg,
		Channels: []string{"alpha"},
		Roles:    []string{"worker"},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 2, snap.ChannelMemberCounts["alpha"])
	assert.Equal(t, 1, snap.RoleMemberCounts["worker"])
}
