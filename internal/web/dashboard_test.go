package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDashboardHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	DashboardHandler("/events")(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `location.host + "/events"`)
	assert.NotContains(t, rec.Body.String(), "{{WS_PATH}}")
}
