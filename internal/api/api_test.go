package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grussorusso/offloadledge/internal/bus"
	"github.com/grussorusso/offloadledge/internal/codecache"
	"github.com/grussorusso/offloadledge/internal/engine"
	"github.com/grussorusso/offloadledge/internal/procedure"
)

func newTestServer(t *testing.T) (*echo.Echo, *Server) {
	units, err := codecache.Open(codecache.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { units.Close() })

	procs := procedure.NewRegistry(bus.NewLocalBus(), nil)
	s := NewServer(units, procs, func() string { return "session-1" })
	e := echo.New()
	s.Routes(e)
	return e, s
}

func serve(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestInvokeProcedure(t *testing.T) {
	e, s := newTestServer(t)
	_, err := s.Procedures.Register(context.Background(), "compute", "Compute",
		func(ctx context.Context, resourceName, input string) (*engine.Result, error) {
			return &engine.Result{Success: true, Output: resourceName + ":" + input, Duration: 0.3}, nil
		})
	require.NoError(t, err)

	rec := serve(e, http.MethodPost, "/invoke/compute", `{"ResourceName":"r.txt","Input":"7"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp InvocationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "r.txt:7", resp.Output)
	assert.Equal(t, 0.3, resp.Duration)

	rec = serve(e, http.MethodGet, "/procedures", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ProcedureInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Compute", list[0].ClassID)
	assert.Equal(t, int64(1), list[0].Calls)
}

func TestInvokeUnknownProcedure(t *testing.T) {
	e, _ := newTestServer(t)
	rec := serve(e, http.MethodPost, "/invoke/nope", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvokeBadBody(t *testing.T) {
	e, _ := newTestServer(t)
	rec := serve(e, http.MethodPost, "/invoke/compute", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndUnits(t *testing.T) {
	e, s := newTestServer(t)
	_, err := s.Units.Store("Foo", "public class Foo {}")
	require.NoError(t, err)

	rec := serve(e, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusInformation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "session-1", status.Session)
	assert.Equal(t, 1, status.Units)
	assert.Equal(t, 0, status.Procedures)

	rec = serve(e, http.MethodGet, "/units", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var units []codecache.Unit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &units))
	require.Len(t, units, 1)
	assert.Equal(t, "Foo", units[0].ClassID)
}
