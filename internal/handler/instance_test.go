package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js2py-docs/internal/auth"
	"github.com/sakif/js2py-docs/internal/execution"
	"github.com/sakif/js2py-docs/internal/service"
)

func (fx *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set(auth.HeaderName, token)
	}
	rr := httptest.NewRecorder()
	fx.router.ServeHTTP(rr, req)
	return rr
}

func (fx *fixture) mount(t *testing.T, body string) service.Mounted {
	t.Helper()
	rr := fx.do(t, http.MethodPost, "/api/instances", "", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var m service.Mounted
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&m))
	return m
}

func TestInstanceHandler_Lifecycle(t *testing.T) {
	fx := newFixture(t)

	m := fx.mount(t, `{"document":"basics/loops","block":0}`)
	require.NotNil(t, m.Block)
	assert.Equal(t, "Counting", m.Block.Title)
	assert.True(t, m.Block.Compare)
	id := "/api/instances/" + m.Instance.ID

	rr := fx.do(t, http.MethodPost, id+"/run", m.Token, `{"language":"javascript"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out service.RunOutcome
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	assert.Equal(t, execution.RunCompleted, out.Status)
	assert.Equal(t, "0\n1\n2", out.Instance.Result.Output)

	rr = fx.do(t, http.MethodPut, id+"/source", m.Token, `{"language":"python","text":"print(42)"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = fx.do(t, http.MethodPost, id+"/run", m.Token, `{"language":"python"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	assert.Equal(t, "py: print(42)\n", out.Instance.Result.Output)
	assert.Equal(t, execution.StateDone, out.Instance.State)

	rr = fx.do(t, http.MethodGet, id, m.Token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var snap execution.Snapshot
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&snap))
	assert.Equal(t, "print(42)", snap.Python)

	rr = fx.do(t, http.MethodDelete, id, m.Token, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = fx.do(t, http.MethodGet, id, m.Token, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInstanceHandler_TokenChecks(t *testing.T) {
	fx := newFixture(t)
	a := fx.mount(t, `{"python":"x"}`)
	b := fx.mount(t, `{"python":"y"}`)

	rr := fx.do(t, http.MethodGet, "/api/instances/"+a.Instance.ID, "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = fx.do(t, http.MethodGet, "/api/instances/"+a.Instance.ID, b.Token, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = fx.do(t, http.MethodGet, "/api/instances/"+a.Instance.ID, "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestInstanceHandler_Errors(t *testing.T) {
	fx := newFixture(t)

	rr := fx.do(t, http.MethodPost, "/api/instances", "", `{"document":"basics/loops","block":3}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = fx.do(t, http.MethodPost, "/api/instances", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	m := fx.mount(t, `{}`)
	rr = fx.do(t, http.MethodPost, "/api/instances/"+m.Instance.ID+"/run", m.Token, `{"language":"ruby"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = fx.do(t, http.MethodPost, "/api/instances/"+m.Instance.ID+"/run", m.Token, `{"language":"python"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"skipped"`)
}

func TestExecute_ThroughRouter(t *testing.T) {
	fx := newFixture(t)

	rr := fx.do(t, http.MethodPost, "/api/execute", "", `{"language":"python","code":"raise"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var res struct {
		Status string `json:"status"`
		Result struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, "completed", res.Status)
	assert.False(t, res.Result.OK)
	assert.Contains(t, res.Result.Error, "RuntimeError")
}
