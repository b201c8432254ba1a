package station

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL, Username: "admin", Password: "admin"}, nil)
	return c, srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestLoginReturnsTokenAndDefaultsTokenType(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/Token", r.URL.Path)
		writeJSON(t, w, map[string]any{"access_token": "tok-1"})
	})

	tokenType, token, err := c.Login(context.Background(), "u", "p")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tokenType)
	assert.Equal(t, "tok-1", token)
}

func TestLoginUsesConfiguredCredentialsWhenArgsBlank(t *testing.T) {
	var gotUser, gotPass string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotUser, gotPass = body["username"], body["password"]
		writeJSON(t, w, map[string]any{"access_token": "tok-2"})
	})

	_, _, err := c.Login(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "admin", gotUser)
	assert.Equal(t, "admin", gotPass)
}

func TestDoSurfacesSessionExpiredOn401(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.StationState(context.Background())
	require.Error(t, err)
	var sessionErr *SessionExpiredError
	require.ErrorAs(t, err, &sessionErr)
}

func TestDoSurfacesHTTPErrorOnOtherFailureStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})

	_, err := c.StationState(context.Background())
	require.Error(t, err)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
}

func TestDoSurfacesAPIErrorOnNon200Code(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"code": 500, "msg": "internal failure"})
	})

	_, err := c.StationState(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Code)
	assert.Equal(t, "internal failure", apiErr.Message)
}

func TestStationStateParsesNumericState(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		writeJSON(t, w, map[string]any{"state": 1})
	})

	state, err := c.StationState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, state)
}

func TestDoSendsBearerHeaderWhenTokenSet(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-3", r.Header.Get("Authorization"))
		writeJSON(t, w, map[string]any{"state": 0})
	})
	c.SetToken("Bearer", "tok-3")

	_, err := c.StationState(context.Background())
	require.NoError(t, err)
}

func TestCheckTaskResourceTreatsCode1200AsSoftFail(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"code": 1200, "msg": "insufficient reagent",
			"prompt_msg": map[string]any{"resource_type": "reagent", "number": 2},
		})
	})

	result, err := c.CheckTaskResource(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 1200, result.Code)
	assert.Equal(t, "reagent", result.ResourceType)
	assert.Equal(t, 2, result.Number)
}

func TestCheckTaskResourcePropagatesOtherAPIErrorCodes(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"code": 403, "msg": "forbidden"})
	})

	_, err := c.CheckTaskResource(context.Background(), 42)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Code)
}

func TestGetResourceInfoExtractsListUnderKnownKeys(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"resource_list": []map[string]any{{"layout_code": "W-1"}},
		})
	})

	list, err := c.GetResourceInfo(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	row := list[0].(map[string]any)
	assert.Equal(t, "W-1", row["layout_code"])
}

func TestChemicalListPaginatesUntilShortPage(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			rows := make([]map[string]any, 100)
			for i := range rows {
				rows[i] = map[string]any{"fid": i + 1, "name": "x", "cas": "", "state": ""}
			}
			writeJSON(t, w, map[string]any{"result": rows})
			return
		}
		writeJSON(t, w, map[string]any{"result": []map[string]any{{"fid": 101, "name": "last"}}})
	})

	records, err := c.ChemicalList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, records, 101)
	assert.Equal(t, "last", records[100].Name)
}

func TestAddChemicalReadsBackFidOrChemicalID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"chemical_id": 7})
	})

	id, err := c.AddChemical(context.Background(), "NaOH", "1310-73-2", "solid")
	require.NoError(t, err)
	assert.Equal(t, 7, id)
}

func TestMaskSensitiveRedactsKnownKeysOnly(t *testing.T) {
	in := map[string]any{
		"username": "admin",
		"password": "hunter2",
		"nested":   map[string]any{"access_token": "abc", "ok": "fine"},
	}
	out := maskSensitive(in).(map[string]any)
	assert.Equal(t, "admin", out["username"])
	assert.Equal(t, "***", out["password"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "***", nested["access_token"])
	assert.Equal(t, "fine", nested["ok"])
}
