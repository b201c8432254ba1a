// Package station implements the Station Client (C6): a thin net/http
// adapter over the station's JSON API. It does no business logic and no
// retry-on-401 — that is the Coordinator's (pkg/coordinator) job. Grounded
// on driver/api_client.py's ApiClient and, for transport shape, the
// teacher's pkg/runbook/github.go.
package station

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/synthline/corestation/pkg/chemical"
	"github.com/synthline/corestation/pkg/resource"
	"github.com/synthline/corestation/pkg/version"
)

// insecureTransport builds an http.RoundTripper with TLS verification
// disabled, for stations behind self-signed lab-network certificates.
func insecureTransport() http.RoundTripper {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	return base
}

// TaskStatus mirrors config/constants.py's TaskStatus IntEnum.
type TaskStatus int

const (
	TaskUnstarted TaskStatus = 0
	TaskRunning   TaskStatus = 1
	TaskCompleted TaskStatus = 2
	TaskPaused    TaskStatus = 3
	TaskFailed    TaskStatus = 4
	TaskStopped   TaskStatus = 5
	TaskPausing   TaskStatus = 6
	TaskStopping  TaskStatus = 7
	TaskWaiting   TaskStatus = 8
)

// StationState mirrors config/constants.py's StationState IntEnum.
type StationState int

const (
	StateIdle     StationState = 0
	StateRunning  StationState = 1
	StatePaused   StationState = 3
	StatePausing  StationState = 6
	StateStopping StationState = 7
	StateHolding  StationState = 10
)

// SessionExpiredError is surfaced on HTTP 401 so the Coordinator's
// ensure-session state machine can detect it via errors.As and retry once.
type SessionExpiredError struct {
	URL string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("station: session expired (401), url=%s", e.URL)
}

// HTTPError is a non-401 transport-level HTTP failure (status >= 400).
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("station: http %d, url=%s, body=%s", e.StatusCode, e.URL, e.Body)
}

// APIError is a non-200 `code` field in an otherwise well-formed JSON body.
type APIError struct {
	Code    int
	Message string
	Payload map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("station: api error code=%d msg=%q", e.Code, e.Message)
}

// Config is the connection configuration for a Client.
type Config struct {
	BaseURL   string
	Username  string
	Password  string
	Timeout   time.Duration
	VerifySSL bool
}

// Client is the station's HTTP adapter. One Client serves one station;
// concurrent callers share the token under mu, but re-login coordination
// (single-flight, 401 retry) is the Coordinator's responsibility, not
// Client's.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	logger     *slog.Logger

	mu        sync.RWMutex
	tokenType string
	token     string
}

// NewClient builds a Client from cfg. cfg.Timeout of zero uses a 15s
// default; cfg.VerifySSL=false disables TLS certificate verification (for
// lab networks with self-signed station certificates).
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := http.DefaultTransport
	if !cfg.VerifySSL {
		transport = insecureTransport()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		baseURL:    cfg.BaseURL,
		username:   cfg.Username,
		password:   cfg.Password,
		logger:     logger,
	}
}

// SetToken installs a bearer token directly (used by the Coordinator after
// Login, or to restore a cached session).
func (c *Client) SetToken(tokenType, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenType = tokenType
	c.token = token
}

// ClearToken drops the cached token, forcing the next request to fail with
// a SessionExpiredError (or requiring an explicit Login first).
func (c *Client) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenType = ""
	c.token = ""
}

func (c *Client) authHeader() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return ""
	}
	tokenType := c.tokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + c.token
}

// maskSensitive recursively replaces password/access_token/authorization
// values with "***" for debug logging, grounded directly on
// ApiClient._mask_sensitive. It is deliberately narrow — the teacher's
// pkg/masking.Masker targets regex content scanning across arbitrary log
// lines, a different shape of problem than redacting known JSON keys.
func maskSensitive(v any) any {
	switch t := v.(type) {
	case map[string]any:
		masked := make(map[string]any, len(t))
		for k, val := range t {
			switch lowerASCII(k) {
			case "password", "access_token", "authorization":
				masked[k] = "***"
			default:
				masked[k] = maskSensitive(val)
			}
		}
		return masked
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = maskSensitive(x)
		}
		return out
	default:
		return v
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func maskedJSON(v any) string {
	m := maskSensitive(toAnyMap(v))
	b, err := json.Marshal(m)
	if err != nil {
		return "<unmarshalable>"
	}
	return string(b)
}

// toAnyMap round-trips v through JSON so maskSensitive can walk a plain
// map[string]any/[]any tree regardless of v's concrete Go type.
func toAnyMap(v any) any {
	if v == nil {
		return map[string]any{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// do issues one HTTP request and decodes the JSON response, surfacing
// typed faults for 401, other >=400 statuses, and a non-200 `code` field.
// Grounded on ApiClient._request.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (map[string]any, error) {
	fullURL := c.baseURL
	if len(fullURL) > 0 && fullURL[len(fullURL)-1] == '/' {
		fullURL = fullURL[:len(fullURL)-1]
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	fullURL += path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("station: marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("station: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())
	if auth := c.authHeader(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	c.logger.Debug("station http request", "method", method, "url", fullURL, "body", maskedJSON(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("station: request %s %s: %w", method, fullURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("station: read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &SessionExpiredError{URL: fullURL}
	}
	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: fullURL, Body: string(raw)}
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		// Non-object responses (bare arrays, scalars) are wrapped, same as
		// ApiClient._request's `{"result": data}` fallback.
		var decoded any
		if err2 := json.Unmarshal(raw, &decoded); err2 != nil {
			return nil, fmt.Errorf("station: response not JSON, url=%s, body=%s: %w", fullURL, string(raw), err)
		}
		return map[string]any{"result": decoded}, nil
	}

	c.logger.Debug("station http response", "url", fullURL, "body", maskedJSON(data))

	if codeVal, ok := data["code"]; ok {
		code, ok := asInt(codeVal)
		if ok && code != 200 {
			msg, _ := data["msg"].(string)
			return nil, &APIError{Code: code, Message: msg, Payload: data}
		}
	}
	return data, nil
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// Login authenticates and returns (token_type, access_token). It does not
// install the token on the Client — callers (normally the Coordinator's
// ensure-session) decide when to call SetToken. Empty username/password
// fall back to the credentials the Client was constructed with, so the
// Coordinator's re-auth retry can call Login(ctx, "", "") without holding
// onto the original call's arguments.
func (c *Client) Login(ctx context.Context, username, password string) (tokenType, token string, err error) {
	if username == "" {
		username = c.username
	}
	if password == "" {
		password = c.password
	}
	if username == "" || password == "" {
		return "", "", fmt.Errorf("station: login: no credentials configured")
	}
	data, err := c.do(ctx, http.MethodPost, "/api/Token", nil, map[string]any{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", "", err
	}
	at, _ := data["access_token"].(string)
	if at == "" {
		return "", "", fmt.Errorf("station: login response missing access_token")
	}
	tt, _ := data["token_type"].(string)
	if tt == "" {
		tt = "Bearer"
	}
	return tt, at, nil
}

// StationState returns the station's current integer status code.
func (c *Client) StationState(ctx context.Context) (StationState, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/station/state", nil, nil)
	if err != nil {
		return 0, err
	}
	v, ok := data["state"]
	if !ok {
		v = data["result"]
	}
	n, ok := asInt(v)
	if !ok {
		return 0, fmt.Errorf("station: station_state response missing numeric state: %v", data)
	}
	return StationState(n), nil
}

// DeviceInit triggers station initialization. An empty deviceIDs initializes
// the whole station.
func (c *Client) DeviceInit(ctx context.Context, deviceIDs []string) error {
	body := map[string]any{}
	if len(deviceIDs) > 0 {
		body["device_id"] = deviceIDs
	}
	_, err := c.do(ctx, http.MethodPost, "/api/DeviceInit", nil, body)
	return err
}

// GetResourceInfo returns the raw resource list, unaggregated — per the
// method table's literal contract. Aggregation into analysis/display rows
// is pkg/coordinator's job (it mirrors two different Python helpers with
// two different field-priority orders; folding them into the transport
// layer would conflate them).
func (c *Client) GetResourceInfo(ctx context.Context, filters map[string]any) ([]any, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/GetResourceInfo", nil, filters)
	if err != nil {
		return nil, err
	}
	return extractList(data)
}

func extractList(data map[string]any) ([]any, error) {
	for _, key := range []string{"resource_list", "data", "list", "result"} {
		if v, ok := data[key]; ok {
			if list, ok := v.([]any); ok {
				return list, nil
			}
		}
	}
	return nil, nil
}

// InTray loads a single tray's resources.
func (c *Client) InTray(ctx context.Context, trayQRCode string, resourceList []map[string]any) error {
	_, err := c.do(ctx, http.MethodPost, "/api/InTray", nil, map[string]any{
		"tray_QR_code":  trayQRCode,
		"resource_list": resourceList,
	})
	return err
}

// BatchInTray loads resources across multiple trays in one call.
func (c *Client) BatchInTray(ctx context.Context, resourceReqList []map[string]any) error {
	_, err := c.do(ctx, http.MethodPost, "/api/BatchInTray", nil, map[string]any{
		"resource_req_list": resourceReqList,
	})
	return err
}

// BatchOutTray discharges the given layout entries using moveType (e.g.
// "main_out").
func (c *Client) BatchOutTray(ctx context.Context, layoutList []map[string]any, moveType string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/BatchOutTray", nil, map[string]any{
		"layout_list": layoutList,
		"move_type":   moveType,
	})
	return err
}

// GloveboxEnv reads the glovebox environment via the device-runtime
// endpoint for device code "352" (the glovebox module), the way
// get_glovebox_env builds on batch_list_device_runtimes internally.
type GloveboxEnv struct {
	PressurePa float64
	O2PPM      float64
	H2OPPM     float64
}

func (c *Client) GloveboxEnv(ctx context.Context) (GloveboxEnv, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/BatchListDeviceRuntimes", nil, map[string]any{
		"device_code_list": []string{"352"},
	})
	if err != nil {
		return GloveboxEnv{}, err
	}
	list, _ := extractList(data)
	var env GloveboxEnv
	for _, item := range list {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if p, ok := row["pressure"]; ok {
			f, _ := asFloat(p)
			env.PressurePa = f
		}
		if o2, ok := row["o2_ppm"]; ok {
			f, _ := asFloat(o2)
			env.O2PPM = f
		}
		if h2o, ok := row["h2o_ppm"]; ok {
			f, _ := asFloat(h2o)
			env.H2OPPM = f
		}
	}
	return env, nil
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// ChemicalList implements pkg/chemical.StationClient.
func (c *Client) ChemicalList(ctx context.Context) ([]chemical.StationRecord, error) {
	var out []chemical.StationRecord
	offset := 0
	const pageSize = 100
	for {
		data, err := c.do(ctx, http.MethodGet, "/api/v1/knowledge/getChemicalList", url.Values{
			"sort":   {"desc"},
			"offset": {strconv.Itoa(offset)},
			"limit":  {strconv.Itoa(pageSize)},
		}, nil)
		if err != nil {
			return nil, err
		}
		list, _ := extractList(data)
		if len(list) == 0 {
			break
		}
		for _, item := range list {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}
			fid, _ := asInt(row["fid"])
			name, _ := row["name"].(string)
			cas, _ := row["cas"].(string)
			state, _ := row["state"].(string)
			out = append(out, chemical.StationRecord{StationID: fid, Name: name, CAS: cas, State: state})
		}
		if len(list) < pageSize {
			break
		}
		offset += pageSize
	}
	return out, nil
}

// AddChemical satisfies pkg/chemical.StationClient.
func (c *Client) AddChemical(ctx context.Context, name, cas, state string) (int, error) {
	payload := map[string]any{"name": name}
	if cas != "" {
		payload["cas"] = cas
	}
	if state != "" {
		payload["state"] = state
	}
	data, err := c.do(ctx, http.MethodPost, "/api/v1/knowledge/addChemical", nil, payload)
	if err != nil {
		return 0, err
	}
	fid, ok := asInt(data["fid"])
	if !ok {
		fid, _ = asInt(data["chemical_id"])
	}
	return fid, nil
}

// UpdateChemical satisfies pkg/chemical.StationClient.
func (c *Client) UpdateChemical(ctx context.Context, stationID int, name, cas, state string) error {
	payload := map[string]any{"fid": stationID, "name": name}
	if cas != "" {
		payload["cas"] = cas
	}
	if state != "" {
		payload["state"] = state
	}
	_, err := c.do(ctx, http.MethodPost, "/api/v1/knowledge/updateChemical", nil, payload)
	return err
}

// DeleteChemical satisfies pkg/chemical.StationClient.
func (c *Client) DeleteChemical(ctx context.Context, stationID int) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/knowledge/deleteChemical", url.Values{
		"chemical_id": {strconv.Itoa(stationID)},
	}, nil)
	return err
}

// AddTask creates a task from a built payload, returning its station task
// id. A 409 is a duplicate-name conflict, surfaced as *APIError.
func (c *Client) AddTask(ctx context.Context, payload map[string]any) (taskID int, err error) {
	data, err := c.do(ctx, http.MethodPost, "/api/AddTask", nil, payload)
	if err != nil {
		return 0, err
	}
	id, _ := asInt(data["task_id"])
	return id, nil
}

// StartTask starts a previously submitted task. A station-side code 1200
// means insufficient resources.
func (c *Client) StartTask(ctx context.Context, taskID int) error {
	_, err := c.do(ctx, http.MethodPost, "/api/StartTask", nil, map[string]any{"task_id": taskID})
	return err
}

// StopTask pauses a running task.
func (c *Client) StopTask(ctx context.Context, taskID int) error {
	_, err := c.do(ctx, http.MethodPost, "/api/StopTask", nil, map[string]any{"task_id": taskID})
	return err
}

// CancelTask cancels a task.
func (c *Client) CancelTask(ctx context.Context, taskID int) error {
	_, err := c.do(ctx, http.MethodPost, "/api/CancelTask", nil, map[string]any{"task_id": taskID})
	return err
}

// DeleteTask deletes a task record.
func (c *Client) DeleteTask(ctx context.Context, taskID int) error {
	_, err := c.do(ctx, http.MethodPost, "/api/DeleteTask", nil, map[string]any{"task_id": taskID})
	return err
}

// TaskInfo is a task's current status snapshot.
type TaskInfo struct {
	TaskID int
	Status TaskStatus
	Raw    map[string]any
}

// GetTaskInfo reads one task's status.
func (c *Client) GetTaskInfo(ctx context.Context, taskID int) (TaskInfo, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/GetTaskInfo", nil, map[string]any{"task_id": taskID})
	if err != nil {
		return TaskInfo{}, err
	}
	status, _ := asInt(data["status"])
	return TaskInfo{TaskID: taskID, Status: TaskStatus(status), Raw: data}, nil
}

// GetTaskOpInfo returns a task's step-trace (done/running units), left as
// raw JSON for the Coordinator to flatten into progress-delta strings.
func (c *Client) GetTaskOpInfo(ctx context.Context, taskID int) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, "/api/GetTaskOpInfo", nil, map[string]any{"task_id": taskID})
}

// TaskListQuery is the paging/filter input to GetTaskList.
type TaskListQuery struct {
	Sort   string
	Offset int
	Limit  int
	Status *TaskStatus
}

// GetTaskList lists tasks matching the query.
func (c *Client) GetTaskList(ctx context.Context, q TaskListQuery) ([]map[string]any, int, error) {
	body := map[string]any{}
	if q.Sort != "" {
		body["sort"] = q.Sort
	}
	if q.Offset != 0 {
		body["offset"] = q.Offset
	}
	if q.Limit != 0 {
		body["limit"] = q.Limit
	}
	if q.Status != nil {
		body["status"] = int(*q.Status)
	}
	data, err := c.do(ctx, http.MethodPost, "/api/GetTaskList", nil, body)
	if err != nil {
		return nil, 0, err
	}
	list, _ := extractList(data)
	items := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if row, ok := item.(map[string]any); ok {
			items = append(items, row)
		}
	}
	total, _ := asInt(data["total"])
	return items, total, nil
}

// CheckTaskResource satisfies pkg/resource.StationChecker. A station-side
// code 1200 is a soft-fail (insufficient resources, not a transport
// error) and is returned as a CheckResult rather than an error, per
// check_task_resource's own try/except ApiError handling.
func (c *Client) CheckTaskResource(ctx context.Context, taskID int) (resource.CheckResult, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/CheckTaskResource", nil, map[string]any{"task_id": taskID})
	if err != nil {
		var apiErr *APIError
		if ok := asAPIError(err, &apiErr); ok && apiErr.Code == 1200 {
			msg, _ := apiErr.Payload["msg"].(string)
			resourceType, number := promptMsgFields(apiErr.Payload)
			return resource.CheckResult{Code: 1200, Message: msg, ResourceType: resourceType, Number: number}, nil
		}
		return resource.CheckResult{}, err
	}
	code, _ := asInt(data["code"])
	msg, _ := data["msg"].(string)
	resourceType, number := promptMsgFields(data)
	return resource.CheckResult{Code: code, Message: msg, ResourceType: resourceType, Number: number}, nil
}

// promptMsgFields extracts resource_type/number from the nested
// prompt_msg sub-object check_task_resource responses carry them in, per
// station_controller.py:3886-3888 (`prompt_msg = check_result.get("prompt_msg",
// {}); resource_type = prompt_msg.get("resource_type", ...)`) — they are
// never top-level fields of the response/error payload.
func promptMsgFields(payload map[string]any) (resourceType string, number int) {
	promptMsg, _ := payload["prompt_msg"].(map[string]any)
	if promptMsg == nil {
		return "", 0
	}
	resourceType, _ = promptMsg["resource_type"].(string)
	number, _ = asInt(promptMsg["number"])
	return resourceType, number
}

func asAPIError(err error, target **APIError) bool {
	ae, ok := err.(*APIError)
	if ok {
		*target = ae
	}
	return ok
}

// SingleControlW1Shelf drives one W-1 shelf's home/outside motion. num is
// 1 (controls W-1-1/W-1-2), 3 (W-1-3/W-1-4), 5 (W-1-5/W-1-6) or 7
// (W-1-7/W-1-8).
func (c *Client) SingleControlW1Shelf(ctx context.Context, station, action string, num int) error {
	q := url.Values{"station": {station}}
	_, err := c.do(ctx, http.MethodPost, "/api/SingleControlW1Shelf", q, map[string]any{
		"action": action,
		"op":     action,
		"num":    num,
	})
	return err
}
