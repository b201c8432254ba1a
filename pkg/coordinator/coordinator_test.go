package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthline/corestation/pkg/layout"
	"github.com/synthline/corestation/pkg/resource"
	"github.com/synthline/corestation/pkg/sink"
	"github.com/synthline/corestation/pkg/station"
)

// fakeStation is an in-memory StationClient for exercising the Coordinator
// without a real station.
type fakeStation struct {
	loginCalls int
	token      string

	stationStateCalls int
	failStateOnce     bool
	state             station.StationState

	resourceInfo []any
	env          station.GloveboxEnv

	taskInfo   station.TaskInfo
	opInfo     map[string]any
	taskList   []map[string]any
	taskTotal  int

	batchOutCalls int
	lastLayout    []map[string]any
	lastMoveType  string
}

func (f *fakeStation) Login(_ context.Context, _, _ string) (string, string, error) {
	f.loginCalls++
	return "Bearer", "tok", nil
}

func (f *fakeStation) SetToken(_, token string) { f.token = token }
func (f *fakeStation) ClearToken()               { f.token = "" }

func (f *fakeStation) StationState(context.Context) (station.StationState, error) {
	f.stationStateCalls++
	if f.failStateOnce && f.stationStateCalls == 1 {
		return 0, &station.SessionExpiredError{URL: "/api/station/state"}
	}
	return f.state, nil
}

func (f *fakeStation) DeviceInit(context.Context, []string) error { return nil }

func (f *fakeStation) GetResourceInfo(context.Context, map[string]any) ([]any, error) {
	return f.resourceInfo, nil
}

func (f *fakeStation) BatchInTray(context.Context, []map[string]any) error { return nil }

func (f *fakeStation) BatchOutTray(_ context.Context, layoutList []map[string]any, moveType string) error {
	f.batchOutCalls++
	f.lastLayout = layoutList
	f.lastMoveType = moveType
	return nil
}

func (f *fakeStation) GloveboxEnv(context.Context) (station.GloveboxEnv, error) {
	return f.env, nil
}

func (f *fakeStation) AddTask(context.Context, map[string]any) (int, error) { return 55, nil }
func (f *fakeStation) StartTask(context.Context, int) error                 { return nil }

func (f *fakeStation) GetTaskInfo(context.Context, int) (station.TaskInfo, error) {
	return f.taskInfo, nil
}

func (f *fakeStation) GetTaskOpInfo(context.Context, int) (map[string]any, error) {
	return f.opInfo, nil
}

func (f *fakeStation) GetTaskList(context.Context, station.TaskListQuery) ([]map[string]any, int, error) {
	return f.taskList, f.taskTotal, nil
}

func (f *fakeStation) SingleControlW1Shelf(context.Context, string, string, int) error { return nil }

func (f *fakeStation) CheckTaskResource(context.Context, int) (resource.CheckResult, error) {
	return resource.CheckResult{Code: 200}, nil
}

type fakeNotifier struct {
	calls int
	err   error
}

func (n *fakeNotifier) Notify(context.Context, Event) error {
	n.calls++
	return n.err
}

func newTestCoordinator(t *testing.T, fs *fakeStation, notifier Notifier) (*Coordinator, *sink.FileSink) {
	t.Helper()
	s, err := sink.NewFileSink(t.TempDir(), nil)
	require.NoError(t, err)
	return New(fs, s, notifier, "admin", "admin", nil), s
}

func TestWithSessionRetriesOnceAfterSessionExpiry(t *testing.T) {
	fs := &fakeStation{failStateOnce: true, state: station.StateIdle}
	c, _ := newTestCoordinator(t, fs, nil)

	state, err := func() (station.StationState, error) {
		var st station.StationState
		err := c.withSession(context.Background(), func() error {
			var innerErr error
			st, innerErr = fs.StationState(context.Background())
			return innerErr
		})
		return st, err
	}()

	require.NoError(t, err)
	assert.Equal(t, station.StateIdle, state)
	assert.Equal(t, 2, fs.stationStateCalls)
	assert.Equal(t, 2, fs.loginCalls, "initial ensureSession login plus one re-login after expiry")
}

func TestWithSessionPropagatesNonSessionErrors(t *testing.T) {
	fs := &fakeStation{state: station.StateIdle}
	c, _ := newTestCoordinator(t, fs, nil)

	boom := errors.New("boom")
	err := c.withSession(context.Background(), func() error {
		return boom
	})
	require.Error(t, err)
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, fs.loginCalls)
}

func TestWaitIdleReturnsOnIdleState(t *testing.T) {
	fs := &fakeStation{state: station.StateIdle}
	c, _ := newTestCoordinator(t, fs, nil)

	err := c.WaitIdle(context.Background(), "test-stage", time.Millisecond, time.Second)
	require.NoError(t, err)
}

func TestWaitIdleTimesOutWhenNeverIdle(t *testing.T) {
	fs := &fakeStation{state: station.StateRunning}
	c, _ := newTestCoordinator(t, fs, nil)

	err := c.WaitIdle(context.Background(), "test-stage", time.Millisecond, 5*time.Millisecond)
	require.Error(t, err)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "test-stage", timeoutErr.Stage)
}

func TestDischargeRoutesOntoFixedRingAndExcludesAirlock(t *testing.T) {
	fs := &fakeStation{state: station.StateIdle}
	c, s := newTestCoordinator(t, fs, nil)
	taskID := 7

	err := c.Discharge(context.Background(), DischargeTaskAndEmpties, &taskID,
		[]string{"T-1-1", "MSB-1-1", "T-1-2"})
	require.NoError(t, err)

	assert.Equal(t, 1, fs.batchOutCalls)
	require.Len(t, fs.lastLayout, 2, "airlock-prefixed code must be excluded")
	assert.Equal(t, "TB-2-1", fs.lastLayout[0]["destination"])
	assert.Equal(t, "TB-2-2", fs.lastLayout[1]["destination"])
	assert.Equal(t, "main_out", fs.lastMoveType)

	_ = s // sink write already asserted via FileExists in pkg/sink tests
}

func TestDischargeEmptiesOnlyUsesEmptyOutMoveType(t *testing.T) {
	fs := &fakeStation{state: station.StateIdle}
	c, _ := newTestCoordinator(t, fs, nil)

	err := c.Discharge(context.Background(), DischargeEmptiesOnly, nil, []string{"T-2-1"})
	require.NoError(t, err)
	assert.Equal(t, "empty_out", fs.lastMoveType)
}

func TestWaitWithProgressNotifiesOnTerminalStatusBestEffort(t *testing.T) {
	fs := &fakeStation{
		state:    station.StateIdle,
		taskInfo: station.TaskInfo{TaskID: 3, Status: station.TaskCompleted},
		opInfo: map[string]any{
			"done_units": []any{
				map[string]any{"unit_id": "u1", "action": "pipette", "target": "W-1-1"},
			},
		},
	}
	notifier := &fakeNotifier{err: errors.New("slack unreachable")}
	c, _ := newTestCoordinator(t, fs, notifier)

	taskID := 3
	var steps []string
	info, err := c.WaitWithProgress(context.Background(), &taskID, time.Millisecond, func(s string) {
		steps = append(steps, s)
	})

	require.NoError(t, err, "notifier failure must not surface as a Coordinator error")
	assert.Equal(t, station.TaskCompleted, info.Status)
	assert.Equal(t, 1, notifier.calls)
	require.Len(t, steps, 1)
	assert.Equal(t, "u1: pipette → W-1-1", steps[0])
}

func TestWaitWithProgressEmitsOnlyNewSteps(t *testing.T) {
	fs := &fakeStation{
		state: station.StateIdle,
		opInfo: map[string]any{
			"running_units": []any{
				map[string]any{"unit_id": "u1", "action": "heat", "target": "R-1-1"},
			},
		},
	}
	c, _ := newTestCoordinator(t, fs, nil)

	first := c.newSteps(9, fs.opInfo)
	second := c.newSteps(9, fs.opInfo)
	assert.Len(t, first, 1)
	assert.Empty(t, second, "already-seen step must not repeat")
}

func TestStartTaskRejectsWhenStationNotIdle(t *testing.T) {
	fs := &fakeStation{state: station.StateRunning}
	c, _ := newTestCoordinator(t, fs, nil)

	_, err := c.StartTask(context.Background(), nil, StartTaskOptions{})
	require.Error(t, err)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestStartTaskSucceedsWhenEnvWithinLimits(t *testing.T) {
	fs := &fakeStation{state: station.StateIdle, env: station.GloveboxEnv{H2OPPM: 1, O2PPM: 1}}
	c, _ := newTestCoordinator(t, fs, nil)

	taskID := 12
	_, err := c.StartTask(context.Background(), &taskID, StartTaskOptions{CheckEnv: true, WaterLimit: 5, O2Limit: 100})
	require.NoError(t, err)
}

func TestStartTaskRejectsOnEnvLimitExceeded(t *testing.T) {
	fs := &fakeStation{state: station.StateIdle, env: station.GloveboxEnv{H2OPPM: 10, O2PPM: 1}}
	c, _ := newTestCoordinator(t, fs, nil)

	taskID := 12
	_, err := c.StartTask(context.Background(), &taskID, StartTaskOptions{CheckEnv: true, WaterLimit: 5, O2Limit: 100})
	require.Error(t, err)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "h2o_ppm", valErr.Field)
}

func TestAggregateResourceInfoGroupsByLayoutAndClassifies(t *testing.T) {
	raw := []any{
		map[string]any{"layout_code": "T-1", "tray_code": float64(layout.TestTubeMagnetTray2ML), "count": float64(4)},
		map[string]any{
			"layout_code": "W-1-1", "tray_code": float64(layout.ReagentBottleTray125ML),
			"slot": float64(0), "well": "A1", "substance": "NaOH",
			"available_weight": "120mg",
		},
	}
	rows := aggregateResourceInfo(raw)
	require.Len(t, rows, 2)

	var tRow, wRow *resource.InventoryRow
	for i := range rows {
		switch rows[i].LayoutCode {
		case "T-1":
			tRow = &rows[i]
		case "W-1-1":
			wRow = &rows[i]
		}
	}
	require.NotNil(t, tRow)
	require.NotNil(t, wRow)
	assert.Equal(t, 4, tRow.Count)
	require.Len(t, wRow.Details, 1)
	assert.Equal(t, "NaOH", wRow.Details[0].Substance)
	assert.Equal(t, "120mg", wRow.Details[0].AvailableWeight)
}
