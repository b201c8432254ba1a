// Package coordinator implements the Run-Time Coordinator (C7): the single
// owner of station session state, task lifecycle, resource-discharge
// sequencing, and progress fan-out. It is the only layer allowed to retry a
// station call after a 401 — pkg/station itself never retries, per
// station_controller.py's own split between ApiClient (thin transport) and
// StationController (session/retry/orchestration). Grounded throughout on
// station_controller.py's corresponding methods and, for the single-flight
// re-auth shape, the teacher's pkg/mcp/client.go reinitMu pattern.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/synthline/corestation/pkg/layout"
	"github.com/synthline/corestation/pkg/resource"
	"github.com/synthline/corestation/pkg/sink"
	"github.com/synthline/corestation/pkg/station"
)

// StationClient is the narrow set of pkg/station.Client methods the
// Coordinator depends on. *station.Client satisfies this directly: every
// return type here is the producing package's own named type (station.*,
// resource.CheckResult), not a locally redeclared lookalike, per this
// repo's direct-type-reuse convention (see pkg/station's CheckTaskResource
// and ChemicalList).
type StationClient interface {
	Login(ctx context.Context, username, password string) (tokenType, token string, err error)
	SetToken(tokenType, token string)
	ClearToken()

	StationState(ctx context.Context) (station.StationState, error)
	DeviceInit(ctx context.Context, deviceIDs []string) error
	GetResourceInfo(ctx context.Context, filters map[string]any) ([]any, error)
	BatchInTray(ctx context.Context, resourceReqList []map[string]any) error
	BatchOutTray(ctx context.Context, layoutList []map[string]any, moveType string) error
	GloveboxEnv(ctx context.Context) (station.GloveboxEnv, error)

	AddTask(ctx context.Context, payload map[string]any) (taskID int, err error)
	StartTask(ctx context.Context, taskID int) error
	GetTaskInfo(ctx context.Context, taskID int) (station.TaskInfo, error)
	GetTaskOpInfo(ctx context.Context, taskID int) (map[string]any, error)
	GetTaskList(ctx context.Context, q station.TaskListQuery) ([]map[string]any, int, error)

	SingleControlW1Shelf(ctx context.Context, stationName, action string, num int) error
	CheckTaskResource(ctx context.Context, taskID int) (resource.CheckResult, error)
}

// Notifier is the narrow outbound-alert dependency the Coordinator reports
// terminal task outcomes to. It is defined here, not imported from a
// pkg/notify package, because notification is best-effort: a Notify
// failure is logged and never affects task Readiness or the Coordinator's
// own return value, per §8 scenario 7.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Event is one notifiable occurrence. The Coordinator raises "task_terminal"
// when a task reaches a terminal status; pkg/api raises
// "readiness_not_ready" when a readiness report comes back not ready.
type Event struct {
	Kind    string
	TaskID  *int
	Message string
	At      time.Time
}

// noopNotifier discards every event; used when the caller wires no real
// Notifier.
type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Event) error { return nil }

// discharge ring — fixed destination order, airlock zones excluded by
// construction (none of these prefixes match layout.DefaultAirlockPrefixes).
var dischargeRing = []string{
	"TB-2-1", "TB-2-2", "TB-2-3", "TB-2-4",
	"TB-1-1", "TB-1-2", "TB-1-3", "TB-1-4",
}

// w1ShelfPairs maps a W-1 tray index to the shelf-pair "num" argument
// SingleControlW1Shelf expects: num=1 covers W-1-1/W-1-2, num=3 covers
// W-1-3/W-1-4, and so on in pairs, per driver/api_client.py's
// single_control_w1_shelf.
var w1ShelfPairs = map[int]int{1: 1, 2: 1, 3: 3, 4: 3, 5: 5, 6: 5, 7: 7, 8: 7}

// consumableCodes, detailCodes and substanceCodes classify a
// layout.ResourceCode the way _format_resource_rows does: consumables are
// counted only, detail trays carry per-slot occupancy, substance trays
// carry per-slot amount fields.
var (
	consumableCodes = map[layout.ResourceCode]bool{
		layout.TestTubeMagnet2ML:      true,
		layout.ReactionSealCap:        true,
		layout.FlashFilterInnerBottle: true,
		layout.Tip1ML:                 true,
		layout.Tip5ML:                 true,
		layout.Tip50UL:                true,
	}
	detailCodes = map[layout.ResourceCode]bool{
		layout.ReactionTube2ML:        true,
		layout.FlashFilterOuterBottle: true,
	}
	substanceCodes = map[layout.ResourceCode]bool{
		layout.PowderBucket30ML:   true,
		layout.ReagentBottle2ML:   true,
		layout.ReagentBottle8ML:   true,
		layout.ReagentBottle40ML:  true,
		layout.ReagentBottle125ML: true,
	}
)

// StartTaskOptions configures start-task's optional preflight checks.
type StartTaskOptions struct {
	CheckEnv   bool
	WaterLimit float64
	O2Limit    float64
}

// Coordinator owns one station session and sequences every multi-step
// operation (login retry, idle-wait, device init, task lifecycle,
// discharge) against it.
type Coordinator struct {
	client   StationClient
	sink     sink.Sink
	notifier Notifier
	logger   *slog.Logger

	username, password string

	sessionMu sync.Mutex
	loggedIn  bool

	progressMu sync.Mutex
	seenSteps  map[int]map[string]bool
}

// New builds a Coordinator. notifier may be nil, in which case events are
// silently dropped.
func New(client StationClient, s sink.Sink, notifier Notifier, username, password string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Coordinator{
		client:    client,
		sink:      s,
		notifier:  notifier,
		logger:    logger,
		username:  username,
		password:  password,
		seenSteps: map[int]map[string]bool{},
	}
}

// ensureSession logs in exactly once per session, cooperatively: concurrent
// callers block on sessionMu rather than each issuing their own login.
func (c *Coordinator) ensureSession(ctx context.Context) error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.loggedIn {
		return nil
	}
	return c.doLogin(ctx)
}

// doLogin must be called with sessionMu held.
func (c *Coordinator) doLogin(ctx context.Context) error {
	tokenType, token, err := c.client.Login(ctx, c.username, c.password)
	if err != nil {
		return fmt.Errorf("coordinator: login: %w", err)
	}
	c.client.SetToken(tokenType, token)
	c.loggedIn = true
	return nil
}

// withSession ensures a session exists, runs fn, and on a
// *station.SessionExpiredError clears the token, re-authenticates, and
// retries fn exactly once — mirroring _call_with_relogin's single retry,
// but at the Coordinator rather than the transport layer.
func (c *Coordinator) withSession(ctx context.Context, fn func() error) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}
	err := fn()
	var sessionErr *station.SessionExpiredError
	if !errors.As(err, &sessionErr) {
		return err
	}

	c.sessionMu.Lock()
	c.client.ClearToken()
	c.loggedIn = false
	loginErr := c.doLogin(ctx)
	c.sessionMu.Unlock()
	if loginErr != nil {
		return fmt.Errorf("coordinator: re-login after session expiry: %w", loginErr)
	}

	return fn()
}

// waitIdle polls StationState until it reports Idle, failing with a
// *TimeoutError once deadline elapses.
func (c *Coordinator) waitIdle(ctx context.Context, stage string, interval, deadline time.Duration) error {
	start := time.Now()
	var lastState station.StationState
	for {
		var state station.StationState
		err := c.withSession(ctx, func() error {
			var innerErr error
			state, innerErr = c.client.StationState(ctx)
			return innerErr
		})
		if err != nil {
			return fmt.Errorf("coordinator: %s: poll station state: %w", stage, err)
		}
		if state != lastState {
			c.logger.Info("coordinator: station state transition", "stage", stage, "state", state)
			lastState = state
		}
		if state == station.StateIdle {
			return nil
		}
		if time.Since(start) > deadline {
			return &TimeoutError{Stage: stage, LastStatus: fmt.Sprintf("state=%d", state)}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// deviceInit triggers DeviceInit, waits for Idle, then homes any W-1 shelf
// holding a 125 mL reagent-bottle tray. Homing failures are logged, not
// raised: a missing shelf tray is common and non-fatal to station
// readiness, per station_controller.py's own best-effort treatment of this
// step.
func (c *Coordinator) deviceInit(ctx context.Context, interval, deadline time.Duration) error {
	if err := c.withSession(ctx, func() error {
		return c.client.DeviceInit(ctx, nil)
	}); err != nil {
		return fmt.Errorf("coordinator: device init: %w", err)
	}
	if err := c.waitIdle(ctx, "device-init", interval, deadline); err != nil {
		return err
	}

	var raw []any
	err := c.withSession(ctx, func() error {
		var innerErr error
		raw, innerErr = c.client.GetResourceInfo(ctx, nil)
		return innerErr
	})
	if err != nil {
		c.logger.Warn("coordinator: device init: resource info unavailable for shelf homing", "error", err)
		return nil
	}

	homed := map[int]bool{}
	for _, row := range raw {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		layoutCode, _ := m["layout_code"].(string)
		trayCode, _ := asInt(m["tray_code"])
		if layout.ResourceCode(trayCode) != layout.ReagentBottleTray125ML {
			continue
		}
		code, err := layout.Parse(layoutCode)
		if err != nil || code.Zone != "W" || len(code.Index) < 2 || code.Index[0] != 1 {
			continue
		}
		num, ok := w1ShelfPairs[code.Index[1]]
		if !ok || homed[num] {
			continue
		}
		if homeErr := c.client.SingleControlW1Shelf(ctx, "", "home", num); homeErr != nil {
			c.logger.Warn("coordinator: device init: shelf homing failed", "num", num, "error", homeErr)
			continue
		}
		homed[num] = true
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	default:
		return 0, false
	}
}

// aggregateResourceInfo groups the station's raw resource_list into
// resource.InventoryRow entries, mirroring _extract_resource_list and
// _format_resource_rows's layout-prefix grouping and three-way
// classification. Unlike _pick_amount_value, it does not collapse a row's
// amount fields into one pre-chosen value: the raw per-field strings are
// carried onto InventoryDetail so resource.parseDetailAmount's own
// fallback chain operates on them unmodified.
//
// Each raw row's tray_code is the tray-container code (matching
// resource.InventoryRow.TrayCode's own contract, which pkg/resource keys
// its dead-volume and tray-to-consumable lookups on); classification
// against consumableCodes/detailCodes/substanceCodes instead uses the
// tray's MediaCode, since those sets name the dispensed item, not its
// container.
func aggregateResourceInfo(raw []any) []resource.InventoryRow {
	groups := map[string]*resource.InventoryRow{}
	var order []string

	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		layoutCode, _ := m["layout_code"].(string)
		if layoutCode == "" {
			continue
		}
		trayCodeInt, _ := asInt(m["tray_code"])
		trayCode := layout.ResourceCode(trayCodeInt)
		spec, hasSpec := layout.BuiltinTraySpecs[trayCode]
		mediaCode := trayCode
		if hasSpec && spec.MediaCode != 0 {
			mediaCode = spec.MediaCode
		}

		row, exists := groups[layoutCode]
		if !exists {
			row = &resource.InventoryRow{LayoutCode: layoutCode, TrayCode: trayCode}
			if hasSpec {
				row.DisplayName = spec.DisplayName
			}
			groups[layoutCode] = row
			order = append(order, layoutCode)
		}

		switch {
		case consumableCodes[mediaCode]:
			count, _ := asInt(m["count"])
			row.Count += count

		case detailCodes[mediaCode], substanceCodes[mediaCode]:
			slot, _ := asInt(m["slot"])
			well, _ := m["well"].(string)
			substance, _ := m["substance"].(string)
			detail := resource.InventoryDetail{
				Slot:            slot,
				Well:            well,
				Substance:       substance,
				AvailableWeight: stringField(m, "available_weight"),
				CurWeight:       stringField(m, "cur_weight"),
				InitialWeight:   stringField(m, "initial_weight"),
				AvailableVolume: stringField(m, "available_volume"),
				CurVolume:       stringField(m, "cur_volume"),
				InitialVolume:   stringField(m, "initial_volume"),
				Value:           stringField(m, "value"),
			}
			row.Details = append(row.Details, detail)
			row.Count++
		}
	}

	rows := make([]resource.InventoryRow, 0, len(order))
	for _, code := range order {
		rows = append(rows, *groups[code])
	}
	return rows
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}

// ResourceInventory fetches the station's raw resource list under
// withSession's retry and returns it aggregated into analyzer-ready rows.
func (c *Coordinator) ResourceInventory(ctx context.Context) ([]resource.InventoryRow, error) {
	var raw []any
	err := c.withSession(ctx, func() error {
		var innerErr error
		raw, innerErr = c.client.GetResourceInfo(ctx, nil)
		return innerErr
	})
	if err != nil {
		return nil, fmt.Errorf("coordinator: resource inventory: %w", err)
	}
	rows := aggregateResourceInfo(raw)
	if err := c.sink.Snapshot(ctx, sink.KindResourceInfo, rows); err != nil {
		c.logger.Warn("coordinator: resource inventory: snapshot failed", "error", err)
	}
	return rows, nil
}

// SubmitTask creates a task from payload, snapshots it, and returns the
// station task id.
func (c *Coordinator) SubmitTask(ctx context.Context, payload map[string]any) (int, error) {
	var taskID int
	err := c.withSession(ctx, func() error {
		var innerErr error
		taskID, innerErr = c.client.AddTask(ctx, payload)
		return innerErr
	})
	if err != nil {
		return 0, fmt.Errorf("coordinator: submit task: %w", err)
	}
	if err := c.sink.TaskCreate(ctx, taskID, payload); err != nil {
		c.logger.Warn("coordinator: submit task: sink record failed", "task_id", taskID, "error", err)
	}
	if err := c.sink.TaskPayload(ctx, taskID, payload); err != nil {
		c.logger.Warn("coordinator: submit task: payload snapshot failed", "task_id", taskID, "error", err)
	}
	return taskID, nil
}

// StartTask requires the station be Idle, optionally rejects on glovebox
// environment limits, and auto-selects the latest Unstarted task when
// taskID is nil.
func (c *Coordinator) StartTask(ctx context.Context, taskID *int, opts StartTaskOptions) (int, error) {
	var state station.StationState
	err := c.withSession(ctx, func() error {
		var innerErr error
		state, innerErr = c.client.StationState(ctx)
		return innerErr
	})
	if err != nil {
		return 0, fmt.Errorf("coordinator: start task: %w", err)
	}
	if state != station.StateIdle {
		return 0, &ValidationError{Field: "station_state", Message: fmt.Sprintf("station is not idle (state=%d)", state)}
	}

	if opts.CheckEnv {
		var env station.GloveboxEnv
		err := c.withSession(ctx, func() error {
			var innerErr error
			env, innerErr = c.client.GloveboxEnv(ctx)
			return innerErr
		})
		if err != nil {
			return 0, fmt.Errorf("coordinator: start task: glovebox env: %w", err)
		}
		if opts.WaterLimit > 0 && env.H2OPPM >= opts.WaterLimit {
			return 0, &ValidationError{Field: "h2o_ppm", Message: fmt.Sprintf("%.1f ppm at or above limit %.1f", env.H2OPPM, opts.WaterLimit)}
		}
		if opts.O2Limit > 0 && env.O2PPM >= opts.O2Limit {
			return 0, &ValidationError{Field: "o2_ppm", Message: fmt.Sprintf("%.1f ppm at or above limit %.1f", env.O2PPM, opts.O2Limit)}
		}
	}

	resolvedID, err := c.resolveTaskID(ctx, taskID, station.TaskUnstarted)
	if err != nil {
		return 0, err
	}

	if err := c.withSession(ctx, func() error {
		return c.client.StartTask(ctx, resolvedID)
	}); err != nil {
		return 0, fmt.Errorf("coordinator: start task %d: %w", resolvedID, err)
	}
	if err := c.sink.TaskStatus(ctx, resolvedID, "running", sink.TaskTimestamps{StartedAt: time.Now()}); err != nil {
		c.logger.Warn("coordinator: start task: sink status failed", "task_id", resolvedID, "error", err)
	}
	return resolvedID, nil
}

// resolveTaskID returns taskID if non-nil, otherwise the most recent task
// id in the given status.
func (c *Coordinator) resolveTaskID(ctx context.Context, taskID *int, status station.TaskStatus) (int, error) {
	if taskID != nil {
		return *taskID, nil
	}
	var items []map[string]any
	err := c.withSession(ctx, func() error {
		var innerErr error
		items, _, innerErr = c.client.GetTaskList(ctx, station.TaskListQuery{Sort: "desc", Limit: 1, Status: &status})
		return innerErr
	})
	if err != nil {
		return 0, fmt.Errorf("coordinator: resolve task: %w", err)
	}
	if len(items) == 0 {
		return 0, &ValidationError{Field: "task_id", Message: fmt.Sprintf("no task in status %d to select", status)}
	}
	id, ok := asInt(items[0]["task_id"])
	if !ok {
		return 0, &ValidationError{Field: "task_id", Message: "selected task is missing a task_id field"}
	}
	return id, nil
}

var terminalTaskStatuses = map[station.TaskStatus]bool{
	station.TaskCompleted: true,
	station.TaskFailed:    true,
	station.TaskStopped:   true,
}

// WaitWithProgress polls a task until it reaches a terminal status,
// streaming newly-observed step strings ("unit: action → target") to
// onStep and, on terminal status, notifying notifier. taskID nil
// auto-selects the latest Running task, retrying selection up to 3 times
// 10s apart (the task may not have transitioned to Running yet).
func (c *Coordinator) WaitWithProgress(ctx context.Context, taskID *int, interval time.Duration, onStep func(string)) (station.TaskInfo, error) {
	resolvedID, err := c.resolveRunningTask(ctx, taskID)
	if err != nil {
		return station.TaskInfo{}, err
	}

	for {
		var info station.TaskInfo
		err := c.withSession(ctx, func() error {
			var innerErr error
			info, innerErr = c.client.GetTaskInfo(ctx, resolvedID)
			return innerErr
		})
		if err != nil {
			return station.TaskInfo{}, fmt.Errorf("coordinator: wait with progress: task %d: %w", resolvedID, err)
		}

		var opInfo map[string]any
		if err := c.withSession(ctx, func() error {
			var innerErr error
			opInfo, innerErr = c.client.GetTaskOpInfo(ctx, resolvedID)
			return innerErr
		}); err != nil {
			c.logger.Warn("coordinator: wait with progress: op info unavailable", "task_id", resolvedID, "error", err)
		} else if onStep != nil {
			for _, step := range c.newSteps(resolvedID, opInfo) {
				onStep(step)
			}
		}

		if terminalTaskStatuses[info.Status] {
			if err := c.sink.TaskStatus(ctx, resolvedID, taskStatusLabel(info.Status), sink.TaskTimestamps{EndedAt: time.Now()}); err != nil {
				c.logger.Warn("coordinator: wait with progress: sink status failed", "task_id", resolvedID, "error", err)
			}
			if notifyErr := c.notifier.Notify(ctx, Event{
				Kind: "task_terminal", TaskID: &resolvedID,
				Message: fmt.Sprintf("task %d reached %s", resolvedID, taskStatusLabel(info.Status)),
				At:      time.Now(),
			}); notifyErr != nil {
				c.logger.Warn("coordinator: wait with progress: notify failed", "task_id", resolvedID, "error", notifyErr)
			}
			return info, nil
		}

		select {
		case <-ctx.Done():
			return station.TaskInfo{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (c *Coordinator) resolveRunningTask(ctx context.Context, taskID *int) (int, error) {
	if taskID != nil {
		return *taskID, nil
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		id, err := c.resolveTaskID(ctx, nil, station.TaskRunning)
		if err == nil {
			return id, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(10 * time.Second):
		}
	}
	return 0, fmt.Errorf("coordinator: no running task found after retries: %w", lastErr)
}

// newSteps flattens opInfo's done_units/running_units into step strings,
// returning only ones not previously emitted for taskID.
func (c *Coordinator) newSteps(taskID int, opInfo map[string]any) []string {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	seen, ok := c.seenSteps[taskID]
	if !ok {
		seen = map[string]bool{}
		c.seenSteps[taskID] = seen
	}

	var fresh []string
	for _, key := range []string{"done_units", "running_units"} {
		list, _ := opInfo[key].([]any)
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			unit, _ := m["unit_id"].(string)
			action, _ := m["action"].(string)
			target, _ := m["target"].(string)
			step := fmt.Sprintf("%s: %s → %s", unit, action, target)
			if seen[step] {
				continue
			}
			seen[step] = true
			fresh = append(fresh, step)
		}
	}
	return fresh
}

func taskStatusLabel(s station.TaskStatus) string {
	switch s {
	case station.TaskCompleted:
		return "completed"
	case station.TaskFailed:
		return "failed"
	case station.TaskStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status-%d", int(s))
	}
}

// DischargeMode names the kind of discharge run. Discharge uses it only to
// pick the batch-out move type: "empty_out" for DischargeEmptiesOnly,
// "main_out" for the other two modes. It does not change which trays are
// moved.
type DischargeMode string

const (
	DischargeTaskAndEmpties DischargeMode = "task_and_empties"
	DischargeTaskOnly       DischargeMode = "task_only"
	DischargeEmptiesOnly    DischargeMode = "empties_only"
)

// Discharge moves layoutCodes to the fixed discharge ring (TB-2-1..TB-2-4,
// TB-1-1..TB-1-4), excluding any airlock-prefixed code, and records the
// run to the Sink. taskID is nil for an empties-only run. The trays moved
// are exactly the caller's layoutCodes: none are derived from the task or
// from inventory, the codes are not checked against inventory, and Discharge
// does not wait for the station to become idle first.
func (c *Coordinator) Discharge(ctx context.Context, mode DischargeMode, taskID *int, layoutCodes []string) error {
	started := time.Now()
	var entries []sink.DischargeEntry
	var layoutList []map[string]any

	ring := 0
	for _, code := range layoutCodes {
		if layout.IsAirlockPrefixed(strings.ToUpper(code)) {
			continue
		}
		if ring >= len(dischargeRing) {
			return &ValidationError{Field: "layout_codes", Message: "discharge ring exhausted: more trays than ring slots"}
		}
		dest := dischargeRing[ring]
		ring++
		layoutList = append(layoutList, map[string]any{"layout_code": code, "destination": dest})
		entries = append(entries, sink.DischargeEntry{Source: code, Destination: dest, TaskID: taskID})
	}

	moveType := "main_out"
	if mode == DischargeEmptiesOnly {
		moveType = "empty_out"
	}

	if err := c.withSession(ctx, func() error {
		return c.client.BatchOutTray(ctx, layoutList, moveType)
	}); err != nil {
		return fmt.Errorf("coordinator: discharge: %w", err)
	}

	log := sink.DischargeLog{StartedAt: started, FinishedAt: time.Now(), Entries: entries}
	if err := c.sink.TaskDischarge(ctx, taskID, log); err != nil {
		c.logger.Warn("coordinator: discharge: sink record failed", "error", err)
	}
	if err := c.sink.BatchOutLog(ctx, sink.BatchOutEntry{At: started, LayoutList: layoutList, MoveType: moveType}); err != nil {
		c.logger.Warn("coordinator: discharge: batch-out log failed", "error", err)
	}
	return nil
}

// DeviceInit is the exported entry point for device-init(interval,
// deadline), kept as a thin wrapper so callers never need the unexported
// deviceInit name.
func (c *Coordinator) DeviceInit(ctx context.Context, interval, deadline time.Duration) error {
	return c.deviceInit(ctx, interval, deadline)
}

// WaitIdle is the exported entry point for wait-idle(stage, interval,
// deadline).
func (c *Coordinator) WaitIdle(ctx context.Context, stage string, interval, deadline time.Duration) error {
	return c.waitIdle(ctx, stage, interval, deadline)
}

// TaskStatus returns a task's current status snapshot with no polling and
// no progress/notify side effects, for callers (the Operator API's status
// endpoint) that just want a point-in-time read.
func (c *Coordinator) TaskStatus(ctx context.Context, taskID int) (station.TaskInfo, error) {
	var info station.TaskInfo
	err := c.withSession(ctx, func() error {
		var innerErr error
		info, innerErr = c.client.GetTaskInfo(ctx, taskID)
		return innerErr
	})
	if err != nil {
		return station.TaskInfo{}, fmt.Errorf("coordinator: task status: task %d: %w", taskID, err)
	}
	return info, nil
}

// Probe issues a single station-state request, used by the health endpoint
// to confirm station reachability without entering a wait-idle loop.
func (c *Coordinator) Probe(ctx context.Context) (station.StationState, error) {
	var state station.StationState
	err := c.withSession(ctx, func() error {
		var innerErr error
		state, innerErr = c.client.StationState(ctx)
		return innerErr
	})
	if err != nil {
		return 0, fmt.Errorf("coordinator: probe: %w", err)
	}
	return state, nil
}

// CheckTaskResource runs the station's secondary resource check under
// withSession's retry. The Coordinator itself satisfies
// resource.StationChecker via this method, letting callers pass a
// Coordinator directly to resource.AnalyzeReadiness instead of reaching
// past it to the underlying StationClient.
func (c *Coordinator) CheckTaskResource(ctx context.Context, taskID int) (resource.CheckResult, error) {
	var result resource.CheckResult
	err := c.withSession(ctx, func() error {
		var innerErr error
		result, innerErr = c.client.CheckTaskResource(ctx, taskID)
		return innerErr
	})
	if err != nil {
		return resource.CheckResult{}, fmt.Errorf("coordinator: check task resource: %w", err)
	}
	return result, nil
}
