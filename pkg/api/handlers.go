package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/synthline/corestation/pkg/builder"
	"github.com/synthline/corestation/pkg/coordinator"
	"github.com/synthline/corestation/pkg/resource"
)

func toRecipe(req buildRequest) builder.Recipe {
	p := req.Params
	return builder.Recipe{
		Params: builder.Params{
			TaskName: p.TaskName,

			WeighingErrorPct:  p.WeighingErrorPct,
			MaxErrorMg:        p.MaxErrorMg,
			ReactionScaleMmol: p.ReactionScaleMmol,

			ReactorType: p.ReactorType,
			AutoMagnet:  p.AutoMagnet,
			FixedOrder:  p.FixedOrder,

			ReactionTemperatureC: p.ReactionTemperatureC,
			TargetTemperatureC:   p.TargetTemperatureC,
			ReactionTimeHours:    p.ReactionTimeHours,
			RotationSpeedRPM:     p.RotationSpeedRPM,
			WaitTargetTemp:       p.WaitTargetTemp,

			InternalStandardName:   p.InternalStandardName,
			InternalStandardAmount: p.InternalStandardAmount,
			PostISStirMinutes:      p.PostISStirMinutes,
			PostISStirRotationRPM:  p.PostISStirRotationRPM,

			DiluentName:      p.DiluentName,
			DilutionVolumeUL: p.DilutionVolumeUL,
			SampleVolumeUL:   p.SampleVolumeUL,
		},
		Headers: req.Headers,
		Rows:    req.Rows,
	}
}

func toUnitDTOs(units []builder.Unit) []unitDTO {
	out := make([]unitDTO, 0, len(units))
	for _, u := range units {
		out = append(out, unitDTO{
			ID:         u.ID,
			Kind:       string(u.Kind),
			Column:     u.Column,
			Row:        u.Row,
			Substance:  u.Substance,
			ChemicalID: u.ChemicalID,
			WeightMg:   u.TargetWeightMg,
			VolumeML:   u.AddVolumeML,
		})
	}
	return out
}

// toTaskPayload flattens a built unit list into the add_task wire map
// station.Client.AddTask expects, per §6's task-payload wire shape.
func toTaskPayload(taskName string, units []builder.Unit) map[string]any {
	ops := make([]map[string]any, 0, len(units))
	for _, u := range units {
		ops = append(ops, map[string]any{
			"unit_id":     u.ID,
			"kind":        string(u.Kind),
			"column":      u.Column,
			"row":         u.Row,
			"substance":   u.Substance,
			"chemical_id": u.ChemicalID,
			"weight_mg":   u.TargetWeightMg,
			"volume_ml":   u.AddVolumeML,
		})
	}
	return map[string]any{"task_name": taskName, "units": ops}
}

// buildHandler handles POST /api/v1/recipes/:name/build.
func (s *Server) buildHandler(c *echo.Context) error {
	var req buildRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Params.TaskName == "" {
		req.Params.TaskName = c.Param("name")
	}

	units, err := builder.Build(toRecipe(req), s.directory)
	if err != nil {
		return mapCoreError(err)
	}

	return c.JSON(http.StatusOK, buildResponse{
		ExperimentCount: len(req.Rows),
		Units:           toUnitDTOs(units),
		Payload:         toTaskPayload(req.Params.TaskName, units),
	})
}

// readinessHandler handles POST /api/v1/recipes/:name/readiness.
func (s *Server) readinessHandler(c *echo.Context) error {
	var req readinessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Params.TaskName == "" {
		req.Params.TaskName = c.Param("name")
	}

	units, err := builder.Build(toRecipe(req.buildRequest), s.directory)
	if err != nil {
		return mapCoreError(err)
	}

	inventory, err := s.coord.ResourceInventory(c.Request().Context())
	if err != nil {
		return mapCoreError(err)
	}

	payload := resource.Payload{Units: units, ExperimentCount: len(req.Rows)}
	report, err := resource.AnalyzeReadiness(c.Request().Context(), payload, inventory, s.directory, s.coord, req.TaskID)
	if err != nil {
		return mapCoreError(err)
	}

	if !report.Ready && s.notifier != nil {
		if notifyErr := s.notifier.Notify(c.Request().Context(), coordinator.Event{
			Kind:    "readiness_not_ready",
			TaskID:  req.TaskID,
			Message: fmt.Sprintf("readiness check for %q failed: missing=%v redundant=%v", req.Params.TaskName, report.Missing, report.Redundant),
			At:      time.Now(),
		}); notifyErr != nil {
			slog.Warn("api: readiness notify failed", "error", notifyErr)
		}
	}

	return c.JSON(http.StatusOK, report)
}

// submitTaskHandler handles POST /api/v1/tasks.
func (s *Server) submitTaskHandler(c *echo.Context) error {
	var req submitTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Payload) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "payload is required")
	}

	ctx := c.Request().Context()
	taskID, err := s.coord.SubmitTask(ctx, req.Payload)
	if err != nil {
		return mapCoreError(err)
	}

	resp := submitTaskResponse{TaskID: taskID}
	if req.Start {
		opts := coordinator.StartTaskOptions{CheckEnv: req.CheckEnv}
		if req.StartOpts != nil {
			opts.WaterLimit = req.StartOpts.WaterLimit
			opts.O2Limit = req.StartOpts.O2Limit
		}
		startedID := taskID
		if _, err := s.coord.StartTask(ctx, &startedID, opts); err != nil {
			return mapCoreError(err)
		}
		resp.Started = true
		s.trackProgress(taskID)
	}

	return c.JSON(http.StatusCreated, resp)
}

// trackProgress launches a background wait-with-progress call for taskID,
// fanning every step delta out to the progress hub's subscribers. It runs
// off the server's own lifetime context (cancelled by Shutdown), not the
// originating request's, since the request returns long before the task
// finishes.
func (s *Server) trackProgress(taskID int) {
	go func() {
		id := taskID
		info, err := s.coord.WaitWithProgress(s.progressCtx, &id, s.pollInterval, func(step string) {
			s.hub.broadcast(taskID, map[string]any{"type": "step", "task_id": taskID, "step": step})
		})
		if err != nil {
			s.hub.broadcast(taskID, map[string]any{"type": "error", "task_id": taskID, "message": err.Error()})
			return
		}
		s.hub.broadcast(taskID, map[string]any{"type": "terminal", "task_id": taskID, "status": int(info.Status)})
	}()
}

// taskStatusHandler handles GET /api/v1/tasks/:id.
func (s *Server) taskStatusHandler(c *echo.Context) error {
	taskID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "task id must be numeric")
	}

	info, err := s.coord.TaskStatus(c.Request().Context(), taskID)
	if err != nil {
		return mapCoreError(err)
	}

	return c.JSON(http.StatusOK, taskStatusResponse{TaskID: info.TaskID, Status: taskStatusLabel(int(info.Status))})
}

func taskStatusLabel(status int) string {
	switch status {
	case 0:
		return "unstarted"
	case 1:
		return "running"
	case 2:
		return "completed"
	case 4:
		return "failed"
	case 5:
		return "stopped"
	default:
		return "unknown"
	}
}

// dischargeHandler handles POST /api/v1/tasks/:id/discharge.
func (s *Server) dischargeHandler(c *echo.Context) error {
	taskID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "task id must be numeric")
	}
	var req dischargeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	mode := coordinator.DischargeMode(req.Mode)
	switch mode {
	case coordinator.DischargeTaskAndEmpties, coordinator.DischargeTaskOnly, coordinator.DischargeEmptiesOnly:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be task_and_empties, task_only, or empties_only")
	}

	id := taskID
	if err := s.coord.Discharge(c.Request().Context(), mode, &id, req.LayoutCodes); err != nil {
		return mapCoreError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// healthHandler handles GET /api/v1/health, mirroring the teacher's
// healthHandler: a lightweight reachability probe collapsed into one JSON
// status field.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", CheckedAt: time.Now()}
	state, err := s.coord.Probe(ctx)
	if err != nil {
		resp.Status = "degraded"
		resp.StationError = err.Error()
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	resp.StationState = stationStateLabel(int(state))
	return c.JSON(http.StatusOK, resp)
}

func stationStateLabel(state int) string {
	switch state {
	case 0:
		return "idle"
	case 1:
		return "running"
	default:
		return "unknown"
	}
}
