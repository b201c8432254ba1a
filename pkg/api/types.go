package api

import "time"

// buildRequest is the JSON body for POST /api/v1/recipes/:name/build — an
// inline recipe, mirroring builder.Recipe's own Headers/Rows/Params shape
// so the HTTP boundary needs no separate parsing step.
type buildRequest struct {
	Params  paramsDTO  `json:"params"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// paramsDTO mirrors builder.Params's exported fields in snake_case.
type paramsDTO struct {
	TaskName string `json:"task_name"`

	WeighingErrorPct  float64 `json:"weighing_error_pct"`
	MaxErrorMg        float64 `json:"max_error_mg"`
	ReactionScaleMmol float64 `json:"reaction_scale_mmol"`

	ReactorType string `json:"reactor_type"` // blank skips reaction-stir
	AutoMagnet  bool   `json:"auto_magnet"`
	FixedOrder  bool   `json:"fixed_order"`

	ReactionTemperatureC *float64 `json:"reaction_temperature_c,omitempty"` // nil -> 25
	TargetTemperatureC   *float64 `json:"target_temperature_c,omitempty"`   // nil -> no heating
	ReactionTimeHours    float64  `json:"reaction_time_hours"`
	RotationSpeedRPM     int      `json:"rotation_speed_rpm"`
	WaitTargetTemp       bool     `json:"wait_target_temp"`

	InternalStandardName   string  `json:"internal_standard_name,omitempty"` // blank skips IS-add and post-IS stir
	InternalStandardAmount float64 `json:"internal_standard_amount,omitempty"`
	PostISStirMinutes      float64 `json:"post_is_stir_minutes,omitempty"`
	PostISStirRotationRPM  int     `json:"post_is_stir_rotation_rpm,omitempty"`

	DiluentName      string  `json:"diluent_name,omitempty"` // blank skips filter-sample
	DilutionVolumeUL float64 `json:"dilution_volume_ul,omitempty"`
	SampleVolumeUL   float64 `json:"sample_volume_ul,omitempty"`
}

// unitDTO is one builder.Unit narrowed to JSON.
type unitDTO struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Column     int     `json:"column"`
	Row        int     `json:"row"`
	Substance  string  `json:"substance,omitempty"`
	ChemicalID int     `json:"chemical_id,omitempty"`
	WeightMg   float64 `json:"weight_mg,omitempty"`
	VolumeML   float64 `json:"volume_ml,omitempty"`
}

// buildResponse is the outcome of a successful build. Payload is the
// flattened add_task wire map — ready to pass straight into
// submitTaskRequest.Payload without the caller re-deriving it from Units.
type buildResponse struct {
	ExperimentCount int            `json:"experiment_count"`
	Units           []unitDTO      `json:"units"`
	Payload         map[string]any `json:"payload"`
}

// readinessRequest optionally reuses an inline recipe (same shape as
// buildRequest) plus the task id a secondary station check should run
// against, if the task has already been submitted.
type readinessRequest struct {
	buildRequest
	TaskID *int `json:"task_id,omitempty"`
}

// submitTaskRequest is the JSON body for POST /api/v1/tasks.
type submitTaskRequest struct {
	Payload   map[string]any      `json:"payload"`
	Start     bool                `json:"start"`
	CheckEnv  bool                `json:"check_env"`
	StartOpts *startTaskOptionsDTO `json:"start_options,omitempty"`
}

type startTaskOptionsDTO struct {
	WaterLimit float64 `json:"water_limit_ppm"`
	O2Limit    float64 `json:"o2_limit_ppm"`
}

// submitTaskResponse reports the created (and, if requested, started)
// task id.
type submitTaskResponse struct {
	TaskID  int  `json:"task_id"`
	Started bool `json:"started"`
}

// taskStatusResponse is the JSON shape of GET /api/v1/tasks/:id.
type taskStatusResponse struct {
	TaskID int    `json:"task_id"`
	Status string `json:"status"`
}

// dischargeRequest is the JSON body for POST /api/v1/tasks/:id/discharge.
type dischargeRequest struct {
	Mode        string   `json:"mode"`
	LayoutCodes []string `json:"layout_codes"`
}

// healthResponse reports station reachability and state; sink and notifier
// health are not included. Its shape follows the teacher's HealthResponse
// from pkg/api/handler_health.go.
type healthResponse struct {
	Status       string `json:"status"`
	StationState string `json:"station_state,omitempty"`
	StationError string `json:"station_error,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}
