// Package web is the HTTP trigger: it launches jobs on POST requests and exposes
// execution lookups, health and metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	usecase "github.com/tigerroll/customer-batch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/customer-batch/pkg/batch/core/support/incrementer"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/serialization"
)

// StartAtParameter is the JobParameters key every HTTP launch sets to the current Unix milliseconds.
const StartAtParameter = "startAt"

// Handler serves the batch API.
type Handler struct {
	operator    usecase.JobOperator
	cfg         config.HTTPTriggerConfig
	incrementer port.JobParametersIncrementer
}

// NewHandler creates a Handler.
func NewHandler(operator usecase.JobOperator, cfg config.HTTPTriggerConfig) *Handler {
	return &Handler{
		operator:    operator,
		cfg:         cfg,
		incrementer: incrementer.NewTimestampIncrementer(StartAtParameter),
	}
}

// APIPrefix is the path prefix of the batch API.
const APIPrefix = "/api/v1/batch"

// NewRouter routes the batch API. metricsHandler is mounted at metricsPath when not nil.
func NewRouter(h *Handler, metricsPath string, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	// Full paths on the root router: mux only answers 405 for method mismatches found there.
	api := func(path string, f http.HandlerFunc, method string) {
		r.HandleFunc(APIPrefix+path, f).Methods(method)
	}
	api("/import", h.launch(h.cfg.ImportJobName), http.MethodPost)
	api("/importCustomers", h.launch(h.cfg.ImportJobName), http.MethodPost)
	api("/export", h.launch(h.cfg.ExportJobName), http.MethodPost)
	api("/jobs", h.jobNames, http.MethodGet)
	api("/executions/{id}", h.getExecution, http.MethodGet)
	api("/executions/{id}/restart", h.restart, http.MethodPost)
	api("/executions/{id}/stop", h.stop, http.MethodPost)
	api("/executions/{id}/abandon", h.abandon, http.MethodPost)

	r.HandleFunc("/health", health).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle(metricsPath, metricsHandler).Methods(http.MethodGet)
	}
	return r
}

func (h *Handler) launch(jobName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := h.incrementer.GetNext(model.NewJobParameters())
		je, err := h.operator.Start(r.Context(), jobName, params)
		h.respondRun(w, jobName, je, err)
	}
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	je, err := h.operator.Restart(r.Context(), id)
	h.respondRun(w, id, je, err)
}

// respondRun maps a finished run to 200 and anything else to an error status.
func (h *Handler) respondRun(w http.ResponseWriter, what string, je *model.JobExecution, err error) {
	if err != nil {
		logger.Errorf("HTTP trigger: launch of '%s' refused: %v", what, err)
		writeError(w, err)
		return
	}
	if je.Status != model.BatchStatusCompleted {
		logger.Errorf("HTTP trigger: Job '%s' (Execution ID: %s) ended %s: %v", je.JobName, je.ID, je.Status, je.Failures)
		writeJSON(w, http.StatusInternalServerError, newExecutionResponse(je))
		return
	}
	writeJSON(w, http.StatusOK, newExecutionResponse(je))
}

func (h *Handler) getExecution(w http.ResponseWriter, r *http.Request) {
	je, err := h.operator.GetExecution(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newExecutionResponse(je))
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, h.operator.Stop)
}

func (h *Handler) abandon(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, h.operator.Abandon)
}

func (h *Handler) operate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, executionID string) error) {
	id := mux.Vars(r)["id"]
	if err := op(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	je, err := h.operator.GetExecution(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newExecutionResponse(je))
}

func (h *Handler) jobNames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"jobs": h.operator.JobNames()})
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

type stepResponse struct {
	StepName      string   `json:"stepName"`
	Status        string   `json:"status"`
	ExitStatus    string   `json:"exitStatus"`
	ReadCount     int      `json:"readCount"`
	WriteCount    int      `json:"writeCount"`
	FilterCount   int      `json:"filterCount"`
	CommitCount   int      `json:"commitCount"`
	RollbackCount int      `json:"rollbackCount"`
	Failures      []string `json:"failures,omitempty"`
}

type executionResponse struct {
	ExecutionID  string                 `json:"executionId"`
	InstanceID   string                 `json:"instanceId"`
	JobName      string                 `json:"jobName"`
	Status       string                 `json:"status"`
	ExitStatus   string                 `json:"exitStatus"`
	Parameters   map[string]interface{} `json:"parameters"`
	StartTime    time.Time              `json:"startTime"`
	EndTime      *time.Time             `json:"endTime,omitempty"`
	RestartCount int                    `json:"restartCount"`
	Failures     []string               `json:"failures,omitempty"`
	Steps        []stepResponse         `json:"steps"`
}

func newExecutionResponse(je *model.JobExecution) executionResponse {
	resp := executionResponse{
		ExecutionID:  je.ID,
		InstanceID:   je.JobInstanceID,
		JobName:      je.JobName,
		Status:       je.Status.String(),
		ExitStatus:   string(je.ExitStatus),
		Parameters:   serialization.GetMaskedJobParametersMap(je.Parameters.Params),
		StartTime:    je.StartTime,
		EndTime:      je.EndTime,
		RestartCount: je.RestartCount,
		Failures:     je.Failures,
		Steps:        make([]stepResponse, 0, len(je.StepExecutions)),
	}
	for _, se := range je.StepExecutions {
		resp.Steps = append(resp.Steps, stepResponse{
			StepName:      se.StepName,
			Status:        se.Status.String(),
			ExitStatus:    string(se.ExitStatus),
			ReadCount:     se.ReadCount,
			WriteCount:    se.WriteCount,
			FilterCount:   se.FilterCount,
			CommitCount:   se.CommitCount,
			RollbackCount: se.RollbackCount,
			Failures:      se.Failures,
		})
	}
	return resp
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// statusFor maps coordinator and repository errors to HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrJobAlreadyRunning):
		return http.StatusConflict, "already_running"
	case errors.Is(err, usecase.ErrJobAlreadyComplete):
		return http.StatusConflict, "already_complete"
	case errors.Is(err, usecase.ErrJobNotRestartable):
		return http.StatusConflict, "not_restartable"
	case errors.Is(err, usecase.ErrInvalidJobParameters):
		return http.StatusBadRequest, "invalid_parameters"
	case errors.Is(err, usecase.ErrNoSuchJob):
		return http.StatusNotFound, "no_such_job"
	case errors.Is(err, repository.ErrJobExecutionNotFound):
		return http.StatusNotFound, "no_such_execution"
	default:
		return http.StatusInternalServerError, "error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, reason := statusFor(err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Reason: reason})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warnf("HTTP trigger: failed to encode response: %v", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debugf("HTTP %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
