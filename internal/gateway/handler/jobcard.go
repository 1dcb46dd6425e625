package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/zeromicro/go-zero/rest/pathvar"
	"go.uber.org/zap"

	"github.com/repairradar/repairradar/internal/gateway/middleware"
	"github.com/repairradar/repairradar/internal/gateway/svc"
	"github.com/repairradar/repairradar/internal/jobcard"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

// SaveConfigRequest carries the tenant's job card schema
type SaveConfigRequest struct {
	Schema json.RawMessage `json:"schema"`
}

// JobRequest carries a job card document
type JobRequest struct {
	Data json.RawMessage `json:"data"`
}

// tenantStore returns the job card store of the caller's tenant database.
// It writes the 401 itself when the request carries no tenant.
func tenantStore(w http.ResponseWriter, r *http.Request) (*jobcard.Store, bool) {
	h, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		UnauthorizedResponse(w, "Not authenticated", middleware.RequestIDFromContext(r.Context()))
		return nil, false
	}
	return jobcard.NewStore(h.DB()), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

// writeStoreError maps job card errors onto HTTP statuses
func writeStoreError(w http.ResponseWriter, svcCtx *svc.ServiceContext, r *http.Request, op string, err error) {
	requestID := middleware.RequestIDFromContext(r.Context())
	switch {
	case errors.Is(err, jobcard.ErrInvalidPayload):
		BadRequestResponse(w, "Invalid JSON payload", requestID)
	case errors.Is(err, jobcard.ErrJobNotFound):
		NotFoundResponse(w, "Job not found", requestID)
	case errors.Is(err, jobcard.ErrSchemaNotFound):
		NotFoundResponse(w, "Job card configuration not found", requestID)
	default:
		svcCtx.Logger.Error("job card operation failed",
			zap.String("op", op),
			zap.String("request_id", requestID),
			zap.String("user_id", middleware.UserIDFromContext(r.Context())),
			zap.Error(err))
		InternalServerErrorResponse(w, "Internal server error", requestID)
	}
}

// SaveConfigHandler stores the job card schema and flags the user as configured
func SaveConfigHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())
		store, ok := tenantStore(w, r)
		if !ok {
			return
		}

		var req SaveConfigRequest
		if err := decodeBody(w, r, &req); err != nil || len(req.Schema) == 0 {
			BadRequestResponse(w, "Invalid request body", requestID)
			return
		}

		schema, err := store.SaveSchema(r.Context(), jobcard.SchemaTypeJobCard, req.Schema)
		if err != nil {
			writeStoreError(w, svcCtx, r, "save_config", err)
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if err := svcCtx.Directory.MarkSchemaConfigured(r.Context(), userID); err != nil {
			// the schema is saved, the flag is advisory
			svcCtx.Logger.Warn("failed to mark schema configured",
				zap.String("request_id", requestID),
				zap.String("user_id", userID),
				zap.Error(err))
		}

		SuccessResponse(w, schema, requestID)
	}
}

// GetConfigHandler returns the tenant's job card schema
func GetConfigHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := tenantStore(w, r)
		if !ok {
			return
		}

		schema, err := store.GetSchema(r.Context(), jobcard.SchemaTypeJobCard)
		if err != nil {
			writeStoreError(w, svcCtx, r, "get_config", err)
			return
		}
		SuccessResponse(w, schema, middleware.RequestIDFromContext(r.Context()))
	}
}

// ListJobsHandler pages through job cards, newest first
func ListJobsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())
		store, ok := tenantStore(w, r)
		if !ok {
			return
		}

		limit, err := queryInt(r, "limit")
		if err != nil {
			BadRequestResponse(w, "Invalid limit", requestID)
			return
		}
		offset, err := queryInt(r, "offset")
		if err != nil {
			BadRequestResponse(w, "Invalid offset", requestID)
			return
		}

		jobs, err := store.ListJobs(r.Context(), limit, offset)
		if err != nil {
			writeStoreError(w, svcCtx, r, "list_jobs", err)
			return
		}
		SuccessResponse(w, jobs, requestID)
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

// CreateJobHandler inserts a job card
func CreateJobHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())
		store, ok := tenantStore(w, r)
		if !ok {
			return
		}

		var req JobRequest
		if err := decodeBody(w, r, &req); err != nil || len(req.Data) == 0 {
			BadRequestResponse(w, "Invalid request body", requestID)
			return
		}

		job, err := store.CreateJob(r.Context(), req.Data)
		if err != nil {
			writeStoreError(w, svcCtx, r, "create_job", err)
			return
		}
		CreatedResponse(w, job, requestID)
	}
}

// GetJobHandler returns one job card
func GetJobHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := tenantStore(w, r)
		if !ok {
			return
		}

		job, err := store.GetJob(r.Context(), pathvar.Vars(r)["id"])
		if err != nil {
			writeStoreError(w, svcCtx, r, "get_job", err)
			return
		}
		SuccessResponse(w, job, middleware.RequestIDFromContext(r.Context()))
	}
}

// UpdateJobHandler replaces a job card's document
func UpdateJobHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())
		store, ok := tenantStore(w, r)
		if !ok {
			return
		}

		var req JobRequest
		if err := decodeBody(w, r, &req); err != nil || len(req.Data) == 0 {
			BadRequestResponse(w, "Invalid request body", requestID)
			return
		}

		job, err := store.UpdateJob(r.Context(), pathvar.Vars(r)["id"], req.Data)
		if err != nil {
			writeStoreError(w, svcCtx, r, "update_job", err)
			return
		}
		SuccessResponse(w, job, requestID)
	}
}

// DeleteJobHandler removes a job card
func DeleteJobHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())
		store, ok := tenantStore(w, r)
		if !ok {
			return
		}

		if err := store.DeleteJob(r.Context(), pathvar.Vars(r)["id"]); err != nil {
			writeStoreError(w, svcCtx, r, "delete_job", err)
			return
		}
		SuccessResponse(w, map[string]string{"message": "Job deleted successfully"}, requestID)
	}
}
