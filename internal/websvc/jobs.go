package websvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/AdguardTeam/HostlistCompiler/internal/compiler"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/HostlistCompiler/internal/jobqueue"
	"github.com/AdguardTeam/HostlistCompiler/internal/rulestat"
	"github.com/AdguardTeam/HostlistCompiler/internal/session"
	"github.com/AdguardTeam/golibs/errors"
)

// JobKindCompile is the kind of compilation jobs.
const JobKindCompile = "compile"

// NewCompileJobHandler returns the job queue handler that runs compile jobs.
// rules may be nil.
func NewCompileJobHandler(comp session.Compiler, rules rulestat.Interface) (h jobqueue.Handler) {
	if rules == nil {
		rules = rulestat.Empty{}
	}

	return jobqueue.HandlerFunc(func(
		ctx context.Context,
		job *jobqueue.Job,
	) (result any, err error) {
		req := &compiler.Request{}
		err = json.Unmarshal(job.Payload, req)
		if err != nil {
			return nil, fmt.Errorf("decoding compile job: %w", err)
		}

		res, err := comp.Compile(ctx, req, events.Empty{})
		if err != nil {
			// Don't wrap the error, because it's informative enough as is.
			return nil, err
		}

		rules.Collect(ctx, res.Rules)

		return res, nil
	})
}

// jobSubmitReq is the JSON body of POST /v1/jobs.
type jobSubmitReq struct {
	// Request is the kind-specific request body, for compile jobs a
	// compilation request.
	Request json.RawMessage `json:"request"`

	// Kind is the kind of the job.  Empty means [JobKindCompile].
	Kind string `json:"kind"`

	// Priority is the scheduling class.  Empty means normal.
	Priority jobqueue.Priority `json:"priority"`
}

// jobSubmitResp is the JSON body of a successful submission.
type jobSubmitResp struct {
	RequestID string `json:"request_id"`
}

// handleJobSubmit serves POST /v1/jobs.
func (svc *Service) handleJobSubmit(w http.ResponseWriter, r *http.Request) {
	req := &jobSubmitReq{}
	if !svc.readJSON(w, r, req) {
		return
	}

	if req.Kind == "" {
		req.Kind = JobKindCompile
	}

	ctx := r.Context()
	id, err := svc.jobs.Submit(ctx, req.Kind, req.Request, req.Priority)
	if err != nil {
		if errors.Is(err, jobqueue.ErrOverCapacity) {
			svc.writeError(ctx, w, http.StatusTooManyRequests, err.Error())
		} else {
			svc.writeError(ctx, w, http.StatusServiceUnavailable, err.Error())
		}

		return
	}

	svc.writeJSON(ctx, w, http.StatusAccepted, &jobSubmitResp{RequestID: id})
}

// handleJobPoll serves GET /v1/jobs/{id}.
func (svc *Service) handleJobPoll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	st, err := svc.jobs.Poll(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, jobqueue.ErrNotFound) {
			svc.writeError(ctx, w, http.StatusNotFound, err.Error())
		} else {
			svc.writeError(ctx, w, http.StatusInternalServerError, err.Error())
		}

		return
	}

	svc.writeJSON(ctx, w, http.StatusOK, st)
}

// handleJobStats serves GET /v1/jobs.
func (svc *Service) handleJobStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	svc.writeJSON(ctx, w, http.StatusOK, svc.jobs.Stats(ctx))
}
