package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/chrlshc/Huntaze-sub010/admission"
	"github.com/chrlshc/Huntaze-sub010/di"
	"github.com/chrlshc/Huntaze-sub010/forwarder"
	"github.com/chrlshc/Huntaze-sub010/httpx"
	"github.com/chrlshc/Huntaze-sub010/limiter"
	"github.com/chrlshc/Huntaze-sub010/middleware"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func (s *Server) registerRoutes() error {
	s.engine.GET(PathHealth, middleware.HealthHandler(s.app.Health()))
	s.engine.GET(PathLive, middleware.LivenessHandler())
	s.engine.POST(PathCheck, httpx.Wrap(s.logger, s.check))

	fwd, err := s.app.Forwarder()
	switch {
	case err == nil:
		s.engine.POST(PathForward, s.forward(fwd))
	case errors.Is(err, di.ErrQueueDisabled):
	default:
		return err
	}
	return nil
}

// CheckRequest asks for a decision on behalf of another service
type CheckRequest struct {
	Key  string `json:"key"`
	Path string `json:"path"`
	Tier string `json:"tier"`
}

func (r *CheckRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Key, validation.Required),
		validation.Field(&r.Path, validation.Required),
	)
}

type CheckResponse struct {
	Allowed    bool   `json:"allowed"`
	Limit      int64  `json:"limit,omitempty"`
	Remaining  int64  `json:"remaining"`
	ResetAt    int64  `json:"reset_at,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`
	Degraded   bool   `json:"degraded,omitempty"`
	Algorithm  string `json:"algorithm,omitempty"`
}

// NewCheckResponse renders a decision for JSON callers
func NewCheckResponse(d admission.Decision) *CheckResponse {
	resp := &CheckResponse{
		Allowed:    d.Allowed,
		Limit:      d.Limit,
		Remaining:  d.Remaining,
		RetryAfter: d.RetryAfter,
		Degraded:   d.Degraded,
		Algorithm:  string(d.Algorithm),
	}
	if !d.ResetAt.IsZero() {
		resp.ResetAt = d.ResetAt.Unix()
	}
	return resp
}

func (s *Server) check(c *gin.Context, req *CheckRequest) (*CheckResponse, error) {
	d, err := s.app.Gate().Admit(c.Request.Context(), req.Key, req.Path, req.Tier)
	if err != nil {
		return nil, err
	}
	return NewCheckResponse(d), nil
}

// ForwardResponse describes an accepted payload
type ForwardResponse struct {
	Disposition forwarder.Disposition `json:"disposition"`
	OrderingKey string                `json:"ordering_key"`
	DedupKey    string                `json:"dedup_key"`
	Duplicate   bool                  `json:"duplicate,omitempty"`
	Partition   int32                 `json:"partition"`
	Offset      int64                 `json:"offset"`
}

// forward answers 202 when queued, 429 with Retry-After when the entity is
// over its rate, and the payload or queue error otherwise
func (s *Server) forward(fwd *forwarder.QueueForwarder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p forwarder.Payload
		if err := c.ShouldBindJSON(&p); err != nil {
			httpx.HandleError(c, s.logger, httpx.ErrBadRequest.Wrap(err))
			return
		}

		out := fwd.Process(c.Request.Context(), p)
		switch out.Disposition {
		case forwarder.Forwarded:
			httpx.JSON(c, http.StatusAccepted, ForwardResponse{
				Disposition: out.Disposition,
				OrderingKey: out.OrderingKey,
				DedupKey:    out.DedupKey,
				Duplicate:   out.Receipt.Duplicate,
				Partition:   out.Receipt.Partition,
				Offset:      out.Receipt.Offset,
			})
		case forwarder.Delayed:
			c.Header(middleware.HeaderRetryAfter, strconv.FormatInt(out.RetryAfter, 10))
			httpx.HandleError(c, s.logger, limiter.ErrRateLimitExceeded.
				WithData("retry_after", out.RetryAfter).
				WithData("ordering_key", out.OrderingKey))
		default:
			err := out.Err
			if err == nil {
				err = forwarder.ErrQueueSendFailure
			}
			httpx.HandleError(c, s.logger, err)
		}
	}
}
