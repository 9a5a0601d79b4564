package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/dispatch"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/jobs"
	"github.com/ajayykmr/sms-gateway/internal/models"
	"github.com/ajayykmr/sms-gateway/internal/observability/requestid"
	"github.com/ajayykmr/sms-gateway/internal/util"
)

type messagesAPI struct {
	engines func() *dispatch.Engine
	logger  zerolog.Logger
	maxBody int64
}

// send handles POST /v1/messages. Messages with send_at, or queued by
// request or configuration, answer 202 with the job id; others are sent
// synchronously and answer 200 with the deliveries.
func (a *messagesAPI) send(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSendRequest(http.MaxBytesReader(w, r.Body, a.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, models.SendResponse{Status: models.SendStatusFailed, Error: "request body too large"})
			return
		}
		a.fail(w, r, "", nil, errs.Validation("invalid request body: %v", err))
		return
	}

	engine := a.engines()
	if req.Provider != "" {
		engine.UseProvider(req.Provider)
	}
	if err := build(engine, req); err != nil {
		a.fail(w, r, req.Provider, nil, err)
		return
	}

	if req.SendAt != "" {
		at, err := util.ParseRFC3339(req.SendAt)
		if err != nil {
			a.fail(w, r, req.Provider, nil, errs.InvalidValue("send_at", req.SendAt, "must be an RFC3339 timestamp"))
			return
		}
		job, err := engine.SendLaterAt(r.Context(), at)
		if err != nil {
			a.fail(w, r, req.Provider, nil, err)
			return
		}
		writeJSON(w, http.StatusAccepted, queued(job))
		return
	}

	queue := engine.QueueByDefault()
	if req.Queue != nil {
		queue = *req.Queue
	}
	if queue {
		job, err := engine.SendLater(r.Context())
		if err != nil {
			a.fail(w, r, req.Provider, nil, err)
			return
		}
		writeJSON(w, http.StatusAccepted, queued(job))
		return
	}

	res, err := engine.SendNow(r.Context())
	if err != nil {
		a.fail(w, r, req.Provider, res, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SendResponse{
		Status:     models.SendStatusSent,
		Provider:   res.Provider,
		Deliveries: deliveries(res),
	})
}

func decodeSendRequest(body io.Reader) (models.SendRequest, error) {
	var req models.SendRequest
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, err
	}
	req.Provider = strings.TrimSpace(req.Provider)
	return req, nil
}

func build(engine *dispatch.Engine, req models.SendRequest) error {
	if len(req.To) == 0 {
		return errs.Validation("at least one recipient is required")
	}
	if err := engine.To(req.To...); err != nil {
		return err
	}
	if req.Text != "" {
		if err := engine.Text(req.Text); err != nil {
			return err
		}
	}
	if req.TemplateID != "" {
		if err := engine.Template(req.TemplateID, req.Variables); err != nil {
			return err
		}
	}
	return nil
}

func (a *messagesAPI) fail(w http.ResponseWriter, r *http.Request, provider string, res *common.SendResult, err error) {
	status := statusFor(err)
	event := a.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = a.logger.Error()
	}
	event.
		Str("request_id", requestid.FromContext(r.Context())).
		Str("provider", provider).
		Str("error_kind", errs.Kind(err)).
		Int("status", status).
		Err(err).
		Msg("send request failed")

	resp := models.SendResponse{
		Status:     models.SendStatusFailed,
		Provider:   provider,
		Error:      err.Error(),
		ErrorKind:  errs.Kind(err),
		Deliveries: deliveries(res),
	}
	if res != nil && res.Provider != "" {
		resp.Provider = res.Provider
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, errs.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrNetwork):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func queued(job *jobs.Job) models.SendResponse {
	return models.SendResponse{
		Status:   models.SendStatusQueued,
		Provider: job.Provider,
		JobID:    job.ID,
		SendAt:   job.NotBefore,
	}
}

func deliveries(res *common.SendResult) []models.Delivery {
	if res == nil || len(res.Deliveries) == 0 {
		return nil
	}
	out := make([]models.Delivery, 0, len(res.Deliveries))
	for _, d := range res.Deliveries {
		out = append(out, models.Delivery{Recipient: d.Recipient, ProviderMessageID: d.ProviderMessageID})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
