package billing

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/reconcile"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// webhook answers with the raw reconcile.Result, rejections included. Any
// non-2xx makes the gateway redeliver.
func (m *Module) webhook(w http.ResponseWriter, r *http.Request) {
	if err := m.webhooks.Authenticate(r.Header.Get(asaas.WebhookTokenHeader)); err != nil {
		m.rejectWebhook(w, r, http.StatusUnauthorized, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, m.cfg.MaxBodyBytes))
	if err != nil {
		m.rejectWebhook(w, r, http.StatusBadRequest, err)
		return
	}
	ev, err := asaas.ParseWebhookEvent(body)
	if err != nil {
		m.rejectWebhook(w, r, http.StatusBadRequest, err)
		return
	}

	res, err := m.webhooks.Handle(r.Context(), ev)
	if err != nil {
		he := toHTTPError(err)
		if he.Code < http.StatusInternalServerError {
			he = ErrInternalServerError
		}
		m.log.ErrorContext(r.Context(), "webhook not applied", logger.Event(ev.Event), logger.Error(err))
		writeResult(w, he.Code, reconcile.Result{OK: false, Action: res.Action})
		return
	}
	writeResult(w, http.StatusOK, res)
}

func (m *Module) rejectWebhook(w http.ResponseWriter, r *http.Request, status int, err error) {
	m.log.WarnContext(r.Context(), "webhook rejected", slog.Int("status", status), logger.Error(err))
	writeResult(w, status, reconcile.Result{OK: false})
}

func (m *Module) listPlans(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, plansView())
}

func (m *Module) quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(w, r, m.cfg.MaxBodyBytes, &req); err != nil {
		respondError(w, r, m.log, err)
		return
	}
	target, err := plan.Parse(req.TargetPlan)
	if err != nil {
		respondError(w, r, m.log, err)
		return
	}

	q, err := m.svc.QuoteChange(r.Context(), uuid.MustParse(req.UserID), target)
	if err != nil {
		respondError(w, r, m.log, err)
		return
	}
	respond(w, http.StatusOK, q)
}

func (m *Module) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := decodeJSON(w, r, m.cfg.MaxBodyBytes, &req); err != nil {
		respondError(w, r, m.log, err)
		return
	}
	p, err := plan.Parse(req.Plan)
	if err != nil {
		respondError(w, r, m.log, err)
		return
	}

	opts := subscription.CreateOptions{
		ChatID:      req.ChatID,
		BillingType: asaas.BillingType(req.BillingType),
	}
	if req.UserID != "" {
		opts.UserID = uuid.MustParse(req.UserID)
	}
	if req.NextDueDate != "" {
		due, _ := time.Parse(time.DateOnly, req.NextDueDate)
		opts.NextDueDate = &due
	}

	res, err := m.svc.CreateSubscription(r.Context(), p, req.CustomerID, opts)
	if err != nil {
		respondError(w, r, m.log, err)
		return
	}

	out := createSubscriptionResponse{
		PixPending: res.PixPending(),
		Payment:    newPaymentView(res.Payment),
		Pix:        newPixView(res.Pix),
	}
	if sub := res.Subscription; sub != nil {
		out.SubscriptionID = sub.ID
		out.Status = sub.Status
		out.BillingType = sub.BillingType
		out.Cycle = sub.Cycle
		out.Value = sub.Amount()
		if !sub.NextDueDate.IsZero() {
			out.NextDueDate = sub.NextDueDate.String()
		}
	}
	if res.State != nil {
		out.State = newStateView(*res.State, m.now())
	}
	respond(w, http.StatusCreated, out)
}

func (m *Module) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	subID := chi.URLParam(r, "subscriptionID")
	days, err := m.svc.CancelSubscription(r.Context(), subID, r.URL.Query().Get("chat_id"))
	if err != nil {
		respondError(w, r, m.log, err)
		return
	}
	respond(w, http.StatusOK, cancelResponse{SubscriptionID: subID, DaysRemaining: days})
}

func (m *Module) profile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondError(w, r, m.log, err)
		return
	}
	st, err := m.svc.Profile(r.Context(), userID)
	if err != nil {
		respondError(w, r, m.log, err)
		return
	}
	respond(w, http.StatusOK, newStateView(st, m.now()))
}

func (m *Module) changePlan(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondError(w, r, m.log, err)
		return
	}
	var req changePlanRequest
	if err := decodeJSON(w, r, m.cfg.MaxBodyBytes, &req); err != nil {
		respondError(w, r, m.log, err)
		return
	}
	target, err := plan.Parse(req.TargetPlan)
	if err != nil {
		respondError(w, r, m.log, err)
		return
	}

	res, err := m.svc.ChangePlan(r.Context(), userID, target, req.CustomerID, subscription.ChangeOptions{
		BillingType: asaas.BillingType(req.BillingType),
	})
	if err != nil {
		respondError(w, r, m.log, err)
		return
	}

	status := http.StatusOK
	if res.Status == subscription.ChangeWaitingPayment {
		status = http.StatusAccepted
	}
	respond(w, status, changePlanResponse{
		Status:  res.Status,
		Quote:   res.Quote,
		State:   newStateView(res.State, m.now()),
		Payment: newPaymentView(res.Payment),
		Pix:     newPixView(res.Pix),
	})
}

func (m *Module) syncPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	p, action, err := m.syncer.SyncPayment(r.Context(), paymentID)
	if err != nil {
		respondError(w, r, m.log, err)
		return
	}
	respond(w, http.StatusOK, syncResponse{PaymentID: p.ID, Status: p.Status, Action: action})
}

func userIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		return uuid.Nil, ValidationError{"user_id": {"uuid"}}
	}
	return id, nil
}
