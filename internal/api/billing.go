package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"

	"assetintel/internal/repository"
)

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID       string `json:"id"`
			Customer string `json:"customer"`
			Status   string `json:"status"`
			Items    struct {
				Data []struct {
					Price struct {
						ID string `json:"id"`
					} `json:"price"`
				} `json:"data"`
			} `json:"items"`
		} `json:"object"`
	} `json:"data"`
}

// handleBillingWebhook ingests subscription lifecycle events. The event id is
// recorded before any side effect so redelivered events are no-ops, and plan
// updates carry the event timestamp so late arrivals cannot roll a tenant
// back to an older plan.
func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var ev stripeEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.ID == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	if err := s.repo.InsertStripeEvent(r.Context(), ev.ID, ev.Type, ev.Created); err != nil {
		if errors.Is(err, repository.ErrDuplicateEvent) {
			writeAPIResponse(w, map[string]interface{}{"received": true, "duplicate": true}, nil, nil)
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	switch ev.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		s.applySubscription(r, &ev, planFromEvent(&ev))
	case "customer.subscription.deleted":
		s.applySubscription(r, &ev, "free")
	default:
		// Unhandled event types are acknowledged and dropped.
	}

	writeAPIResponse(w, map[string]interface{}{"received": true}, nil, nil)
}

func (s *Server) applySubscription(r *http.Request, ev *stripeEvent, plan string) {
	if ev.Data.Object.Customer == "" || plan == "" {
		return
	}
	orgID, err := s.repo.FindOrgByStripeCustomer(r.Context(), ev.Data.Object.Customer)
	if err != nil {
		log.Printf("[billing] event %s: unknown customer %s", ev.ID, ev.Data.Object.Customer)
		return
	}

	var subID *string
	if ev.Data.Object.ID != "" {
		subID = &ev.Data.Object.ID
	}
	applied, err := s.repo.ApplyPlanUpdate(r.Context(), orgID, plan, &ev.Data.Object.Customer, subID, ev.Created)
	if err != nil {
		log.Printf("[billing] event %s: plan update failed: %v", ev.ID, err)
		return
	}
	if !applied {
		log.Printf("[billing] event %s: stale, plan unchanged", ev.ID)
		return
	}
	log.Printf("[billing] org %s moved to plan %q (event %s)", orgID, plan, ev.ID)
}

// planFromEvent maps the subscription's price id onto a plan name via the
// STRIPE_PRICE_ID_PRO / STRIPE_PRICE_ID_TEAM environment mapping.
func planFromEvent(ev *stripeEvent) string {
	if len(ev.Data.Object.Items.Data) == 0 {
		return ""
	}
	priceID := ev.Data.Object.Items.Data[0].Price.ID
	switch priceID {
	case "":
		return ""
	case os.Getenv("STRIPE_PRICE_ID_PRO"):
		return "pro"
	case os.Getenv("STRIPE_PRICE_ID_TEAM"):
		return "team"
	}
	return ""
}
