package controller

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/model"
)

// maxWebhookBody bounds the Stripe payload read.
const maxWebhookBody = 64 * 1024

// StripeWebhook ingests billing events and turns them into ledger rows. The
// ledger is idempotent on the payment-intent / invoice / refund id, so Stripe
// redeliveries are safe. Handler errors return 5xx to trigger redelivery;
// malformed events return 400 and are dropped.
func StripeWebhook(c *gin.Context) {
	lg := gmw.GetLogger(c)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	event, err := webhook.ConstructEvent(payload,
		c.GetHeader("Stripe-Signature"), config.StripeWebhookSecret)
	if err != nil {
		lg.Warn("stripe signature verification failed", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	if err := dispatchStripeEvent(c, &event); err != nil {
		lg.Error("handle stripe event",
			zap.String("type", string(event.Type)),
			zap.String("id", event.ID),
			zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func dispatchStripeEvent(c *gin.Context, event *stripe.Event) error {
	switch event.Type {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return err
		}
		return handleTopup(&intent)

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return err
		}
		if org := orgForIntent(&intent); org != nil {
			return model.RecordPaymentFailure(org.ID)
		}
		return nil

	case "setup_intent.succeeded":
		// Payment method saved; no ledger movement.
		return nil

	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return err
		}
		return handleCheckoutCompleted(&session)

	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return err
		}
		return handleInvoicePaid(&invoice)

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		if sub.CancelAtPeriodEnd {
			return handleSubscriptionEvent(&sub, event.ID,
				model.TxTypeSubscriptionCancel, model.TxTypeDevPlanCancel, "")
		}
		return nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		return handleSubscriptionEvent(&sub, event.ID,
			model.TxTypeSubscriptionEnd, model.TxTypeDevPlanEnd, model.PlanFree)

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return err
		}
		return handleRefund(&charge)

	default:
		gmw.GetLogger(c).Debug("stripe event ignored", zap.String("type", string(event.Type)))
		return nil
	}
}

func orgForIntent(intent *stripe.PaymentIntent) *model.Organization {
	if id := intent.Metadata["organization_id"]; id != "" {
		if org, err := model.GetOrganizationByID(id); err == nil {
			return org
		}
	}
	if intent.Customer != nil {
		if org, err := model.GetOrganizationByStripeCustomer(intent.Customer.ID); err == nil {
			return org
		}
	}
	return nil
}

func orgForCustomer(customer *stripe.Customer, metadata map[string]string) *model.Organization {
	if id := metadata["organization_id"]; id != "" {
		if org, err := model.GetOrganizationByID(id); err == nil {
			return org
		}
	}
	if customer != nil {
		if org, err := model.GetOrganizationByStripeCustomer(customer.ID); err == nil {
			return org
		}
	}
	return nil
}

func handleTopup(intent *stripe.PaymentIntent) error {
	org := orgForIntent(intent)
	if org == nil {
		// Not a gateway customer; fine to acknowledge.
		return nil
	}
	_, err := model.RecordTopup(org.ID, float64(intent.AmountReceived)/100,
		intent.ID, "credit purchase")
	return err
}

// handleCheckoutCompleted covers both one-time credit purchases and the two
// subscription flavors. Personal organizations only use the dev-plan path;
// the legacy plan path stays for the rest.
func handleCheckoutCompleted(session *stripe.CheckoutSession) error {
	org := orgForCustomer(session.Customer, session.Metadata)
	if org == nil {
		return nil
	}

	if session.Mode == stripe.CheckoutSessionModePayment {
		ref := session.ID
		if session.PaymentIntent != nil {
			ref = session.PaymentIntent.ID
		}
		_, err := model.RecordTopup(org.ID, float64(session.AmountTotal)/100,
			ref, "credit purchase")
		return err
	}

	// Subscription checkout.
	personal := session.Metadata["personal"] == "true"
	devPlan := session.Metadata["dev_plan"] == "true"
	if devPlan {
		allowance := planCreditAllowance(session.Metadata)
		_, err := model.RecordPlanEvent(org.ID, model.TxTypeDevPlanStart,
			session.ID, "dev plan started", model.PlanPro, allowance)
		return err
	}
	if personal {
		// Personal organizations skip the legacy subscription path.
		return nil
	}
	_, err := model.RecordPlanEvent(org.ID, model.TxTypeSubscriptionStart,
		session.ID, "subscription started", model.PlanPro, 0)
	return err
}

// handleInvoicePaid renews dev-plan credit allowances on each billing cycle.
func handleInvoicePaid(invoice *stripe.Invoice) error {
	org := orgForCustomer(invoice.Customer, invoice.Metadata)
	if org == nil {
		return nil
	}
	if invoice.Metadata["dev_plan"] != "true" {
		return nil
	}
	allowance := planCreditAllowance(invoice.Metadata)
	_, err := model.RecordPlanEvent(org.ID, model.TxTypeDevPlanRenewal,
		invoice.ID, "dev plan renewal", "", allowance)
	return err
}

func handleSubscriptionEvent(sub *stripe.Subscription, eventID, legacyType, devType, newPlan string) error {
	org := orgForCustomer(sub.Customer, sub.Metadata)
	if org == nil {
		return nil
	}
	txType := legacyType
	if sub.Metadata["dev_plan"] == "true" {
		txType = devType
	}
	_, err := model.RecordPlanEvent(org.ID, txType, eventID, "subscription lifecycle", newPlan, 0)
	return err
}

// handleRefund reverses the refunded fraction of a top-up. The refund id is
// the idempotency reference; the original payment intent links the rows.
func handleRefund(charge *stripe.Charge) error {
	org := orgForCustomer(charge.Customer, charge.Metadata)
	if org == nil && charge.PaymentIntent != nil {
		// Fall back to the organization of the original top-up row.
		if txn, err := model.GetTransactionByExternalRef(charge.PaymentIntent.ID); err == nil && txn != nil {
			if o, err := model.GetOrganizationByID(txn.OrganizationID); err == nil {
				org = o
			}
		}
	}
	if org == nil {
		return nil
	}

	originalRef := ""
	if charge.PaymentIntent != nil {
		originalRef = charge.PaymentIntent.ID
	}
	refundID := charge.ID + ":refund"
	if charge.Refunds != nil && len(charge.Refunds.Data) > 0 {
		refundID = charge.Refunds.Data[0].ID
	}
	_, err := model.RecordRefund(org.ID, float64(charge.AmountRefunded)/100,
		refundID, originalRef)
	return err
}

// planCreditAllowance reads the monthly credit grant from checkout metadata.
func planCreditAllowance(metadata map[string]string) float64 {
	raw := metadata["dev_plan_credits_limit"]
	if raw == "" {
		return 0
	}
	allowance, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return allowance
}
