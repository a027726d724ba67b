package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/model"
)

const testWebhookSecret = "whsec_test_secret"

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Organization{}, &model.Project{}, &model.ApiKey{},
		&model.ProviderCredential{}, &model.Transaction{}, &model.RequestCost{},
		&model.RequestLog{},
	))
	prev := model.DB
	model.DB = db
	t.Cleanup(func() { model.DB = prev })
}

// signedWebhookRequest wraps an event payload with a valid Stripe signature.
func signedWebhookRequest(t *testing.T, eventType string, object any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_" + t.Name(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)

	now := time.Now()
	signature := webhook.ComputeSignature(now, payload, testWebhookSecret)
	header := fmt.Sprintf("t=%d,v1=%x", now.Unix(), signature)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	c.Request.Header.Set("Stripe-Signature", header)
	return c, w
}

func withWebhookSecret(t *testing.T) {
	t.Helper()
	prev := config.StripeWebhookSecret
	config.StripeWebhookSecret = testWebhookSecret
	t.Cleanup(func() { config.StripeWebhookSecret = prev })
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	setupTestDB(t)
	withWebhookSecret(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/stripe",
		bytes.NewReader([]byte(`{}`)))
	c.Request.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	StripeWebhook(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhookTopup(t *testing.T) {
	setupTestDB(t)
	withWebhookSecret(t)
	require.NoError(t, model.DB.Create(&model.Organization{ID: "org-1"}).Error)

	intent := map[string]any{
		"id":              "pi_1",
		"amount_received": 2000,
		"metadata":        map[string]string{"organization_id": "org-1"},
	}
	c, w := signedWebhookRequest(t, "payment_intent.succeeded", intent)
	StripeWebhook(c)
	require.Equal(t, http.StatusOK, w.Code)

	org, err := model.GetOrganizationByID("org-1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, org.Credits)

	// Redelivery of the same payment intent must not double-credit.
	c, w = signedWebhookRequest(t, "payment_intent.succeeded", intent)
	StripeWebhook(c)
	require.Equal(t, http.StatusOK, w.Code)

	org, err = model.GetOrganizationByID("org-1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, org.Credits)

	var count int64
	require.NoError(t, model.DB.Model(&model.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStripeWebhookRefund(t *testing.T) {
	setupTestDB(t)
	withWebhookSecret(t)
	require.NoError(t, model.DB.Create(&model.Organization{
		ID: "org-1", StripeCustomerID: "cus_1",
	}).Error)

	_, err := model.RecordTopup("org-1", 20, "pi_orig", "credit purchase")
	require.NoError(t, err)

	charge := map[string]any{
		"id":              "ch_1",
		"amount_refunded": 1000,
		"customer":        map[string]any{"id": "cus_1"},
		"payment_intent":  map[string]any{"id": "pi_orig"},
		"refunds": map[string]any{
			"data": []map[string]any{{"id": "re_1"}},
		},
	}
	c, w := signedWebhookRequest(t, "charge.refunded", charge)
	StripeWebhook(c)
	require.Equal(t, http.StatusOK, w.Code)

	org, err := model.GetOrganizationByID("org-1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, org.Credits)

	var refund model.Transaction
	require.NoError(t, model.DB.First(&refund, "type = ?", model.TxTypeCreditRefund).Error)
	assert.Equal(t, -10.0, refund.CreditAmount)
	assert.Equal(t, 10.0, refund.AmountUSD)

	// A second delivery of the same refund changes nothing.
	c, w = signedWebhookRequest(t, "charge.refunded", charge)
	StripeWebhook(c)
	require.Equal(t, http.StatusOK, w.Code)

	org, err = model.GetOrganizationByID("org-1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, org.Credits)
}

func TestStripeWebhookPaymentFailed(t *testing.T) {
	setupTestDB(t)
	withWebhookSecret(t)
	require.NoError(t, model.DB.Create(&model.Organization{ID: "org-1"}).Error)

	intent := map[string]any{
		"id":       "pi_fail",
		"metadata": map[string]string{"organization_id": "org-1"},
	}
	c, w := signedWebhookRequest(t, "payment_intent.payment_failed", intent)
	StripeWebhook(c)
	require.Equal(t, http.StatusOK, w.Code)

	org, err := model.GetOrganizationByID("org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, org.PaymentFailures)
	assert.Equal(t, 0.0, org.Credits)
}

func TestStripeWebhookDevPlanCheckout(t *testing.T) {
	setupTestDB(t)
	withWebhookSecret(t)
	require.NoError(t, model.DB.Create(&model.Organization{
		ID: "org-1", StripeCustomerID: "cus_1", Plan: model.PlanFree,
	}).Error)

	session := map[string]any{
		"id":       "cs_1",
		"mode":     "subscription",
		"customer": map[string]any{"id": "cus_1"},
		"metadata": map[string]string{
			"dev_plan":               "true",
			"dev_plan_credits_limit": "25",
		},
	}
	c, w := signedWebhookRequest(t, "checkout.session.completed", session)
	StripeWebhook(c)
	require.Equal(t, http.StatusOK, w.Code)

	org, err := model.GetOrganizationByID("org-1")
	require.NoError(t, err)
	assert.Equal(t, model.PlanPro, org.Plan)
	assert.Equal(t, 25.0, org.Credits)

	var txn model.Transaction
	require.NoError(t, model.DB.First(&txn, "type = ?", model.TxTypeDevPlanStart).Error)
}

func TestStripeWebhookPersonalOrgSkipsLegacyPath(t *testing.T) {
	setupTestDB(t)
	withWebhookSecret(t)
	require.NoError(t, model.DB.Create(&model.Organization{
		ID: "org-1", StripeCustomerID: "cus_1",
	}).Error)

	session := map[string]any{
		"id":       "cs_personal",
		"mode":     "subscription",
		"customer": map[string]any{"id": "cus_1"},
		"metadata": map[string]string{"personal": "true"},
	}
	c, w := signedWebhookRequest(t, "checkout.session.completed", session)
	StripeWebhook(c)
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, model.DB.Model(&model.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestStripeWebhookIgnoresUnknownEvent(t *testing.T) {
	setupTestDB(t)
	withWebhookSecret(t)

	c, w := signedWebhookRequest(t, "customer.created", map[string]any{"id": "cus_x"})
	StripeWebhook(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
