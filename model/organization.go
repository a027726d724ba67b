package model

import (
	"strings"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/shinmentakezo07/shinway-sub001/relay/providerid"
)

// Plans an organization can be on.
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Organization is the billing boundary. Credits move only through the ledger
// path; a failed charge never decrements them.
type Organization struct {
	ID   string `json:"id" gorm:"primaryKey;size:64"`
	Name string `json:"name" gorm:"size:128"`
	Plan string `json:"plan" gorm:"size:32;default:free"`

	// Credits is the USD balance.
	Credits         float64 `json:"credits"`
	PaymentFailures int     `json:"payment_failures"`
	SpendCapUSD     float64 `json:"spend_cap_usd"`

	BYOKEnabled      bool   `json:"byok_enabled"`
	AllowedProviders string `json:"allowed_providers" gorm:"size:512"` // comma-separated; empty = all

	EmailVerified    bool   `json:"email_verified"`
	StripeCustomerID string `json:"stripe_customer_id" gorm:"size:64;index"`

	CreatedAt int64          `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt int64          `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// GetOrganizationByID loads one organization; deleted rows are invisible.
func GetOrganizationByID(id string) (*Organization, error) {
	if id == "" {
		return nil, errors.New("organization id is empty")
	}
	var org Organization
	if err := DB.First(&org, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "load organization %s", id)
	}
	return &org, nil
}

// GetOrganizationByStripeCustomer maps a Stripe customer id back to its
// organization; billing webhooks carry the customer, not our id.
func GetOrganizationByStripeCustomer(customerID string) (*Organization, error) {
	if customerID == "" {
		return nil, errors.New("stripe customer id is empty")
	}
	var org Organization
	if err := DB.First(&org, "stripe_customer_id = ?", customerID).Error; err != nil {
		return nil, errors.Wrapf(err, "load organization for customer %s", customerID)
	}
	return &org, nil
}

// ProviderAllowed applies the allow-list; an empty list allows everything.
func (o *Organization) ProviderAllowed(provider providerid.ID) bool {
	if o.AllowedProviders == "" {
		return true
	}
	for _, allowed := range strings.Split(o.AllowedProviders, ",") {
		if strings.TrimSpace(allowed) == string(provider) {
			return true
		}
	}
	return false
}

// HasCredits reports whether hosted-mode relay may proceed.
func (o *Organization) HasCredits() bool {
	return o.Credits > 0 || o.Plan == PlanEnterprise
}

// addCredits moves the balance inside an open transaction.
func addCredits(tx *gorm.DB, orgID string, delta float64) error {
	result := tx.Model(&Organization{}).
		Where("id = ?", orgID).
		Update("credits", gorm.Expr("credits + ?", delta))
	if result.Error != nil {
		return errors.Wrapf(result.Error, "adjust credits for %s", orgID)
	}
	if result.RowsAffected == 0 {
		return errors.Errorf("organization %s not found", orgID)
	}
	return nil
}
