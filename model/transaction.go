package model

import (
	"math/rand"
	"time"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/logger"
)

// Transaction types. Subscription and dev-plan lifecycles are distinct:
// personal organizations use the dev-plan path, the legacy subscription path
// stays for everyone else.
const (
	TxTypeCreditTopup        = "credit_topup"
	TxTypeCreditRefund       = "credit_refund"
	TxTypeSubscriptionStart  = "subscription_start"
	TxTypeSubscriptionCancel = "subscription_cancel"
	TxTypeSubscriptionEnd    = "subscription_end"
	TxTypeDevPlanStart       = "dev_plan_start"
	TxTypeDevPlanRenewal     = "dev_plan_renewal"
	TxTypeDevPlanCancel      = "dev_plan_cancel"
	TxTypeDevPlanEnd         = "dev_plan_end"
)

// Transaction statuses.
const (
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// Transaction is one append-only ledger record. Rows are never mutated;
// corrections are new rows linked through RelatedTransactionID.
type Transaction struct {
	ID             string `json:"id" gorm:"primaryKey;size:64"`
	OrganizationID string `json:"organization_id" gorm:"size:64;index"`
	Type           string `json:"type" gorm:"size:32;index"`

	// AmountUSD is the money amount, CreditAmount the credit delta applied to
	// the organization (negative for refunds).
	AmountUSD    float64 `json:"amount_usd"`
	CreditAmount float64 `json:"credit_amount"`
	Currency     string  `json:"currency" gorm:"size:8;default:usd"`
	Status       string  `json:"status" gorm:"size:16"`

	// ExternalRef holds the Stripe payment-intent, invoice, or refund id that
	// produced this row; the unique index makes redelivered events no-ops.
	ExternalRef          string `json:"external_ref" gorm:"size:128;uniqueIndex"`
	Description          string `json:"description" gorm:"size:256"`
	RelatedTransactionID string `json:"related_transaction_id" gorm:"size:64"`

	CreatedAt int64 `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
}

// GetTransactionByExternalRef returns the existing row for a Stripe reference,
// or nil when the event has not been seen.
func GetTransactionByExternalRef(ref string) (*Transaction, error) {
	var txn Transaction
	err := DB.First(&txn, "external_ref = ?", ref).Error
	if err == nil {
		return &txn, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, errors.Wrapf(err, "look up transaction %s", ref)
}

// RecordTopup applies a completed credit purchase: one ledger row, a credit
// increment, and — on the organization's very first top-up with a verified
// email — a capped bonus. Redelivery of the same payment reference returns the
// original row without moving credits again.
func RecordTopup(orgID string, amountUSD float64, externalRef, description string) (*Transaction, error) {
	if externalRef == "" {
		return nil, errors.New("external reference is empty")
	}
	if existing, err := GetTransactionByExternalRef(externalRef); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	org, err := GetOrganizationByID(orgID)
	if err != nil {
		return nil, err
	}
	bonus, err := topupBonus(org, amountUSD)
	if err != nil {
		return nil, err
	}

	txn := &Transaction{
		ID:             gutils.UUID7(),
		OrganizationID: orgID,
		Type:           TxTypeCreditTopup,
		AmountUSD:      amountUSD,
		CreditAmount:   amountUSD + bonus,
		Status:         TxStatusCompleted,
		ExternalRef:    externalRef,
		Description:    description,
	}
	err = DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(txn).Error; err != nil {
			// A concurrent delivery may have inserted the same reference.
			if existing, lookupErr := GetTransactionByExternalRef(externalRef); lookupErr == nil && existing != nil {
				*txn = *existing
				return nil
			}
			return errors.Wrap(err, "insert topup transaction")
		}
		return addCredits(tx, orgID, txn.CreditAmount)
	})
	if err != nil {
		return nil, err
	}
	if bonus > 0 {
		logger.Logger.Info("first-topup bonus granted",
			zap.String("organization", orgID), zap.Float64("bonus", bonus))
	}
	return txn, nil
}

// topupBonus computes the first-purchase bonus: zero unless this is the
// organization's first completed top-up, its email is verified, and the
// multiplier exceeds 1. The grant is capped.
func topupBonus(org *Organization, amountUSD float64) (float64, error) {
	if !org.EmailVerified || config.FirstTimeCreditBonusMultiplier <= 1 {
		return 0, nil
	}
	var prior int64
	err := DB.Model(&Transaction{}).
		Where("organization_id = ? AND type = ? AND status = ?",
			org.ID, TxTypeCreditTopup, TxStatusCompleted).
		Count(&prior).Error
	if err != nil {
		return 0, errors.Wrap(err, "count prior topups")
	}
	if prior > 0 {
		return 0, nil
	}
	bonus := amountUSD * (config.FirstTimeCreditBonusMultiplier - 1)
	if bonus > config.FirstTimeCreditBonusCapUSD {
		bonus = config.FirstTimeCreditBonusCapUSD
	}
	return bonus, nil
}

// RecordRefund reverses part of an earlier top-up: a credit_refund row with a
// negative credit delta, linked to the original transaction when it can be
// found. Idempotent on the refund reference.
func RecordRefund(orgID string, amountUSD float64, externalRef, originalRef string) (*Transaction, error) {
	if externalRef == "" {
		return nil, errors.New("external reference is empty")
	}
	if existing, err := GetTransactionByExternalRef(externalRef); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	var relatedID string
	if originalRef != "" {
		if original, err := GetTransactionByExternalRef(originalRef); err == nil && original != nil {
			relatedID = original.ID
		}
	}

	txn := &Transaction{
		ID:                   gutils.UUID7(),
		OrganizationID:       orgID,
		Type:                 TxTypeCreditRefund,
		AmountUSD:            amountUSD,
		CreditAmount:         -amountUSD,
		Status:               TxStatusCompleted,
		ExternalRef:          externalRef,
		RelatedTransactionID: relatedID,
	}
	err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(txn).Error; err != nil {
			if existing, lookupErr := GetTransactionByExternalRef(externalRef); lookupErr == nil && existing != nil {
				*txn = *existing
				return nil
			}
			return errors.Wrap(err, "insert refund transaction")
		}
		return addCredits(tx, orgID, txn.CreditAmount)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// RecordPlanEvent appends a subscription or dev-plan lifecycle row and,
// when newPlan is non-empty, moves the organization onto it. creditAllowance
// is the monthly dev-plan grant (zero for the legacy subscription path).
func RecordPlanEvent(orgID, txType, externalRef, description, newPlan string, creditAllowance float64) (*Transaction, error) {
	if externalRef == "" {
		return nil, errors.New("external reference is empty")
	}
	if existing, err := GetTransactionByExternalRef(externalRef); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	txn := &Transaction{
		ID:             gutils.UUID7(),
		OrganizationID: orgID,
		Type:           txType,
		CreditAmount:   creditAllowance,
		Status:         TxStatusCompleted,
		ExternalRef:    externalRef,
		Description:    description,
	}
	err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(txn).Error; err != nil {
			if existing, lookupErr := GetTransactionByExternalRef(externalRef); lookupErr == nil && existing != nil {
				*txn = *existing
				return nil
			}
			return errors.Wrap(err, "insert plan transaction")
		}
		if newPlan != "" {
			if err := tx.Model(&Organization{}).
				Where("id = ?", orgID).
				Update("plan", newPlan).Error; err != nil {
				return errors.Wrap(err, "update plan")
			}
		}
		if creditAllowance != 0 {
			return addCredits(tx, orgID, creditAllowance)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// RecordPaymentFailure bumps the organization's failure counter; the billing
// collaborator reads it to decide dunning.
func RecordPaymentFailure(orgID string) error {
	err := DB.Model(&Organization{}).
		Where("id = ?", orgID).
		Update("payment_failures", gorm.Expr("payment_failures + 1")).Error
	return errors.Wrapf(err, "record payment failure for %s", orgID)
}

// RequestCost pins the charge of one relay request. The unique request id
// makes double-charging impossible when a usage record is replayed.
type RequestCost struct {
	ID             int     `json:"id"`
	RequestID      string  `json:"request_id" gorm:"size:64;uniqueIndex"`
	OrganizationID string  `json:"organization_id" gorm:"size:64;index"`
	CostUSD        float64 `json:"cost_usd"`
	CreatedAt      int64   `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt      int64   `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

// UpsertRequestCost records or corrects the cost for a request id without
// racing on the unique index: update first, create on miss, re-update when the
// create loses a race.
func UpsertRequestCost(orgID, requestID string, costUSD float64) error {
	if requestID == "" {
		return errors.New("request id is empty")
	}

	tx := DB.Model(&RequestCost{}).
		Where("request_id = ?", requestID).
		Update("cost_usd", costUSD)
	if tx.Error != nil {
		return errors.Wrap(tx.Error, "update request cost")
	}
	if tx.RowsAffected > 0 {
		return nil
	}

	row := &RequestCost{
		RequestID:      requestID,
		OrganizationID: orgID,
		CostUSD:        costUSD,
	}
	if err := DB.Create(row).Error; err == nil {
		return nil
	}
	if err := DB.Model(&RequestCost{}).
		Where("request_id = ?", requestID).
		Update("cost_usd", costUSD).Error; err != nil {
		return errors.Wrap(err, "update request cost after create race")
	}
	return nil
}

// ChargeUsage decrements credits and pins the request cost in one database
// transaction, retrying with jitter on conflicts. Calling it twice with the
// same request id charges once. A failed request must not call this at all.
func ChargeUsage(orgID, requestID string, costUSD float64) error {
	if costUSD <= 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < config.LedgerRetryTimes; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(rand.Intn(50)+10) * time.Millisecond)
		}
		lastErr = DB.Transaction(func(tx *gorm.DB) error {
			var existing RequestCost
			err := tx.First(&existing, "request_id = ?", requestID).Error
			if err == nil {
				return nil // already charged
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(err, "look up request cost")
			}
			if err := tx.Create(&RequestCost{
				RequestID:      requestID,
				OrganizationID: orgID,
				CostUSD:        costUSD,
			}).Error; err != nil {
				return errors.Wrap(err, "insert request cost")
			}
			return addCredits(tx, orgID, -costUSD)
		})
		if lastErr == nil {
			return nil
		}
	}
	return errors.Wrapf(lastErr, "charge usage for request %s", requestID)
}
