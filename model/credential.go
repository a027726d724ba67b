package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/shinmentakezo07/shinway-sub001/common"
	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/relay/providerid"
)

// ProviderCredential is one upstream credential. OrganizationID is empty for
// gateway-managed pool entries and set for BYOK entries.
type ProviderCredential struct {
	ID             string `json:"id" gorm:"primaryKey;size:64"`
	OrganizationID string `json:"organization_id" gorm:"size:64;index"`
	Provider       string `json:"provider" gorm:"size:32;index"`
	Name           string `json:"name" gorm:"size:128"`

	APIKey  string `json:"-" gorm:"size:512"`
	BaseURL string `json:"base_url" gorm:"size:256"`

	AWSRegion    string `json:"aws_region" gorm:"size:64"`
	AWSAccessKey string `json:"-" gorm:"size:128"`
	AWSSecretKey string `json:"-" gorm:"size:128"`

	VertexProjectID   string `json:"vertex_project_id" gorm:"size:128"`
	VertexRegion      string `json:"vertex_region" gorm:"size:64"`
	VertexCredentials string `json:"-" gorm:"type:text"`

	Active bool `json:"active" gorm:"default:true"`
	// DegradedUntil is a unix-milli cooldown stamp; zero means healthy.
	DegradedUntil int64 `json:"degraded_until" gorm:"bigint"`

	CreatedAt int64          `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt int64          `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Secret fields are encrypted at rest; the hooks keep callers working in
// plaintext. AfterSave restores the receiver so a re-save never encrypts an
// already-encrypted value.

func (c *ProviderCredential) BeforeSave(*gorm.DB) error {
	return c.mapSecrets(common.EncryptSecret)
}

func (c *ProviderCredential) AfterSave(*gorm.DB) error {
	return c.mapSecrets(common.DecryptSecret)
}

func (c *ProviderCredential) AfterFind(*gorm.DB) error {
	return c.mapSecrets(common.DecryptSecret)
}

func (c *ProviderCredential) mapSecrets(fn func(string) (string, error)) error {
	for _, field := range []*string{&c.APIKey, &c.AWSSecretKey, &c.VertexCredentials} {
		mapped, err := fn(*field)
		if err != nil {
			return errors.Wrap(err, "transform credential secret")
		}
		*field = mapped
	}
	return nil
}

// Managed reports whether the credential belongs to the shared gateway pool.
func (c *ProviderCredential) Managed() bool {
	return c.OrganizationID == ""
}

// Degraded reports whether the credential is inside its failure cooldown.
func (c *ProviderCredential) Degraded() bool {
	return c.DegradedUntil > time.Now().UnixMilli()
}

// Usable reports whether routing may hand this credential out right now.
func (c *ProviderCredential) Usable() bool {
	return c.Active && !c.Degraded()
}

// GetCredentialsForProvider returns the candidate credentials for one
// provider: the organization's own entries (BYOK) followed by the gateway
// pool, so routing can prefer BYOK without a second query.
func GetCredentialsForProvider(provider providerid.ID, orgID string) ([]*ProviderCredential, error) {
	var creds []*ProviderCredential
	err := DB.
		Where("provider = ? AND active = ? AND (organization_id = ? OR organization_id = '')",
			string(provider), true, orgID).
		Order("organization_id DESC"). // org-owned sort before the ""-owned pool
		Find(&creds).Error
	if err != nil {
		return nil, errors.Wrapf(err, "load credentials for %s", provider)
	}
	return creds, nil
}

// GetBYOKProviders returns the set of providers the organization has its own
// active credentials for. The router prefers these over the managed pool.
func GetBYOKProviders(orgID string) (map[providerid.ID]bool, error) {
	if orgID == "" {
		return nil, nil
	}
	var providers []string
	err := DB.Model(&ProviderCredential{}).
		Where("organization_id = ? AND active = ?", orgID, true).
		Distinct("provider").
		Pluck("provider", &providers).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list byok providers for %s", orgID)
	}
	out := make(map[providerid.ID]bool, len(providers))
	for _, p := range providers {
		out[providerid.ID(p)] = true
	}
	return out, nil
}

// DegradedManagedProviders returns providers whose entire managed pool is
// inside its cooldown. Routing skips them for non-BYOK candidates.
func DegradedManagedProviders() (map[providerid.ID]bool, error) {
	var creds []ProviderCredential
	err := DB.
		Where("organization_id = '' AND active = ?", true).
		Find(&creds).Error
	if err != nil {
		return nil, errors.Wrap(err, "list managed credentials")
	}

	healthy := map[providerid.ID]bool{}
	seen := map[providerid.ID]bool{}
	for i := range creds {
		id := providerid.ID(creds[i].Provider)
		seen[id] = true
		if !creds[i].Degraded() {
			healthy[id] = true
		}
	}
	out := map[providerid.ID]bool{}
	for id := range seen {
		if !healthy[id] {
			out[id] = true
		}
	}
	return out, nil
}

// DegradeCredential sidelines a gateway-managed credential after an upstream
// auth or quota failure. BYOK credentials are never degraded; their failures
// belong to the owning organization.
func DegradeCredential(id string) error {
	until := time.Now().Add(config.CredentialDegradeCooldown).UnixMilli()
	err := DB.Model(&ProviderCredential{}).
		Where("id = ? AND organization_id = ''", id).
		Update("degraded_until", until).Error
	return errors.Wrapf(err, "degrade credential %s", id)
}

// ReviveCredential clears the cooldown, for admin intervention.
func ReviveCredential(id string) error {
	err := DB.Model(&ProviderCredential{}).
		Where("id = ?", id).
		Update("degraded_until", 0).Error
	return errors.Wrapf(err, "revive credential %s", id)
}
