package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Organization 客户组织
type Organization struct {
	ID   string
	Name string
	// Slug 全局唯一，出现在 URL 中
	Slug string
	// LicenseKey 该组织在上游的授权码，为空时不限定
	LicenseKey string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewOrganization 创建组织
func NewOrganization(name, slug, licenseKey string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("organization name is required")
	}
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Organization{
		ID:         "org_" + uuid.New().String(),
		Name:       name,
		Slug:       slug,
		LicenseKey: strings.TrimSpace(licenseKey),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ValidateSlug slug 只能由小写字母、数字和单个连字符组成
func ValidateSlug(slug string) error {
	if len(slug) == 0 || len(slug) > 64 || !slugPattern.MatchString(slug) {
		return errors.New("invalid organization slug: " + slug)
	}
	return nil
}
