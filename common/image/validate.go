// Package image validates inline image payloads against plan-dependent size
// caps. Decoded size is derived from the base64 length; payloads are never
// decoded just to be measured.
package image

import (
	"encoding/base64"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
)

// MaxInlineImageBytes returns the inline image cap for a plan.
func MaxInlineImageBytes(plan string) int64 {
	mb := config.MaxInlineImageSizeMBFree
	switch plan {
	case "pro", "enterprise":
		mb = config.MaxInlineImageSizeMBPro
	}
	return int64(mb) * 1024 * 1024
}

// ValidateInlineBase64 rejects base64 payloads whose decoded size exceeds
// the plan cap. base64Data is the payload without the data URL prefix.
func ValidateInlineBase64(base64Data, plan string) error {
	maxBytes := MaxInlineImageBytes(plan)
	if int64(base64.StdEncoding.DecodedLen(len(base64Data))) > maxBytes {
		return errors.Errorf("image size should not exceed %dMB", maxBytes/(1024*1024))
	}
	return nil
}

// ValidateDataURL applies the plan cap to a full data URL; non-data URLs
// pass through untouched.
func ValidateDataURL(url, plan string) error {
	if !strings.HasPrefix(url, "data:") {
		return nil
	}
	_, payload, found := strings.Cut(url, ";base64,")
	if !found {
		return errors.New("malformed image data URL")
	}
	return ValidateInlineBase64(payload, plan)
}
