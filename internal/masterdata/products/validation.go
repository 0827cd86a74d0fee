package products

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/meridian-ims/meridian/internal/platform/httpx"
)

// NormalizeSKU folds the SKU into a canonical uppercase form so lookups
// are insensitive to unicode compatibility variants.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(sku)))
}

func (s *Service) validate(p Product) error {
	if p.SKU == "" {
		return fmt.Errorf("%w: product SKU is required", httpx.ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", httpx.ErrValidation)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: product price must not be negative", httpx.ErrValidation)
	}
	return nil
}
