package warehouses

import (
	"fmt"
	"strings"

	"github.com/meridian-ims/meridian/internal/platform/httpx"
)

func (s *Service) validate(w Warehouse) error {
	if strings.TrimSpace(w.Code) == "" {
		return fmt.Errorf("%w: warehouse code is required", httpx.ErrValidation)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: warehouse name is required", httpx.ErrValidation)
	}
	return nil
}
