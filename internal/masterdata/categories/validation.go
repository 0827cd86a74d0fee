package categories

import (
	"fmt"
	"strings"

	"github.com/meridian-ims/meridian/internal/platform/httpx"
)

func (s *Service) validate(c Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: category name is required", httpx.ErrValidation)
	}
	return nil
}
