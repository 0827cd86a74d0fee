package products

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSKU(t *testing.T) {
	require.Equal(t, "WID-001", NormalizeSKU("  wid-001 "))
	require.Equal(t, "WID-001", NormalizeSKU("ｗｉｄ－００１")) // fullwidth folds to ASCII
	require.Equal(t, "", NormalizeSKU("   "))
}

func TestValidateRejectsNegativePrice(t *testing.T) {
	svc := NewService(nil)
	err := svc.validate(Product{SKU: "WID-001", Name: "Widget", Price: -1})
	require.Error(t, err)
}
