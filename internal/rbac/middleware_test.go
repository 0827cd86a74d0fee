package rbac

import "testing"

func TestNormalizePermissions(t *testing.T) {
	got := normalizePermissions([]string{" Stock.View ", "stock.view", "", "orders.EDIT"})
	set := make(map[string]struct{}, len(got))
	for _, p := range got {
		set[p] = struct{}{}
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 unique permissions, got %d (%v)", len(set), got)
	}
	if _, ok := set["stock.view"]; !ok {
		t.Fatal("stock.view missing")
	}
	if _, ok := set["orders.edit"]; !ok {
		t.Fatal("orders.edit missing")
	}
}

func TestHasAnyPermission(t *testing.T) {
	granted := []string{"stock.view", "orders.view"}
	if !hasAnyPermission(granted, []string{"orders.view"}) {
		t.Fatal("expected match")
	}
	if hasAnyPermission(granted, []string{"billing.edit"}) {
		t.Fatal("unexpected match")
	}
}

func TestHasAllPermissions(t *testing.T) {
	granted := []string{"stock.view", "stock.edit", "orders.view"}
	if !hasAllPermissions(granted, []string{"stock.view", "orders.view"}) {
		t.Fatal("expected all to match")
	}
	if hasAllPermissions(granted, []string{"stock.view", "billing.view"}) {
		t.Fatal("unexpected match")
	}
}
