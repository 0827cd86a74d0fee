package shared

// Permission names guarding the HTTP surface.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"

	PermCatalogView = "catalog.view"
	PermCatalogEdit = "catalog.edit"

	PermStockView = "stock.view"
	PermStockEdit = "stock.edit"

	PermOrdersView = "orders.view"
	PermOrdersEdit = "orders.edit"

	PermBillingView = "billing.view"
	PermBillingEdit = "billing.edit"

	PermCustomersView = "customers.view"
	PermCustomersEdit = "customers.edit"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
	}
}

// DomainScopes lists the inventory and order permissions.
func DomainScopes() []string {
	return []string{
		PermCatalogView,
		PermCatalogEdit,
		PermStockView,
		PermStockEdit,
		PermOrdersView,
		PermOrdersEdit,
		PermBillingView,
		PermBillingEdit,
		PermCustomersView,
		PermCustomersEdit,
	}
}
