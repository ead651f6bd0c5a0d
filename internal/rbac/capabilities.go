package rbac

import "context"

// Capability names checked by the HTTP layer. Operators receive asn.view,
// asn.edit and inventory.view; managers add asn.delete; supervisors add
// asn.override.
const (
	CapASNView     = "asn.view"
	CapASNEdit     = "asn.edit"
	CapASNDelete   = "asn.delete"
	CapASNOverride = "asn.override"
	CapInventory   = "inventory.view"
	CapPermissions = "permissions.view"
)

var capabilityCatalogue = map[string]string{
	CapASNView:     "View shipping notices and their lines",
	CapASNEdit:     "Create, edit, receive and process shipping notices",
	CapASNDelete:   "Soft-delete shipping notices",
	CapASNOverride: "Force shipping notice status outside the lifecycle",
	CapInventory:   "View inventory records",
	CapPermissions: "View the capability catalogue",
}

// RegisterCapabilities upserts the capability catalogue so fresh
// deployments can attach them to roles.
func (s *Service) RegisterCapabilities(ctx context.Context) error {
	for name, description := range capabilityCatalogue {
		if _, err := s.EnsurePermission(ctx, name, description); err != nil {
			return err
		}
	}
	return nil
}
