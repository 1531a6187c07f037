package models

// Role represents user roles in the system
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleManager          Role = "manager"
	RoleSupervisor       Role = "supervisor"
	RoleFuelOrderMaker   Role = "fuel_order_maker"
	RoleYardPersonnel    Role = "yard_personnel"
	RoleStationAttendant Role = "station_attendant"
	RoleViewer           Role = "viewer"
)

// Actions checked by RequirePermission.
const (
	ActionViewRecords      = "view_records"
	ActionCreateOrder      = "create_order"
	ActionAmendRecord      = "amend_record"
	ActionCancelRecord     = "cancel_record"
	ActionEnterLPO         = "enter_lpo"
	ActionEnterYard        = "enter_yard_dispense"
	ActionLinkPending      = "link_pending"
	ActionViewNotification = "view_notifications"
)

// Audience is who a deficiency notice is phrased for.
type Audience string

const (
	AudienceAdmin    Audience = "admin"
	AudienceOperator Audience = "operator"
	AudienceNone     Audience = "none"
)

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleSupervisor, RoleFuelOrderMaker,
		RoleYardPersonnel, RoleStationAttendant, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if the role may perform an action
func (r Role) HasPermission(action string) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleManager:
		return action != ActionEnterYard && action != ActionEnterLPO
	case RoleSupervisor:
		return action == ActionViewRecords || action == ActionAmendRecord ||
			action == ActionLinkPending || action == ActionViewNotification ||
			action == ActionCreateOrder
	case RoleFuelOrderMaker:
		return action == ActionViewRecords || action == ActionCreateOrder ||
			action == ActionEnterLPO || action == ActionAmendRecord ||
			action == ActionViewNotification
	case RoleYardPersonnel:
		return action == ActionEnterYard || action == ActionViewRecords
	case RoleStationAttendant:
		return action == ActionEnterLPO || action == ActionViewRecords
	case RoleViewer:
		return action == ActionViewRecords
	default:
		return false
	}
}

// NotificationAudience decides how a deficiency notice is phrased for the role.
func (r Role) NotificationAudience() Audience {
	switch r {
	case RoleAdmin, RoleManager:
		return AudienceAdmin
	case RoleSupervisor, RoleFuelOrderMaker:
		return AudienceOperator
	case RoleYardPersonnel, RoleStationAttendant, RoleViewer:
		return AudienceNone
	default:
		return AudienceNone
	}
}
