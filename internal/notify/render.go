package notify

import (
	"fmt"

	"github.com/ukydev/fleet-fuel/internal/models"
)

// Message is a notice phrased for one audience.
type Message struct {
	Audience models.Audience `json:"audience"`
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Action   string          `json:"action"`
}

// Render phrases a notice for the role. Roles outside both audiences get
// nothing.
func Render(n models.Notification, role models.Role) (Message, bool) {
	audience := role.NotificationAudience()
	switch audience {
	case models.AudienceAdmin:
		return Message{
			Audience: audience,
			Title:    title(n),
			Body:     fmt.Sprintf("%s for truck %s.", gap(n), n.TruckNumber),
			Action:   configureAction(n),
		}, true
	case models.AudienceOperator:
		return Message{
			Audience: audience,
			Title:    title(n),
			Body:     fmt.Sprintf("Fuel record for truck %s was created without %s.", n.TruckNumber, missing(n)),
			Action:   "Contact admin or edit the record manually.",
		}, true
	default:
		return Message{}, false
	}
}

func title(n models.Notification) string {
	switch n.Type {
	case models.NotifyMissingTotalLiters:
		return "Missing total liters"
	case models.NotifyMissingExtraFuel:
		return "Missing extra fuel"
	default:
		return "Missing total liters and extra fuel"
	}
}

func gap(n models.Notification) string {
	switch n.Type {
	case models.NotifyMissingTotalLiters:
		return fmt.Sprintf("No route configured for destination %s", n.Destination)
	case models.NotifyMissingExtraFuel:
		return fmt.Sprintf("No truck batch configured for suffix %s", n.TruckSuffix)
	default:
		return fmt.Sprintf("No route configured for destination %s and no truck batch for suffix %s",
			n.Destination, n.TruckSuffix)
	}
}

func missing(n models.Notification) string {
	switch n.Type {
	case models.NotifyMissingTotalLiters:
		return "a total liters allowance"
	case models.NotifyMissingExtraFuel:
		return "an extra fuel allowance"
	default:
		return "total liters or extra fuel allowances"
	}
}

func configureAction(n models.Notification) string {
	switch n.Type {
	case models.NotifyMissingTotalLiters:
		return fmt.Sprintf("Configure route %s.", n.Destination)
	case models.NotifyMissingExtraFuel:
		return fmt.Sprintf("Configure truck batch %s.", n.TruckSuffix)
	default:
		return fmt.Sprintf("Configure route %s and truck batch %s.", n.Destination, n.TruckSuffix)
	}
}
