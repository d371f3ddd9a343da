package org

const (
	PositionManager          = "manager"
	PositionAssistantManager = "assistant_manager"
	PositionCashier          = "cashier"
	PositionITTechnician     = "it_technician"
	PositionSecurity         = "security"
	PositionCleaner          = "cleaner"
	PositionBiker            = "biker"
	PositionCallCenterAgent  = "call_center_agent"

	UnknownLabel = "Unknown"
)

var Positions = []string{
	PositionManager,
	PositionAssistantManager,
	PositionCashier,
	PositionITTechnician,
	PositionSecurity,
	PositionCleaner,
	PositionBiker,
	PositionCallCenterAgent,
}

var positionLabels = map[string]string{
	PositionManager:          "Manager",
	PositionAssistantManager: "Assistant Manager",
	PositionCashier:          "Cashier",
	PositionITTechnician:     "IT Technician",
	PositionSecurity:         "Security",
	PositionCleaner:          "Cleaner",
	PositionBiker:            "Biker",
	PositionCallCenterAgent:  "Call Center Agent",
}

// PositionLabel never fails; unmapped positions read as Unknown.
func PositionLabel(position string) string {
	if label, ok := positionLabels[position]; ok {
		return label
	}
	return UnknownLabel
}
