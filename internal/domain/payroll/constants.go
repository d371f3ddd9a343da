package payroll

const (
	AdjustmentBonus          = "bonus"
	AdjustmentOtherDeduction = "other_deduction"

	FlagNegativeNetClamped    = "negative_net_clamped"
	FlagMissingPaymentDetails = "missing_payment_details"

	CommentFromLogs = "Generated from daily logs"
	CommentNoLogs   = "No daily logs recorded"

	commentSeparator = "; "
)

var AdjustmentKinds = []string{AdjustmentBonus, AdjustmentOtherDeduction}
