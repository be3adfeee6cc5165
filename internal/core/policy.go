package core

// Policy switches invariants that stored data is not required to satisfy by
// default. Both are off unless configured.
type Policy struct {
	// CapSavingsAtTarget rejects a savings goal whose current amount exceeds
	// its target amount.
	CapSavingsAtTarget bool
	// EnforceAmountSign requires income amounts to be positive and expense
	// amounts to be negative.
	EnforceAmountSign bool
}
