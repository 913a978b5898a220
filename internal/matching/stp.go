package matching

// STPPolicy selects the self-trade prevention behaviour applied when a
// taker would match against a maker owned by the same user, per §4.E.
//
// original_source has no self-trade prevention at all; Design Notes (§9)
// flag this as a gap the rewrite must fill, so this type and its four
// variants are a supplemented feature, not an adaptation of existing
// teacher/original code.
type STPPolicy int

const (
	// STPAllow lets the self-trade proceed normally. This is the default,
	// per §4.E.
	STPAllow STPPolicy = iota

	// STPCancelTaker cancels the remaining taker quantity the instant a
	// self-trade would occur, without touching the maker.
	STPCancelTaker

	// STPCancelMaker removes the conflicting maker from the book without a
	// trade and continues matching the taker against the next maker.
	STPCancelMaker

	// STPCancelBoth cancels the remaining taker quantity and removes the
	// conflicting maker, then stops matching.
	STPCancelBoth
)

func (p STPPolicy) String() string {
	switch p {
	case STPAllow:
		return "ALLOW"
	case STPCancelTaker:
		return "CANCEL_TAKER"
	case STPCancelMaker:
		return "CANCEL_MAKER"
	case STPCancelBoth:
		return "CANCEL_BOTH"
	default:
		return "UNKNOWN"
	}
}
