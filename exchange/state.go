package exchange

/* State is where a message stands inside one request
 * Follows the lifecycle: Received -> Validated -> WhitelistChecked ->
 * Persisted (inbound) or Delivered (outbound) -> Acknowledged, or Rejected
 * at the first failing step.
 */
type State int

const (
	Received State = iota + 1
	Validated
	WhitelistChecked
	Persisted
	Delivered
	Acknowledged
	Rejected
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Received:
		return "received"
	case Validated:
		return "validated"
	case WhitelistChecked:
		return "whitelist_checked"
	case Persisted:
		return "persisted"
	case Delivered:
		return "delivered"
	case Acknowledged:
		return "acknowledged"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}
