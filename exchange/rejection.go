package exchange

import (
	"errors"
	"fmt"

	"github.com/marcelsud/dmz-exchange/metrics"
)

// ErrProjectNotAllowed is the cause of every whitelist rejection
var ErrProjectNotAllowed = errors.New("project not allowed")

// Kind classifies why a request was rejected
type Kind int

const (
	SchemaRejection Kind = iota + 1
	WhitelistRejection
	StoreFailure
	GatewayRejected
	GatewayUnavailable
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case SchemaRejection:
		return "schema_rejection"
	case WhitelistRejection:
		return "whitelist_rejection"
	case StoreFailure:
		return "store_failure"
	case GatewayRejected:
		return "gateway_rejected"
	case GatewayUnavailable:
		return "gateway_unavailable"
	default:
		return "unknown"
	}
}

// IsClientError reports whether the caller is at fault (400) rather than the node (5xx)
func (k Kind) IsClientError() bool {
	return k == SchemaRejection || k == WhitelistRejection || k == GatewayRejected
}

func (k Kind) outcome() metrics.Outcome {
	switch k {
	case SchemaRejection:
		return metrics.SchemaRejected
	case WhitelistRejection:
		return metrics.WhitelistRejected
	case StoreFailure:
		return metrics.StoreFailed
	case GatewayRejected:
		return metrics.GatewayRejected
	default:
		return metrics.GatewayUnavailable
	}
}

/* Rejection is the error returned by the pipeline
 * Stage is the state the request was trying to reach when it failed, so a
 * whitelist rejection carries WhitelistChecked and a store failure Persisted.
 * Err holds the detail for logs; it is never shown to callers.
 */
type Rejection struct {
	Kind      Kind
	Stage     State
	MessageID string
	Err       error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s while reaching %s: %v", r.Kind, r.Stage, r.Err)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// AsRejection extracts a *Rejection from err
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
