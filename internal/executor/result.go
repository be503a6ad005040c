package executor

import "github.com/faridmah/arbot/internal/domain"

// ResultCode classifies the outcome of one execution attempt.
type ResultCode string

const (
	ResultSuccess   ResultCode = "success"
	ResultRejected  ResultCode = "rejected"
	ResultPartial   ResultCode = "partial"
	ResultFailed    ResultCode = "failed"
	ResultTimeout   ResultCode = "timeout"
	ResultCancelled ResultCode = "cancelled"
)

// Rejection and failure reason codes beyond the risk gate's.
const (
	ReasonStale           = "stale"
	ReasonSpreadCollapsed = "spread_collapsed"
	ReasonBothRejected    = "both_rejected"
	ReasonDuplicate       = "duplicate"
	ReasonInternal        = "internal"
)

// Result is the executor's answer for one opportunity: a code, a
// machine-readable reason, a human-readable detail, and the trade record
// (present whenever the legs were settled after at least one was
// acknowledged; a cancelled execution carries none).
type Result struct {
	Code   ResultCode
	Reason string
	Detail string
	Trade  *domain.TradeRecord
}
