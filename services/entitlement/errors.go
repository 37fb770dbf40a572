package entitlement

import (
	"errors"
	"fmt"

	"carematch/pkg/errutil"
)

var (
	ErrAlreadyEntitled = errors.New("entitlement: already entitled")
	ErrNoRecord        = errors.New("entitlement: no record")
	ErrNotCancelled    = errors.New("entitlement: not cancelled")
	ErrExpired         = errors.New("entitlement: expired")
	ErrNoAccess        = errors.New("entitlement: no access")
	ErrUnknownPlan     = errors.New("entitlement: unknown plan")
)

func ConflictError(kind Kind, ownerID string) error {
	return errutil.Conflict(fmt.Sprintf("%s already grants access", kind), ErrAlreadyEntitled,
		errutil.WithField("owner_id", ownerID))
}

func NotFoundError(kind Kind, ownerID string) error {
	return errutil.NotFound(fmt.Sprintf("no %s record", kind), ErrNoRecord,
		errutil.WithField("owner_id", ownerID))
}

// InvalidStateError wraps ErrNotCancelled or ErrExpired.
func InvalidStateError(kind Kind, ownerID string, cause error) error {
	return errutil.UnprocessableEntity(fmt.Sprintf("%s cannot transition", kind), cause,
		errutil.WithField("owner_id", ownerID))
}

func ForbiddenError(kind Kind, ownerID string) error {
	return errutil.Forbidden(fmt.Sprintf("%s required", kind), ErrNoAccess,
		errutil.WithField("owner_id", ownerID))
}

// PaymentError is a failed charge. Transient failures are worth retrying;
// a decline is final for this attempt.
type PaymentError struct {
	Reason    string
	Transient bool
	Err       error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment failed: %s: %v", e.Reason, e.Err)
	}
	return "payment failed: " + e.Reason
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

func (e *PaymentError) Status() errutil.CoreStatus {
	return errutil.StatusPaymentRequired
}
