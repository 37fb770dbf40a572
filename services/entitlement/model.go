package entitlement

import (
	"fmt"
	"maps"
	"time"

	"carematch/pkg/config"

	"gorm.io/datatypes"
)

type Kind string

const (
	KindSubscription Kind = "subscription"
	KindBoost        Kind = "boost"
)

func (k Kind) String() string {
	switch k {
	case KindSubscription, KindBoost:
		return string(k)
	default:
		return ""
	}
}

// Route is the plural path segment used by the HTTP adapter.
func (k Kind) Route() string {
	return string(k) + "s"
}

func ParseRoute(segment string) (Kind, bool) {
	for _, k := range []Kind{KindSubscription, KindBoost} {
		if k.Route() == segment {
			return k, true
		}
	}
	return "", false
}

// BillingMonth is the fixed length of one billing month. Expiry never uses
// calendar arithmetic, so a one month plan bought on Jan 31 ends on Mar 2.
const BillingMonth = 30 * 24 * time.Hour

type Plan struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	PriceMinorUnits     int64  `json:"price_minor_units"`
	BillingPeriodMonths int    `json:"billing_period_months"`
}

func PlanFromConfig(c config.PlanConfig) Plan {
	return Plan{
		ID:                  c.ID,
		Name:                c.Name,
		PriceMinorUnits:     c.PriceMinorUnits,
		BillingPeriodMonths: c.BillingPeriodMonths,
	}
}

func (p Plan) Duration() time.Duration {
	return time.Duration(p.BillingPeriodMonths) * BillingMonth
}

func (p Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("plan id is required")
	}
	if p.BillingPeriodMonths <= 0 {
		return fmt.Errorf("plan %s: billing period must be positive, got %d", p.ID, p.BillingPeriodMonths)
	}
	if p.PriceMinorUnits < 0 {
		return fmt.Errorf("plan %s: price must not be negative", p.ID)
	}
	return nil
}

// Record is one issued entitlement. Plan terms are copied at purchase time.
type Record struct {
	ID                  string     `gorm:"column:id;primaryKey" json:"id"`
	OwnerID             string     `gorm:"column:owner_id;index:idx_entitlement_owner_kind;not null" json:"owner_id"`
	Kind                Kind       `gorm:"column:kind;index:idx_entitlement_owner_kind;not null" json:"kind"`
	PlanID              string     `gorm:"column:plan_id;not null" json:"plan_id"`
	PlanName            string     `gorm:"column:plan_name" json:"plan_name"`
	PriceMinorUnits     int64      `gorm:"column:price_minor_units;not null" json:"price_minor_units"`
	BillingPeriodMonths int        `gorm:"column:billing_period_months;not null" json:"billing_period_months"`
	CreatedAt           time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	ExpiresAt           time.Time  `gorm:"column:expires_at;not null" json:"expires_at"`
	CancelledAt         *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`

	// Metadata carries purchase details such as the payment reference.
	Metadata datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
}

const metadataPaymentRef = "payment_ref"

// CreateOption adjusts a record before it is stored.
type CreateOption func(*Record)

// WithPaymentRef records the payment reference of the charge that paid for
// the record.
func WithPaymentRef(ref string) CreateOption {
	return func(r *Record) {
		if ref == "" {
			return
		}
		if r.Metadata == nil {
			r.Metadata = datatypes.JSONMap{}
		}
		r.Metadata[metadataPaymentRef] = ref
	}
}

// PaymentRef returns the payment reference stored on the record, if any.
func (r *Record) PaymentRef() string {
	if r == nil {
		return ""
	}
	ref, _ := r.Metadata[metadataPaymentRef].(string)
	return ref
}

func (Record) TableName() string {
	return "entitlement_records"
}

func newRecord(id, ownerID string, kind Kind, plan Plan, now time.Time) *Record {
	return &Record{
		ID:                  id,
		OwnerID:             ownerID,
		Kind:                kind,
		PlanID:              plan.ID,
		PlanName:            plan.Name,
		PriceMinorUnits:     plan.PriceMinorUnits,
		BillingPeriodMonths: plan.BillingPeriodMonths,
		CreatedAt:           now,
		ExpiresAt:           now.Add(plan.Duration()),
	}
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.CancelledAt != nil {
		at := *r.CancelledAt
		c.CancelledAt = &at
	}
	c.Metadata = maps.Clone(r.Metadata)
	return &c
}
