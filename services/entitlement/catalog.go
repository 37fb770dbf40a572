package entitlement

import (
	"fmt"

	"carematch/pkg/config"
	"carematch/pkg/errutil"

	"go.uber.org/zap"
)

// Catalog lists the plans that can be purchased for each kind.
type Catalog struct {
	plans map[Kind][]Plan
}

func NewCatalog(cfg *config.Config) (*Catalog, error) {
	c := &Catalog{plans: make(map[Kind][]Plan)}
	for kind, plans := range map[Kind][]config.PlanConfig{
		KindSubscription: cfg.Plans.Subscription,
		KindBoost:        cfg.Plans.Boost,
	} {
		seen := make(map[string]bool, len(plans))
		for _, pc := range plans {
			p := PlanFromConfig(pc)
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("%s catalog: %w", kind, err)
			}
			if seen[p.ID] {
				return nil, fmt.Errorf("%s catalog: duplicate plan %s", kind, p.ID)
			}
			seen[p.ID] = true
			c.plans[kind] = append(c.plans[kind], p)
		}
		zap.L().Debug("plan catalog loaded", zap.String("kind", kind.String()), zap.Int("plans", len(plans)))
	}
	return c, nil
}

func (c *Catalog) Plans(kind Kind) []Plan {
	return append([]Plan(nil), c.plans[kind]...)
}

// Plan returns a copy of the plan, so callers can never edit the catalog.
func (c *Catalog) Plan(kind Kind, id string) (Plan, error) {
	for _, p := range c.plans[kind] {
		if p.ID == id {
			return p, nil
		}
	}
	return Plan{}, errutil.NotFound(fmt.Sprintf("unknown %s plan", kind), ErrUnknownPlan,
		errutil.WithField("plan_id", id))
}
