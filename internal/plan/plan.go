// Package plan holds the static subscription plan catalog the billing
// engine consumes. Plan management itself lives outside this service;
// the engine only reads limits and entitlements.
package plan

import "errors"

// Resource identifies a countable resource subject to plan limits.
type Resource string

const (
	ResourceClient     Resource = "client"
	ResourceQuote      Resource = "quote"
	ResourceInvoice    Resource = "invoice"
	ResourcePrestation Resource = "prestation"
)

// Unlimited marks a resource with no cap on the plan.
const Unlimited int64 = -1

const (
	CodeFree = "free"
	CodePro  = "pro"
)

var ErrUnknownPlan = errors.New("unknown_plan")

// Plan describes per-resource limits and entitlements for one plan code.
type Plan struct {
	Code        string
	Limits      map[Resource]int64
	AutoDunning bool
}

var catalog = map[string]Plan{
	CodeFree: {
		Code: CodeFree,
		Limits: map[Resource]int64{
			ResourceClient:     5,
			ResourceQuote:      10,
			ResourceInvoice:    10,
			ResourcePrestation: 10,
		},
		AutoDunning: false,
	},
	CodePro: {
		Code: CodePro,
		Limits: map[Resource]int64{
			ResourceClient:     Unlimited,
			ResourceQuote:      Unlimited,
			ResourceInvoice:    Unlimited,
			ResourcePrestation: Unlimited,
		},
		AutoDunning: true,
	},
}

// ByCode returns the plan for a code.
func ByCode(code string) (Plan, bool) {
	p, ok := catalog[code]
	return p, ok
}

// Limit returns the cap for a resource on the plan. Unknown resources
// are treated as unlimited.
func (p Plan) Limit(resource Resource) int64 {
	limit, ok := p.Limits[resource]
	if !ok {
		return Unlimited
	}
	return limit
}
