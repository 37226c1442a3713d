// Package auth resolves the calling principal and decides which operations
// its role tag allows.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
)

type Role string

const (
	RoleCashier Role = "cashier"
	RoleKitchen Role = "kitchen"
)

func ParseRole(v string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(v))); r {
	case RoleCashier, RoleKitchen:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", v)
}

// Principal is an authenticated caller. Role is empty when the identity
// carries no role tag.
type Principal struct {
	ID   string
	Role Role
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored by the HTTP layer, or nil for an
// anonymous (customer) caller.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKey{}).(*Principal)
	return p
}

type Operation string

const (
	OpCreateOrder        Operation = "createOrder"
	OpGetOrder           Operation = "getOrder"
	OpGetBowl            Operation = "getBowl"
	OpActiveOrderForBowl Operation = "getActiveOrderForBowl"
	OpSetPrice           Operation = "setPrice"
	OpAdvanceStatus      Operation = "advanceStatus"
	OpConfirmCashPayment Operation = "confirmCashPayment"
	OpListKitchenQueue   Operation = "listKitchenQueue"
	OpListCashierFeed    Operation = "listCashierFeed"
	OpSubscribe          Operation = "subscribe"
)

// Policy maps an operation to the roles allowed to invoke it. Operations
// missing from the map are public.
type Policy map[Operation][]Role

// DefaultPolicy gives the kitchen sole ownership of the preparing/served
// steps; advanceRoles overrides that set when non-empty.
func DefaultPolicy(advanceRoles ...Role) Policy {
	if len(advanceRoles) == 0 {
		advanceRoles = []Role{RoleKitchen}
	}
	return Policy{
		OpSetPrice:           {RoleCashier},
		OpConfirmCashPayment: {RoleCashier},
		OpListCashierFeed:    {RoleCashier},
		OpListKitchenQueue:   {RoleKitchen},
		OpAdvanceStatus:      advanceRoles,
	}
}

// Authorize returns UNAUTHENTICATED when a gated operation has no principal
// and FORBIDDEN when the principal's role is not allowed.
func (p Policy) Authorize(ctx context.Context, op Operation) error {
	roles, gated := p[op]
	if !gated {
		return nil
	}
	principal := FromContext(ctx)
	if principal == nil {
		return apperr.New(apperr.CodeUnauthenticated, "sign in required")
	}
	for _, r := range roles {
		if principal.Role == r {
			return nil
		}
	}
	return apperr.New(apperr.CodeForbidden, fmt.Sprintf("role %q may not %s", principal.Role, op))
}

// ParseRoles reads a comma separated role list, e.g. "kitchen,cashier".
func ParseRoles(csv string) ([]Role, error) {
	var out []Role
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := ParseRole(part)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
