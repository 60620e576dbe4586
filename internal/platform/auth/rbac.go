package auth

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// Clinic roles.
const (
	RoleSupervisor   = "supervisor"
	RoleDoctor       = "doctor"
	RoleSecretary    = "secretary"
	RolePharmacist   = "pharmacist"
	RoleCashier      = "cashier"
	RoleAccountant   = "accountant"
	RolePractitioner = "practitioner"
	// RoleAdmin is kept for tokens issued by generic identity providers.
	RoleAdmin = "admin"
)

// Capability is a single permission checked by a domain operation.
type Capability string

const (
	CapInvoiceRead     Capability = "invoice.read"
	CapInvoiceWrite    Capability = "invoice.write"
	CapInvoiceCancel   Capability = "invoice.cancel"
	CapPaymentWrite    Capability = "payment.write"
	CapCashOperate     Capability = "cash.operate"
	CapCashSupervise   Capability = "cash.supervise"
	CapCommissionRead  Capability = "commission.read"
	CapCommissionWrite Capability = "commission.write"
	CapCommissionPay   Capability = "commission.pay"
	CapExpenseRead     Capability = "expense.read"
	CapExpenseWrite    Capability = "expense.write"
	CapReportRead      Capability = "report.read"
)

var allCapabilities = []Capability{
	CapInvoiceRead, CapInvoiceWrite, CapInvoiceCancel, CapPaymentWrite,
	CapCashOperate, CapCashSupervise,
	CapCommissionRead, CapCommissionWrite, CapCommissionPay,
	CapExpenseRead, CapExpenseWrite, CapReportRead,
}

// rolePolicy is the per-role allow-list.
var rolePolicy = map[string][]Capability{
	RoleSupervisor: allCapabilities,
	RoleAdmin:      allCapabilities,
	RoleCashier: {
		CapInvoiceRead, CapInvoiceWrite, CapPaymentWrite, CapCashOperate,
	},
	RoleSecretary: {
		CapInvoiceRead, CapInvoiceWrite,
	},
	RoleAccountant: {
		CapInvoiceRead, CapInvoiceCancel, CapCashSupervise,
		CapCommissionRead, CapCommissionWrite, CapCommissionPay,
		CapExpenseRead, CapExpenseWrite, CapReportRead,
	},
	RoleDoctor:       {CapInvoiceRead},
	RolePharmacist:   {CapInvoiceRead, CapInvoiceWrite},
	RolePractitioner: {CapCommissionRead},
}

// Actor is the authenticated caller handed explicitly to every domain
// operation. Its capabilities are resolved once at the boundary.
type Actor struct {
	ID    uuid.UUID
	Roles []string
	caps  map[Capability]bool
}

// NewActor resolves roles against the clinic policy. Unknown roles grant nothing.
func NewActor(id uuid.UUID, roles ...string) Actor {
	caps := make(map[Capability]bool)
	for _, r := range roles {
		for _, c := range rolePolicy[strings.ToLower(r)] {
			caps[c] = true
		}
	}
	return Actor{ID: id, Roles: roles, caps: caps}
}

func (a Actor) Can(c Capability) bool {
	return a.caps[c]
}

// Require returns a Forbidden error unless the actor holds c.
func (a Actor) Require(c Capability) error {
	if !a.Can(c) {
		return apperr.New(apperr.Forbidden, "missing capability %s", c)
	}
	return nil
}

// Capabilities lists granted capabilities in sorted order.
func (a Actor) Capabilities() []Capability {
	out := make([]Capability, 0, len(a.caps))
	for c := range a.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ActorFromContext builds the Actor from identity placed on ctx by
// JWTMiddleware or DevAuthMiddleware.
func ActorFromContext(ctx context.Context) (Actor, error) {
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return Actor{}, apperr.New(apperr.Forbidden, "no authenticated user")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Actor{}, apperr.New(apperr.Forbidden, "user id is not a uuid")
	}
	return NewActor(id, RolesFromContext(ctx)...), nil
}
