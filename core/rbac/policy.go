package rbac

import (
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

type Role struct {
	Name        string
	Description string
	Permissions []Permission
}

const policyModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch(r.obj, p.obj)
`

// Policy answers "may any of these roles perform perm". Role definitions are
// loaded once and enforced through casbin; wildcard grants like "reports.*"
// are allowed in role definitions.
type Policy struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

func NewPolicy(roles []Role) *Policy {
	p := &Policy{}
	if err := p.Reload(roles); err != nil {
		panic(fmt.Sprintf("rbac: build policy: %v", err))
	}
	return p
}

func (p *Policy) Reload(roles []Role) error {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return err
	}
	for _, role := range roles {
		name := strings.ToLower(strings.TrimSpace(role.Name))
		if name == "" {
			continue
		}
		for _, perm := range role.Permissions {
			obj := strings.TrimSpace(string(perm))
			if obj == "" {
				continue
			}
			if _, err := e.AddPolicy(name, obj); err != nil {
				return err
			}
		}
	}
	p.mu.Lock()
	p.enforcer = e
	p.mu.Unlock()
	return nil
}

func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	e := p.enforcer
	p.mu.RUnlock()
	if e == nil {
		return false
	}
	for _, role := range roles {
		name := strings.ToLower(strings.TrimSpace(role))
		if name == "" {
			continue
		}
		ok, err := e.Enforce(name, string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}

// DefaultRoles are the built-in roles seeded on first start. Citizens submit
// and follow their reports; LGU staff run the review lifecycle; engineers
// handle inspections and repair tasks; admins additionally manage accounts,
// delete reports and read the audit trail.
func DefaultRoles() []Role {
	return []Role{
		{
			Name:        "citizen",
			Description: "Resident submitting road issue reports",
			Permissions: []Permission{"reports.view", "reports.create"},
		},
		{
			Name:        "lgu_staff",
			Description: "LGU officer reviewing and dispatching reports",
			Permissions: []Permission{
				"reports.view", "reports.create", "reports.transition",
				"inspections.view", "repairs.view", "logs.view",
			},
		},
		{
			Name:        "engineer",
			Description: "Field engineer handling inspections and repairs",
			Permissions: []Permission{
				"reports.view", "inspections.view", "inspections.review", "repairs.view",
			},
		},
		{
			Name:        "admin",
			Description: "System administrator",
			Permissions: []Permission{
				"reports.*", "inspections.*", "repairs.*", "logs.view", "accounts.manage",
			},
		},
	}
}
