package ledger

import "strings"

type ruleKind uint8

const (
	ruleDeny ruleKind = iota
	ruleAllow
	ruleResource
	ruleNonFungible
	ruleComponent
	ruleAnyOf
)

// AccessRule describes what an auth zone must contain to pass a gate. The zero
// value denies everything.
type AccessRule struct {
	kind      ruleKind
	resource  ResourceAddress
	id        LocalID
	component ComponentAddress
	anyOf     []AccessRule
}

// AllowAll passes for every caller.
func AllowAll() AccessRule { return AccessRule{kind: ruleAllow} }

// DenyAll never passes.
func DenyAll() AccessRule { return AccessRule{kind: ruleDeny} }

// Require passes when the zone holds a valid proof of any non-zero quantity of
// the resource.
func Require(resource ResourceAddress) AccessRule {
	return AccessRule{kind: ruleResource, resource: resource}
}

// RequireNonFungible passes when the zone holds a valid proof naming the
// specific unit.
func RequireNonFungible(resource ResourceAddress, id LocalID) AccessRule {
	return AccessRule{kind: ruleNonFungible, resource: resource, id: id}
}

// RequireComponent passes only while the component's own code is executing.
func RequireComponent(component ComponentAddress) AccessRule {
	return AccessRule{kind: ruleComponent, component: component}
}

// AnyOf passes when at least one of the rules passes.
func AnyOf(rules ...AccessRule) AccessRule {
	return AccessRule{kind: ruleAnyOf, anyOf: append([]AccessRule(nil), rules...)}
}

func (r AccessRule) satisfiedBy(z *AuthZone) bool {
	switch r.kind {
	case ruleAllow:
		return true
	case ruleResource:
		return z.hasResource(r.resource)
	case ruleNonFungible:
		return z.hasNonFungible(r.resource, r.id)
	case ruleComponent:
		return !r.component.IsZero() && z.actor() == r.component
	case ruleAnyOf:
		for _, sub := range r.anyOf {
			if sub.satisfiedBy(z) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (r AccessRule) String() string {
	switch r.kind {
	case ruleAllow:
		return "allow_all"
	case ruleResource:
		return "require(" + r.resource.String() + ")"
	case ruleNonFungible:
		return "require(" + r.resource.String() + ":" + string(r.id) + ")"
	case ruleComponent:
		return "global_caller(" + r.component.String() + ")"
	case ruleAnyOf:
		parts := make([]string, 0, len(r.anyOf))
		for _, sub := range r.anyOf {
			parts = append(parts, sub.String())
		}
		return "any_of(" + strings.Join(parts, ", ") + ")"
	default:
		return "deny_all"
	}
}
