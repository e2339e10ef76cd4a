package rbac

import (
	"fmt"
	"strings"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func ParseAction(raw string) (Action, error) {
	switch action := Action(strings.ToLower(strings.TrimSpace(raw))); action {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return action, nil
	default:
		return "", fmt.Errorf("unknown action %q", raw)
	}
}

// Resources editors may only read.
var protectedResources = map[string]struct{}{
	"users":   {},
	"system":  {},
	"metrics": {},
}

// Fields reviewers may update on any resource.
var reviewerFields = map[string]struct{}{
	"status":  {},
	"publish": {},
}

// IsAuthorized decides whether a role set may perform action on resource.
// Resources may be qualified by a field ("blogPost.status"). The first matching
// role in the order admin, editor, reviewer, viewer decides; anything else is
// denied.
func IsAuthorized(roles RoleSet, action Action, resource string) bool {
	base, field := splitResource(resource)

	switch {
	case roles.Has(RoleAdmin):
		return true
	case roles.Has(RoleEditor):
		if _, protected := protectedResources[base]; protected {
			return action == ActionRead
		}
		return true
	case roles.Has(RoleReviewer):
		if action == ActionRead {
			return true
		}
		if action != ActionUpdate {
			return false
		}
		if field == "" {
			field = base
		}
		_, allowed := reviewerFields[field]
		return allowed
	case roles.Has(RoleViewer):
		return action == ActionRead
	default:
		return false
	}
}

func splitResource(resource string) (string, string) {
	resource = strings.ToLower(strings.TrimSpace(resource))
	base, field, found := strings.Cut(resource, ".")
	if !found {
		return resource, ""
	}
	if i := strings.LastIndex(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return base, field
}
