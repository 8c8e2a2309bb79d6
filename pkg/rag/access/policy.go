package access

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AccessLevel is the sensitivity tier attached to every record.
type AccessLevel string

const (
	LevelPublic       AccessLevel = "public"
	LevelInternal     AccessLevel = "internal"
	LevelConfidential AccessLevel = "confidential"
)

const (
	RolePublic   = "public"
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// Capabilities carried in user tokens.
const (
	PermissionChatBasic        = "chat_basic"
	PermissionViewInternal     = "view_internal"
	PermissionViewConfidential = "view_confidential"
	PermissionHistoryRead      = "history_read"
	PermissionAdminMaintenance = "admin_maintenance"
)

// NormalizeLevel trims and lower-cases a raw level. Anything unrecognized is public.
func NormalizeLevel(raw string) AccessLevel {
	switch AccessLevel(strings.ToLower(strings.TrimSpace(raw))) {
	case LevelInternal:
		return LevelInternal
	case LevelConfidential:
		return LevelConfidential
	default:
		return LevelPublic
	}
}

// NormalizeRole maps unknown roles to public.
func NormalizeRole(raw string) string {
	role := strings.ToLower(strings.TrimSpace(raw))
	switch role {
	case RoleEmployee, RoleAdmin:
		return role
	default:
		return RolePublic
	}
}

// Policy is the immutable role table. Build it once and share it.
type Policy struct {
	levels      map[string]map[AccessLevel]bool
	permissions map[string][]string
}

// IsAuthorized reports whether role may read records at level.
func (p *Policy) IsAuthorized(role string, level AccessLevel) bool {
	allowed, ok := p.levels[NormalizeRole(role)]
	if !ok {
		allowed = p.levels[RolePublic]
	}
	return allowed[NormalizeLevel(string(level))]
}

// Permissions returns the default capability list granted to role.
func (p *Policy) Permissions(role string) []string {
	perms := p.permissions[NormalizeRole(role)]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// AllowedLevels lists the levels visible to role, least sensitive first.
func (p *Policy) AllowedLevels(role string) []AccessLevel {
	var out []AccessLevel
	for _, level := range []AccessLevel{LevelPublic, LevelInternal, LevelConfidential} {
		if p.IsAuthorized(role, level) {
			out = append(out, level)
		}
	}
	return out
}

func HasPermission(perms []string, permission string) bool {
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// Default is the built-in table: public ⊆ employee ⊆ admin.
func Default() *Policy {
	p, err := build(fileSchema{
		Roles: map[string]roleSchema{
			RolePublic: {
				Levels:      []string{"public"},
				Permissions: []string{PermissionChatBasic},
			},
			RoleEmployee: {
				Levels:      []string{"public", "internal"},
				Permissions: []string{PermissionChatBasic, PermissionViewInternal, PermissionHistoryRead},
			},
			RoleAdmin: {
				Levels: []string{"public", "internal", "confidential"},
				Permissions: []string{
					PermissionChatBasic, PermissionViewInternal, PermissionViewConfidential,
					PermissionHistoryRead, PermissionAdminMaintenance,
				},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return p
}

type fileSchema struct {
	Roles map[string]roleSchema `yaml:"roles"`
}

type roleSchema struct {
	Levels      []string `yaml:"levels"`
	Permissions []string `yaml:"permissions"`
}

// Load reads a YAML policy file. An empty path returns Default.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read access policy: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Policy, error) {
	var schema fileSchema
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parse access policy: %w", err)
	}
	return build(schema)
}

func build(schema fileSchema) (*Policy, error) {
	p := &Policy{
		levels:      map[string]map[AccessLevel]bool{},
		permissions: map[string][]string{},
	}

	for _, role := range []string{RolePublic, RoleEmployee, RoleAdmin} {
		rs, ok := schema.Roles[role]
		if !ok {
			return nil, fmt.Errorf("access policy: role %q is missing", role)
		}

		set := map[AccessLevel]bool{}
		for _, raw := range rs.Levels {
			level := AccessLevel(strings.ToLower(strings.TrimSpace(raw)))
			if level != LevelPublic && level != LevelInternal && level != LevelConfidential {
				return nil, fmt.Errorf("access policy: role %q has unknown level %q", role, raw)
			}
			set[level] = true
		}
		p.levels[role] = set
		p.permissions[role] = append([]string(nil), rs.Permissions...)
	}

	if !p.levels[RolePublic][LevelPublic] {
		return nil, fmt.Errorf("access policy: public role must read public records")
	}
	if !subset(p.levels[RolePublic], p.levels[RoleEmployee]) || !subset(p.levels[RoleEmployee], p.levels[RoleAdmin]) {
		return nil, fmt.Errorf("access policy: levels must be nested public ⊆ employee ⊆ admin")
	}

	return p, nil
}

func subset(a, b map[AccessLevel]bool) bool {
	for level := range a {
		if !b[level] {
			return false
		}
	}
	return true
}
