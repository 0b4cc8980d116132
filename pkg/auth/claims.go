package auth

import (
	"strings"
)

// ClaimsExtractor extracts user fields from JWT claims.
type ClaimsExtractor struct {
	// RoleClaimPath is the dot-separated path to roles in claims.
	// e.g., "roles" or "realm_access.roles"
	RoleClaimPath string

	// RolePrefix keeps only roles with this prefix and strips it.
	RolePrefix string

	EmailClaimPath   string
	NameClaimPath    string
	SubjectClaimPath string
}

// DefaultClaimsExtractor returns an extractor with common defaults.
func DefaultClaimsExtractor() *ClaimsExtractor {
	return &ClaimsExtractor{
		RoleClaimPath:    "roles",
		EmailClaimPath:   "email",
		NameClaimPath:    "name",
		SubjectClaimPath: "sub",
	}
}

// Extract builds a user context from claims.
func (e *ClaimsExtractor) Extract(claims map[string]any) *UserContext {
	uc := &UserContext{
		UserID:   stringAt(claims, e.SubjectClaimPath),
		Email:    stringAt(claims, e.EmailClaimPath),
		Name:     stringAt(claims, e.NameClaimPath),
		Claims:   claims,
		AuthType: "jwt",
	}
	if e.RoleClaimPath != "" {
		uc.Roles = stripPrefix(stringsAt(claims, e.RoleClaimPath), e.RolePrefix)
	}
	return uc
}

func stringAt(claims map[string]any, path string) string {
	s, _ := valueAt(claims, path).(string)
	return s
}

func stringsAt(claims map[string]any, path string) []string {
	switch v := valueAt(claims, path).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// valueAt gets a value at a dot-separated path.
func valueAt(claims map[string]any, path string) any {
	if path == "" {
		return nil
	}
	var current any = claims
	for part := range strings.SplitSeq(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func stripPrefix(roles []string, prefix string) []string {
	if prefix == "" {
		return roles
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if after, ok := strings.CutPrefix(r, prefix); ok {
			out = append(out, after)
		}
	}
	return out
}
