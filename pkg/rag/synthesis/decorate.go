package synthesis

import (
	"fmt"
	"strings"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/access"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
)

var roleIndicators = map[string]string{
	access.RolePublic:   "**Public access**",
	access.RoleEmployee: "**Employee access**",
	access.RoleAdmin:    "**Administrator access**",
}

// Decorate frames the answer with the caller's access tier and a per-level count
// of the records it was built from. Admins also see their active permissions.
func Decorate(role string, permissions []string, answer string, used []catalog.Record) string {
	indicator, ok := roleIndicators[strings.ToLower(strings.TrimSpace(role))]
	if !ok {
		indicator = "**Limited access**"
	}

	var sb strings.Builder
	sb.WriteString(indicator)
	sb.WriteString("\n\n")
	sb.WriteString(answer)

	counts := catalog.CountByLevel(used)
	if len(used) > 0 {
		sb.WriteString("\n\n**Sources consulted:**\n")
		if n := counts[access.LevelPublic]; n > 0 {
			fmt.Fprintf(&sb, "- [PUBLIC] %d public document(s)\n", n)
		}
		if n := counts[access.LevelInternal]; n > 0 {
			fmt.Fprintf(&sb, "- [INTERNAL] %d internal document(s)\n", n)
		}
		if n := counts[access.LevelConfidential]; n > 0 {
			fmt.Fprintf(&sb, "- [CONFIDENTIAL] %d confidential document(s)\n", n)
		}
	}

	if strings.EqualFold(strings.TrimSpace(role), access.RoleAdmin) {
		perms := "unknown_permissions"
		if len(permissions) > 0 {
			perms = strings.Join(permissions, ", ")
		}
		fmt.Fprintf(&sb, "\n**Admin debug:** active permissions: %s", perms)
	}

	return strings.TrimRight(sb.String(), "\n")
}
