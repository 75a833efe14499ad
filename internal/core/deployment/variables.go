package deployment

import "regexp"

// =============================================================================
// Command Template Functions
// =============================================================================

// placeholderRegex matches ${VAR} and ${VAR:-default} patterns.
// Groups:
//   - Group 1: Variable name (required)
//   - Group 2: Default value (optional, after :-)
var placeholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Expand replaces ${VAR} and ${VAR:-default} placeholders with values.
//
// Behavior:
//   - ${VAR} - replaced with vars["VAR"] if set, otherwise kept as-is
//   - ${VAR:-default} - replaced with vars["VAR"] if set, otherwise "default"
//
// Examples:
//
//	Expand("-t ${IMAGE}", map[string]string{"IMAGE": "web:42"})
//	// Returns: "-t web:42"
//
//	Expand("${SIGNAL:-TERM}", nil)
//	// Returns: "TERM"
func Expand(value string, vars map[string]string) string {
	return placeholderRegex.ReplaceAllStringFunc(value, func(match string) string {
		sub := placeholderRegex.FindStringSubmatch(match)
		if val, ok := vars[sub[1]]; ok {
			return val
		}
		if sub[2] != "" {
			return sub[2]
		}
		return match
	})
}

// ExpandArgs expands every argument independently, so a substituted path
// containing spaces stays a single argument.
//
// Example:
//
//	ExpandArgs([]string{"fuser", "-k", "-n", "tcp", "${PORT}"}, map[string]string{"PORT": "3000"})
//	// Returns: ["fuser", "-k", "-n", "tcp", "3000"]
func ExpandArgs(args []string, vars map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = Expand(a, vars)
	}
	return out
}
