// Package config loads the YAML engine-launch profile an operator or
// bootstrapper may hand the controller on the command line, per
// specification section 6's "config file defaults, CLI flags override"
// rule.
package config

import (
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
//   - ${VAR} expands to the env var value, or empty string if unset
//   - ${VAR:-default} expands to the env var value, or "default" if unset/empty
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} patterns in input with
// their corresponding environment variable values. Unset variables
// without a default expand to the empty string rather than an error;
// a profile field that turns out to need a non-empty value (e.g. an
// S3 bucket name) fails downstream validation instead.
func ExpandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}

		value, ok := os.LookupEnv(groups[1])
		if ok && value != "" {
			return value
		}
		if len(groups) >= 3 && groups[2] != "" {
			return groups[2]
		}
		return ""
	})
}
