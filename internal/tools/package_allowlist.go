package tools

import "regexp"

// packageSpec matches "name" or "name@version" with no shell
// metacharacters, the only shape install_package accepts.
var packageSpec = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.\-/]*(@[a-zA-Z0-9_.\-]+)?$`)

// allowedPackages is the fixed set of packages install_package may
// fetch. Anything else is blocked even if it parses as a valid spec.
var allowedPackages = map[string]bool{
	"requests":   true,
	"httpx":      true,
	"pydantic":   true,
	"numpy":      true,
	"pandas":     true,
	"beautifulsoup4": true,
	"lxml":       true,
	"pyyaml":     true,
	"cryptography": true,
	"web3":       true,
}

// checkPackageSpec validates a package argument against the allow-list.
// Returns "" if allowed, or a reason string if blocked.
func checkPackageSpec(spec string) string {
	if !packageSpec.MatchString(spec) {
		return "package spec contains disallowed characters"
	}
	name := spec
	for i, c := range spec {
		if c == '@' {
			name = spec[:i]
			break
		}
	}
	if !allowedPackages[name] {
		return "package not on allow-list: " + name
	}
	return ""
}
