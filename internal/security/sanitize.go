package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// Names accepted by deploy servers that map projects onto directories
	projectPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateServerURL ensures the deployment server address is an absolute http(s) URL.
func ValidateServerURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http and https server URLs allowed, got scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server URL is missing a host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("server URL must not carry a query or fragment")
	}

	return nil
}

// ValidateProjectName reports whether name is safe for use in server-side paths and URLs.
// The client only warns on failure; the server has the final say.
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("project name cannot start with '-' or '.'")
	}
	if !projectPattern.MatchString(name) {
		return fmt.Errorf("project name contains invalid characters (only a-z, A-Z, 0-9, _, - allowed)")
	}
	return nil
}
