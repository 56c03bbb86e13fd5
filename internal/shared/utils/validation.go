package utils

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// Size limits (in bytes)
const (
	MaxURLLength     = 2048
	MaxRequestBody   = 16 * 1024 // 16KB - clone request payload limit
	MaxHostnameLabel = 63
)

// Hostname suffixes that never point at the public internet
var blockedHostSuffixes = []string{
	".localhost",
	".local",
	".internal",
	".localdomain",
}

var blockedHostnames = map[string]bool{
	"localhost":                true,
	"localhost.localdomain":    true,
	"metadata.google.internal": true,
	"ip6-localhost":            true,
	"ip6-loopback":             true,
}

// Carrier-grade NAT range, not covered by netip.Addr.IsPrivate
var cgnatPrefix = netip.MustParsePrefix("100.64.0.0/10")

// URLPolicy controls which hosts the validator accepts
type URLPolicy struct {
	// AllowPrivate admits RFC1918 / ULA / CGNAT literals. Loopback and
	// link-local are always rejected.
	AllowPrivate bool
}

// DefaultURLPolicy returns the production policy
func DefaultURLPolicy() URLPolicy {
	return URLPolicy{AllowPrivate: false}
}

// NormalizeURL validates a raw URL and returns its normalized form.
// The function is pure: no DNS lookups, no network access.
func NormalizeURL(raw string, policy URLPolicy) (types.NormalizedURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.NormalizedURL{}, invalid("url is required")
	}
	if utf8.RuneCountInString(raw) > MaxURLLength {
		return types.NormalizedURL{}, invalid(fmt.Sprintf("url must not exceed %d characters", MaxURLLength))
	}
	if strings.ContainsAny(raw, "\x00\r\n\t ") {
		return types.NormalizedURL{}, invalid("url contains invalid characters")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return types.NormalizedURL{}, types.WrapError(types.KindInvalidURL, "url could not be parsed", err)
	}
	if !parsed.IsAbs() {
		return types.NormalizedURL{}, invalid("url must be absolute and include http:// or https://")
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return types.NormalizedURL{}, invalid(fmt.Sprintf("scheme %q is not allowed (use http or https)", parsed.Scheme))
	}
	if parsed.Opaque != "" {
		return types.NormalizedURL{}, invalid("url must be hierarchical")
	}
	if parsed.User != nil {
		return types.NormalizedURL{}, invalid("url must not contain credentials")
	}

	hostname := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if hostname == "" {
		return types.NormalizedURL{}, invalid("url host is required")
	}
	if err := checkHost(hostname, policy); err != nil {
		return types.NormalizedURL{}, err
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port := parsed.Port(); port != "" && !isDefaultPort(scheme, port) {
		host = host + ":" + port
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	unescapedPath, err := url.PathUnescape(path)
	if err != nil {
		return types.NormalizedURL{}, types.WrapError(types.KindInvalidURL, "url path is not valid", err)
	}

	normalized := types.NormalizedURL{
		Scheme: scheme,
		Host:   host,
		Path:   unescapedPath,
		Query:  parsed.RawQuery,
	}
	if (&url.URL{Path: unescapedPath}).EscapedPath() != path {
		normalized.RawPath = path
	}
	return normalized, nil
}

// checkHost applies the SSRF guard to a lower-cased hostname
func checkHost(hostname string, policy URLPolicy) error {
	if addr, err := netip.ParseAddr(hostname); err == nil {
		return checkAddr(addr.Unmap(), policy)
	}

	if blockedHostnames[hostname] {
		return invalid(fmt.Sprintf("host %q is not allowed", hostname))
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(hostname, suffix) {
			return invalid(fmt.Sprintf("host %q is not allowed", hostname))
		}
	}

	labels := strings.Split(hostname, ".")

	// Numeric or hex final labels are parsed as IPv4 by most stacks
	// (http://2130706433, http://127.1, http://0x7f.1)
	last := labels[len(labels)-1]
	if isAllDigits(last) || strings.HasPrefix(last, "0x") {
		return invalid(fmt.Sprintf("host %q is not a valid hostname", hostname))
	}

	for _, label := range labels {
		if label == "" || len(label) > MaxHostnameLabel {
			return invalid(fmt.Sprintf("host %q is not a valid hostname", hostname))
		}
	}
	return nil
}

func checkAddr(addr netip.Addr, policy URLPolicy) error {
	switch {
	case addr.IsLoopback():
		return invalid("loopback addresses are not allowed")
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return invalid("link-local addresses are not allowed")
	case addr.IsUnspecified():
		return invalid("unspecified addresses are not allowed")
	case addr.IsMulticast(), addr.IsInterfaceLocalMulticast():
		return invalid("multicast addresses are not allowed")
	}
	if !policy.AllowPrivate && (addr.IsPrivate() || cgnatPrefix.Contains(addr)) {
		return invalid("private network addresses are not allowed")
	}
	return nil
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func invalid(msg string) *types.Error {
	return types.NewError(types.KindInvalidURL, msg)
}

// EnsureScheme prefixes https:// to inputs that carry no scheme at all.
// Inputs with an explicit scheme are returned unchanged so the validator
// still rejects ftp:, javascript: and friends.
func EnsureScheme(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.Contains(trimmed, "://") {
		return trimmed
	}
	if i := strings.Index(trimmed, ":"); i > 0 {
		scheme := trimmed[:i]
		// host:port has digits after the colon; anything else is a scheme
		rest := trimmed[i+1:]
		if !isAllDigits(strings.SplitN(rest, "/", 2)[0]) && isSchemeName(scheme) {
			return trimmed
		}
	}
	return "https://" + trimmed
}

func isSchemeName(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return s != ""
}
