package api

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/kolwatch/kolwatch/internal/xhandle"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var privateIPv4Blocks = mustParseCIDRs(
	"10.0.0.0/8",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"0.0.0.0/8",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	blocks := make([]*net.IPNet, len(cidrs))
	for i, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		blocks[i] = block
	}
	return blocks
}

// ValidateHandle canonicalizes and validates an account handle.
func ValidateHandle(raw string) (string, error) {
	handle := xhandle.Parse(raw)
	if !xhandle.IsValid(handle) {
		return "", ValidationError{Field: "xHandle", Message: "invalid handle"}
	}
	return handle, nil
}

// ValidateWebhookURL rejects URLs the dispatcher must never call: non-HTTP
// schemes, localhost and addresses in private or link-local ranges. Hostnames
// are checked literally, not resolved; DNS-based evasion is out of scope here.
func ValidateWebhookURL(raw string) error {
	if raw == "" {
		return ValidationError{Field: "webhookURL", Message: "webhook URL is required"}
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ValidationError{Field: "webhookURL", Message: "invalid URL"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ValidationError{Field: "webhookURL", Message: "URL scheme must be http or https"}
	}

	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return ValidationError{Field: "webhookURL", Message: "URL has no host"}
	}
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return ValidationError{Field: "webhookURL", Message: "localhost is not allowed"}
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if isPrivateIP(ip) {
			return ValidationError{Field: "webhookURL", Message: "private addresses are not allowed"}
		}
	}

	return nil
}

func isPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		for _, block := range privateIPv4Blocks {
			if block.Contains(v4) {
				return true
			}
		}
		return false
	}

	// IPv6: loopback, unspecified, unique-local (fc00::/7), link-local
	return ip.IsLoopback() || ip.IsUnspecified() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// ValidateAPIMetadata enforces the metadata contract: a flat bag of string
// and number values.
func ValidateAPIMetadata(metadata map[string]interface{}) error {
	for key, value := range metadata {
		switch value.(type) {
		case string, float64, int, int64:
		default:
			return ValidationError{
				Field:   "metadata",
				Message: fmt.Sprintf("value for %q must be a string or number", key),
			}
		}
	}
	return nil
}
