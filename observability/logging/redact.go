package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces masked values.
const RedactedValue = "[REDACTED]"

// Keys the handler always masks, whatever logged them.
var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"passphrase":    {},
	"private_key":   {},
	"signature":     {},
	"token":         {},
}

// Keys MaskField lets through. Everything a module passes to MaskField that is
// not listed here is masked.
var redactionAllowlist = map[string]struct{}{
	"component": {},
	"epoch":     {},
	"error":     {},
	"escrow":    {},
	"offer":     {},
	"reason":    {},
	"registry":  {},
	"sequence":  {},
	"state":     {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsAllowlisted reports whether MaskField emits key in clear.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[normalizeKey(key)]
	return ok
}

// IsSensitive reports whether the handler masks key unconditionally.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[normalizeKey(key)]
	return ok
}

// RedactionAllowlist returns the allowlisted keys in order.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue masks non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns key=value, masking the value unless key is allowlisted.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

// redactSensitive is applied by the handler to every attribute.
func redactSensitive(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString {
		return slog.String(attr.Key, MaskValue(attr.Value.String()))
	}
	return slog.String(attr.Key, RedactedValue)
}
