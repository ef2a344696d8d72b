package anonymize

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// RedactionMarker replaces the entire value of a sensitive field.
const RedactionMarker = "[REDACTED]"

// piiPatterns are scanned inside string values. Order matters: the card
// pattern would otherwise swallow phone-number shaped digit runs.
var piiPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"credit_card", regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`)},
	{"phone", regexp.MustCompile(`\+?\d{1,3}[ \-.]?\(?\d{2,4}\)?[ \-.]?\d{3,4}[ \-.]?\d{3,4}\b`)},
	{"ip_address", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

// sensitiveFieldFragments flag field names that semantically indicate
// personal data; matching is case-insensitive substring.
var sensitiveFieldFragments = []string{
	"name", "email", "phone", "address", "ssn", "token",
	"password", "secret", "credential", "userid", "user_id",
	"account", "birth", "location",
}

// ComplianceReport is the result of scanning a payload.
type ComplianceReport struct {
	Compliant  bool
	Violations []string
	// Redacted is a normalized copy of the payload with every detected
	// pattern and sensitive field replaced.
	Redacted any
}

// ValidateCompliance scans payload for PII patterns and sensitive field
// names. Payloads may be strings, maps, slices, or fmt.Stringer values;
// anything else is normalized through fmt.Sprint.
func ValidateCompliance(payload any) ComplianceReport {
	var violations []string
	redacted := walk(payload, "", &violations)
	return ComplianceReport{
		Compliant:  len(violations) == 0,
		Violations: violations,
		Redacted:   redacted,
	}
}

// SanitizeForLog redacts payload unconditionally. It is applied before
// anything reaches a log sink; sensitive field names are replaced wholesale,
// not just pattern-matched.
func SanitizeForLog(payload any) any {
	var discard []string
	return walk(payload, "", &discard)
}

// SanitizedField wraps a value for structured logging after redaction.
func SanitizedField(key string, v any) zap.Field {
	return zap.Any(key, SanitizeForLog(v))
}

func walk(v any, field string, violations *[]string) any {
	if field != "" && sensitiveFieldName(field) {
		*violations = append(*violations, "sensitive field: "+field)
		return RedactionMarker
	}

	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return redactString(val, field, violations)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = walk(item, k, violations)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = walk(item, "", violations)
		}
		return out
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return val
	case fmt.Stringer:
		return redactString(val.String(), field, violations)
	case error:
		return redactString(val.Error(), field, violations)
	default:
		return redactString(fmt.Sprint(val), field, violations)
	}
}

func redactString(s, field string, violations *[]string) string {
	out := s
	for _, p := range piiPatterns {
		if !p.re.MatchString(out) {
			continue
		}
		where := p.name
		if field != "" {
			where = p.name + " in field " + field
		}
		*violations = append(*violations, where)
		out = p.re.ReplaceAllString(out, "[REDACTED:"+p.name+"]")
	}
	return out
}

func sensitiveFieldName(field string) bool {
	f := strings.ToLower(field)
	for _, frag := range sensitiveFieldFragments {
		if strings.Contains(f, frag) {
			return true
		}
	}
	return false
}
