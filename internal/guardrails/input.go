package guardrails

import (
	"regexp"
	"strings"

	"github.com/ragbox/core-rag/internal/model"
)

// MaxQueryLength is the spec.md §4.8 / §6 default; overridable via
// MAX_QUERY_LENGTH in Config.
const MaxQueryLength = 2000

// injectionPatterns is the denylist of case-insensitive prompt-injection
// markers per spec.md §4.8: instructions to ignore prior directives,
// attempts to reveal the system prompt, role-override phrases, jailbreak
// markers.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions?`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?)`),
	regexp.MustCompile(`(?i)reveal\s+(the\s+)?(system\s+)?prompt`),
	regexp.MustCompile(`(?i)show\s+me\s+your\s+(system\s+)?(prompt|instructions)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+[a-z0-9_\- ]+`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+(are|were)\s+)?(an?\s+)?(unfiltered|unrestricted|jailbroken)`),
	regexp.MustCompile(`(?i)\bDAN\b.{0,20}\bmode\b`),
	regexp.MustCompile(`(?i)pretend\s+(you\s+have\s+no|there\s+are\s+no)\s+(restrictions|rules|guidelines)`),
}

// maliciousCodePatterns are warning-only signals (never an error per
// spec.md §4.8): SQL-fragment keywords combined with control characters,
// and shell-metacharacter clusters.
var maliciousCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(union\s+select|drop\s+table|;\s*--|xp_cmdshell)`),
	regexp.MustCompile(`[;&|` + "`" + `]\s*(rm|curl|wget|nc|bash|sh)\s`),
}

// InputResult is the outcome of validating+masking an inbound query.
type InputResult struct {
	Rejected    bool
	Reason      string // "injection" | "length"
	MaskedText  string
	Warnings    []string
	PIIFindings *ScanResult
}

// ValidateInput applies spec.md §4.8's input guardrail. Trimming and length
// enforcement happen first, then injection detection (terminal on match),
// then PII masking and malicious-code-pattern detection (both warn-only).
func ValidateInput(raw string, maxLen int) InputResult {
	if maxLen <= 0 {
		maxLen = MaxQueryLength
	}
	trimmed := strings.TrimSpace(raw)

	if len([]rune(trimmed)) > maxLen {
		return InputResult{Rejected: true, Reason: "length"}
	}

	for _, p := range injectionPatterns {
		if p.MatchString(trimmed) {
			return InputResult{Rejected: true, Reason: "injection"}
		}
	}

	res := InputResult{}
	masked, scan := MaskPII(trimmed)
	res.MaskedText = masked
	res.PIIFindings = scan
	if scan.FindingCount > 0 {
		res.Warnings = append(res.Warnings, "pii_masked")
	}

	for _, p := range maliciousCodePatterns {
		if p.MatchString(trimmed) {
			res.Warnings = append(res.Warnings, "malicious_code_pattern")
			break
		}
	}

	return res
}

// RejectionCategory maps an InputResult's rejection reason to the
// runtime's error category. Only called when Rejected is true.
func (r InputResult) RejectionCategory() model.ErrorCategory {
	return model.ErrGuardrailInput
}
