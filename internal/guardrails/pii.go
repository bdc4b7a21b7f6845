// Package guardrails implements C3: deterministic input/output filtering
// independent of any LLM. The PII scan/redact shape (Finding, ScanResult,
// descending-offset Redact) is grounded on the donor's
// internal/service/redactor.go, but the detection backend is swapped from
// a remote GCP DLP call to local regexes — spec.md §4.8 requires a
// deterministic, local mask, and per spec.md §9's third open question the
// regex set is a documented, extensible baseline rather than exhaustive.
package guardrails

import (
	"fmt"
	"regexp"
	"sort"
)

// Finding is a detected PII occurrence in text.
type Finding struct {
	InfoType   string
	Content    string
	StartIndex int
	EndIndex   int
}

// ScanResult holds the results of a local PII scan.
type ScanResult struct {
	Findings     []Finding
	FindingCount int
	Types        []string
}

// infoTypeToToken maps a detector name to the typed redaction token spec.md
// §4.8 requires (e.g. "<EMAIL>").
var infoTypeToToken = map[string]string{
	"EMAIL":    "<EMAIL>",
	"PHONE":    "<PHONE>",
	"GOV_ID":   "<GOV_ID>",
	"CARD":     "<CARD>",
	"IPV4":     "<IP>",
}

// piiPatterns is the documented baseline regex set. Extend per deployment.
// Patterns are applied in order and an earlier match claims its span, so
// CARD comes before PHONE and GOV_ID: a Luhn-valid card number is claimed
// whole instead of being split into phone/ID fragments.
var piiPatterns = []struct {
	infoType string
	re       *regexp.Regexp
}{
	{"EMAIL", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"CARD", regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)},
	{"PHONE", regexp.MustCompile(`\+?\d{1,3}[\s.\-]?\(?\d{2,4}\)?[\s.\-]?\d{3,4}[\s.\-]?\d{2,4}`)},
	{"GOV_ID", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b|\b\d{9,12}\b`)},
	{"IPV4", regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\b`)},
}

// ScanPII detects PII occurrences in text using the local regex baseline.
// Card-number candidates are additionally filtered by the Luhn check to
// reduce false positives on plain numeric runs (phone/GOV_ID already
// overlap that range, so Luhn is the discriminator for CARD specifically).
func ScanPII(text string) *ScanResult {
	if text == "" {
		return &ScanResult{}
	}

	var findings []Finding
	claimed := make([]bool, len(text)+1)

	for _, p := range piiPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if overlapsClaimed(claimed, start, end) {
				continue
			}
			content := text[start:end]
			if p.infoType == "CARD" && !isLuhnCandidate(content) {
				continue
			}
			findings = append(findings, Finding{
				InfoType:   p.infoType,
				Content:    content,
				StartIndex: start,
				EndIndex:   end,
			})
			markClaimed(claimed, start, end)
		}
	}

	typeSet := make(map[string]bool)
	for _, f := range findings {
		typeSet[f.InfoType] = true
	}
	types := make([]string, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}
	sort.Strings(types)

	return &ScanResult{Findings: findings, FindingCount: len(findings), Types: types}
}

// Redact replaces findings in text with typed tokens. Findings are applied
// in descending StartIndex order so earlier offsets stay valid — grounded
// on the donor's redactor.go Redact. Redact is idempotent: re-scanning and
// re-redacting an already-masked string finds no further PII (the tokens
// themselves don't match any pattern), satisfying spec.md §8's masking
// idempotence property.
func Redact(text string, findings []Finding) string {
	if len(findings) == 0 {
		return text
	}
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartIndex > sorted[j].StartIndex })

	result := text
	for _, f := range sorted {
		if f.StartIndex < 0 || f.EndIndex > len(result) || f.StartIndex >= f.EndIndex {
			continue
		}
		token, ok := infoTypeToToken[f.InfoType]
		if !ok {
			token = "<PII>"
		}
		result = result[:f.StartIndex] + token + result[f.EndIndex:]
	}
	return result
}

// MaskPII is the common scan+redact entry point used by both the input and
// output guardrail stages.
func MaskPII(text string) (masked string, result *ScanResult) {
	result = ScanPII(text)
	return Redact(text, result.Findings), result
}

func overlapsClaimed(claimed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func markClaimed(claimed []bool, start, end int) {
	for i := start; i < end; i++ {
		claimed[i] = true
	}
}

// isLuhnCandidate checks a numeric string (spaces/dashes allowed) against
// the Luhn checksum, used to avoid flagging arbitrary digit runs as card
// numbers.
func isLuhnCandidate(s string) bool {
	var digits []int
	for _, r := range s {
		if r == ' ' || r == '-' {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
		digits = append(digits, int(r-'0'))
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	parity := len(digits) % 2
	for i, d := range digits {
		if i%2 == parity {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

func (r *ScanResult) String() string {
	return fmt.Sprintf("%d PII finding(s): %v", r.FindingCount, r.Types)
}
