package guardrails

import "testing"

func TestScanPII_DetectsEmail(t *testing.T) {
	res := ScanPII("reach me at john.smith@example.org for details")
	if res.FindingCount != 1 || res.Findings[0].InfoType != "EMAIL" {
		t.Errorf("ScanPII() = %+v, want one EMAIL finding", res)
	}
}

func TestScanPII_CardNumberRequiresLuhnValidity(t *testing.T) {
	// 4111111111111111 is a well-known Luhn-valid test Visa number.
	valid := ScanPII("card 4111111111111111 on file")
	hasCard := false
	for _, f := range valid.Findings {
		if f.InfoType == "CARD" {
			hasCard = true
		}
	}
	if !hasCard {
		t.Errorf("expected a CARD finding for a Luhn-valid number, got %+v", valid)
	}

	// An arbitrary 16-digit run that fails Luhn should not be flagged as CARD
	// (GOV_ID's 9-12 digit pattern doesn't match 16 digits either).
	invalid := ScanPII("reference number 1234567890123456 stored")
	for _, f := range invalid.Findings {
		if f.InfoType == "CARD" {
			t.Errorf("did not expect a CARD finding for a Luhn-invalid run: %+v", invalid)
		}
	}
}

func TestScanPII_EmptyTextHasNoFindings(t *testing.T) {
	res := ScanPII("")
	if res.FindingCount != 0 {
		t.Errorf("ScanPII(\"\") = %+v, want zero findings", res)
	}
}

func TestRedact_ReplacesFindingsWithTypedTokens(t *testing.T) {
	text := "email me at a@b.com"
	scan := ScanPII(text)
	redacted := Redact(text, scan.Findings)
	if redacted == text {
		t.Error("expected Redact to change the text")
	}
	want := "email me at <EMAIL>"
	if redacted != want {
		t.Errorf("Redact() = %q, want %q", redacted, want)
	}
}

func TestMaskPII_IsIdempotent(t *testing.T) {
	text := "contact a@b.com or 4111111111111111"
	masked1, _ := MaskPII(text)
	masked2, scan2 := MaskPII(masked1)

	if masked1 != masked2 {
		t.Errorf("MaskPII is not idempotent: %q != %q", masked1, masked2)
	}
	if scan2.FindingCount != 0 {
		t.Errorf("re-scanning already-masked text found %d findings, want 0", scan2.FindingCount)
	}
}
