package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestStepNavigation(t *testing.T) {
	next, ok := StepDomain.Next()
	if !ok || next != StepTemplate {
		t.Fatalf("expected template after domain, got %s (%v)", next, ok)
	}
	if _, ok := StepCompleted.Next(); ok {
		t.Fatalf("completed must be terminal")
	}
	prev, ok := StepPayment.Previous()
	if !ok || prev != StepPersonalInfo {
		t.Fatalf("expected personal-info before payment, got %s", prev)
	}
	if _, ok := StepDomain.Previous(); ok {
		t.Fatalf("domain has no previous step")
	}
	if StepTemplate.Progress() != 50 {
		t.Fatalf("unexpected progress %d", StepTemplate.Progress())
	}
}

func TestParseStep(t *testing.T) {
	step, ok := ParseStep(" Personal-Info ")
	if !ok || step != StepPersonalInfo {
		t.Fatalf("expected personal-info, got %s", step)
	}
	step, ok = ParseStep("checkout")
	if ok || step != StepDomain {
		t.Fatalf("unknown steps must fall back to domain, got %s", step)
	}
}

func TestPersonalInfoBillingAddressDefaultsCountry(t *testing.T) {
	info := PersonalInfo{FirstName: " Ada ", LastName: "Lovelace", Address: "1 Main St", City: "Springfield"}
	addr := info.BillingAddress()
	if addr.Country != DefaultCountry {
		t.Fatalf("expected default country, got %q", addr.Country)
	}
	if info.FullName() != "Ada Lovelace" {
		t.Fatalf("unexpected full name %q", info.FullName())
	}
}

func TestDomainCandidateDiscounted(t *testing.T) {
	original := decimal.NewFromInt(12)
	c := DomainCandidate{Name: "example", Suffix: ".com", Price: decimal.NewFromInt(10), OriginalPrice: &original}
	if !c.Discounted() {
		t.Fatalf("expected discounted candidate")
	}
	if c.FQDN() != "example.com" {
		t.Fatalf("unexpected fqdn %s", c.FQDN())
	}
}
