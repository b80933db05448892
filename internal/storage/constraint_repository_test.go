package storage

import (
	"testing"

	"github.com/tessaly/bookingd/internal/model"
)

func TestOrgLocation_ResolvesIANAZone(t *testing.T) {
	loc, err := orgLocation(model.Organization{ID: "org-1", Timezone: "Pacific/Auckland"})
	if err != nil {
		t.Fatalf("orgLocation: %v", err)
	}
	if loc.String() != "Pacific/Auckland" {
		t.Fatalf("wrong location: %s", loc)
	}
}

func TestOrgLocation_CorruptedTimezoneIsAnError(t *testing.T) {
	_, err := orgLocation(model.Organization{ID: "org-1", Timezone: "Earth/Nowhere"})
	if !IsInvalidTimezone(err) {
		t.Fatalf("expected invalid-timezone error, got %v", err)
	}
}
