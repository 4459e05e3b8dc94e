package models

import (
	"testing"
	"time"
)

func TestUserHasRole(t *testing.T) {
	cases := []struct {
		roles string
		role  string
		want  bool
	}{
		{"patient", RolePatient, true},
		{"provider", RoleProvider, true},
		{"patient,provider", RoleProvider, true},
		{"patient, provider", RoleProvider, true},
		{"patient", RoleProvider, false},
		{"", RolePatient, false},
	}

	for _, tc := range cases {
		u := User{Roles: tc.roles}
		if got := u.HasRole(tc.role); got != tc.want {
			t.Errorf("User{Roles: %q}.HasRole(%q) = %v, want %v", tc.roles, tc.role, got, tc.want)
		}
	}
}

func TestCreditConsumedAndExpired(t *testing.T) {
	now := time.Now()

	c := Credit{ExpiresAt: now.Add(time.Hour)}
	if c.Consumed() {
		t.Error("credit with no booking should not be consumed")
	}
	if c.Expired(now) {
		t.Error("credit expiring in an hour should not be expired")
	}

	bookingID := uint(7)
	c.BookingID = &bookingID
	if !c.Consumed() {
		t.Error("credit with a booking should be consumed")
	}
	if !c.Expired(now.Add(2 * time.Hour)) {
		t.Error("credit past its expiry should be expired")
	}
	if !c.Expired(c.ExpiresAt) {
		t.Error("credit expiring exactly now should count as expired")
	}
}

func TestBookingAnonymous(t *testing.T) {
	b := Booking{ProviderID: 1, CreditID: 1}
	if !b.Anonymous() {
		t.Error("booking without a patient should be anonymous")
	}

	patientID := uint(2)
	b.PatientID = &patientID
	if b.Anonymous() {
		t.Error("booking with a patient should not be anonymous")
	}
}

func TestKnownStatus(t *testing.T) {
	for _, s := range []string{StatusPending, StatusConfirmed, StatusCanceled, StatusRescheduled, StatusCompleted} {
		if !KnownStatus(s) {
			t.Errorf("KnownStatus(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"", "archived", "Pending", "CANCELED"} {
		if KnownStatus(s) {
			t.Errorf("KnownStatus(%q) = true, want false", s)
		}
	}
}
