package domain

import (
	"errors"
	"testing"
)

func TestParseOrderStatus(t *testing.T) {
	for _, s := range []string{"PENDING", "CONFIRMED", "PROCESSING", "SHIPPED", "DELIVERED", "CANCELLED", "REFUNDED"} {
		if _, err := ParseOrderStatus(s); err != nil {
			t.Errorf("ParseOrderStatus(%q) returned %v", s, err)
		}
	}
	for _, s := range []string{"", "delivered", "LOST"} {
		if _, err := ParseOrderStatus(s); !errors.Is(err, ErrValidation) {
			t.Errorf("ParseOrderStatus(%q) = %v, want validation error", s, err)
		}
	}
}

func TestParsePaymentStatus(t *testing.T) {
	if _, err := ParsePaymentStatus("COMPLETED"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParsePaymentStatus("PAID"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		total, limit, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{40, 20, 2},
		{41, 20, 3},
	}
	for _, tt := range tests {
		if got := NewPagination(tt.total, 1, tt.limit).TotalPages; got != tt.want {
			t.Errorf("NewPagination(%d, 1, %d).TotalPages = %d, want %d", tt.total, tt.limit, got, tt.want)
		}
	}
}

func TestActorHasRole(t *testing.T) {
	a := Actor{UserID: "u", Role: RoleEmployee}
	if !a.HasRole(RoleAdmin, RoleEmployee) {
		t.Error("expected employee to match")
	}
	if a.HasRole(RoleAdmin) {
		t.Error("expected employee not to match admin")
	}
}
