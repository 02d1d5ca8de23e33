package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLineItemsTotalIsExact(t *testing.T) {
	items := []LineItem{
		{ProductRef: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("100.00")},
		{ProductRef: "p2", Quantity: 1, UnitPrice: decimal.RequireFromString("50.00")},
	}
	total := LineItemsTotal(items)
	if !total.Equal(decimal.RequireFromString("250.00")) {
		t.Fatalf("expected 250.00, got %s", total)
	}

	floaty := []LineItem{
		{ProductRef: "a", Quantity: 3, UnitPrice: decimal.RequireFromString("0.10")},
		{ProductRef: "b", Quantity: 1, UnitPrice: decimal.RequireFromString("0.20")},
	}
	if got := LineItemsTotal(floaty); !got.Equal(decimal.RequireFromString("0.50")) {
		t.Fatalf("expected 0.50, got %s", got)
	}
}

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		name     string
		amount   string
		currency string
		want     int64
	}{
		{"two digit currency", "199.99", "INR", 19999},
		{"whole amount", "250", "INR", 25000},
		{"half rounds up", "10.005", "USD", 1001},
		{"below half rounds down", "10.004", "USD", 1000},
		{"zero digit currency", "1500.5", "JPY", 1501},
		{"lower case code", "1.00", "inr", 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToMinorUnits(decimal.RequireFromString(tc.amount), tc.currency)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestToMinorUnitsRejectsInvalidInput(t *testing.T) {
	if _, err := ToMinorUnits(decimal.RequireFromString("-1"), "INR"); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
	if _, err := ToMinorUnits(decimal.RequireFromString("1"), "NOPE"); !errors.Is(err, ErrUnknownCurrency) {
		t.Fatalf("expected ErrUnknownCurrency, got %v", err)
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(decimal.RequireFromString("250"), "INR"); got != "250.00" {
		t.Fatalf("expected 250.00, got %s", got)
	}
	if got := FormatAmount(decimal.RequireFromString("1500"), "JPY"); got != "1500" {
		t.Fatalf("expected 1500, got %s", got)
	}
}

func TestParsePaymentMethodAliases(t *testing.T) {
	cases := map[string]PaymentMethod{
		"razorpay":         PaymentMethodCardGateway,
		"COD":              PaymentMethodCashOnDelivery,
		" upi ":            PaymentMethodUPIQR,
		"card_gateway":     PaymentMethodCardGateway,
		"cash_on_delivery": PaymentMethodCashOnDelivery,
	}
	for raw, want := range cases {
		got, ok := ParsePaymentMethod(raw)
		if !ok || got != want {
			t.Errorf("ParsePaymentMethod(%q) = %q, %v; want %q", raw, got, ok, want)
		}
	}
	if _, ok := ParsePaymentMethod("bitcoin"); ok {
		t.Fatalf("expected unknown method to be rejected")
	}
}
