package payments

import (
	"errors"
	"net/url"
	"strings"
)

// ErrUPINotConfigured is returned when no payee VPA is configured.
var ErrUPINotConfigured = errors.New("payments: upi payee not configured")

// UPIIntent holds the parameters of a upi://pay deep link.
type UPIIntent struct {
	PayeeVPA  string
	PayeeName string
	Amount    string
	Currency  string
	OrderID   string
}

// URI renders the intent. Parameter order follows the NPCI linking specification.
func (i UPIIntent) URI() (string, error) {
	if strings.TrimSpace(i.PayeeVPA) == "" {
		return "", ErrUPINotConfigured
	}
	params := []struct{ key, value string }{
		{"pa", i.PayeeVPA},
		{"pn", i.PayeeName},
		{"am", i.Amount},
		{"cu", i.Currency},
		{"tn", "Order " + i.OrderID},
		{"tr", i.OrderID},
	}
	var b strings.Builder
	b.WriteString("upi://pay?")
	first := true
	for _, p := range params {
		if strings.TrimSpace(p.value) == "" {
			continue
		}
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String(), nil
}
