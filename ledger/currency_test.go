package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/wallet-ledger/ledger"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency ledger.Currency
		want     string
	}{
		{"dollars", "1000", ledger.USD, "$1,000.00"},
		{"rounds to minor unit", "12.345", ledger.USD, "$12.35"},
		{"above int64 minor units", "123456789012345678901", ledger.USD, "123456789012345678901.00 USD"},
		{"below int64 minor units", "-123456789012345678901", ledger.USD, "-123456789012345678901.00 USD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.FormatAmount(dec(tt.amount), tt.currency))
		})
	}
}
