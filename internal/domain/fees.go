package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Fee schedule per withdrawal method. Rates are fractions of the gross
// amount; flat and minimum values are micros.
var feeSchedule = map[string]feeRule{
	MethodBankTransfer: {flatMicros: 2_000_000},                                        // $2.00 flat
	MethodCrypto:       {rate: decimal.NewFromFloat(0.005), minMicros: 1_000_000},      // 0.5%, min $1.00
	MethodWallet:       {rate: decimal.NewFromFloat(0.01), minMicros: 500_000},         // 1.0%, min $0.50
}

type feeRule struct {
	flatMicros int64
	rate       decimal.Decimal
	minMicros  int64
}

// QuoteFee computes the fee for withdrawing amountMicros via method.
// Pure and deterministic; it does not check the amount against the
// withdrawal minimum or the resulting net, both of which belong to the
// caller.
func QuoteFee(amountMicros int64, method string) (int64, error) {
	if amountMicros <= 0 {
		return 0, fmt.Errorf("invalid amount: %d", amountMicros)
	}
	rule, ok := feeSchedule[method]
	if !ok {
		return 0, fmt.Errorf("unsupported withdrawal method: %q", method)
	}

	fee := rule.flatMicros
	if !rule.rate.IsZero() {
		pct := FromDecimal(NewMoney(amountMicros, "").ToDecimal().Mul(rule.rate))
		fee += pct
	}
	if fee < rule.minMicros {
		fee = rule.minMicros
	}
	return fee, nil
}
