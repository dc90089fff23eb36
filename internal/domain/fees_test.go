package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteFee_BankTransferFlat(t *testing.T) {
	// $40 bank transfer carries the $2 flat fee.
	fee, err := QuoteFee(40_000_000, MethodBankTransfer)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), fee)

	// Flat fee does not scale with the amount.
	fee, err = QuoteFee(4_000_000_000, MethodBankTransfer)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), fee)
}

func TestQuoteFee_CryptoPercentWithFloor(t *testing.T) {
	// 0.5% of $1000 is $5.
	fee, err := QuoteFee(1_000_000_000, MethodCrypto)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), fee)

	// 0.5% of $20 is $0.10, below the $1 floor.
	fee, err = QuoteFee(20_000_000, MethodCrypto)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), fee)
}

func TestQuoteFee_WalletPercentWithFloor(t *testing.T) {
	// 1% of $100 is $1.
	fee, err := QuoteFee(100_000_000, MethodWallet)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), fee)

	// 1% of $10 is $0.10, below the $0.50 floor.
	fee, err = QuoteFee(10_000_000, MethodWallet)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), fee)
}

func TestQuoteFee_RejectsBadInput(t *testing.T) {
	_, err := QuoteFee(0, MethodBankTransfer)
	assert.Error(t, err)

	_, err = QuoteFee(-5_000_000, MethodCrypto)
	assert.Error(t, err)

	_, err = QuoteFee(40_000_000, "carrier_pigeon")
	assert.Error(t, err)
}
