package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestinationValidate(t *testing.T) {
	bank := Destination{IBAN: "DE89370400440532013000", AccountName: "Jane Doe"}
	require.NoError(t, bank.Validate(MethodBankTransfer))
	assert.Error(t, bank.Validate(MethodCrypto))

	crypto := Destination{Address: "0xabc123", Network: "ethereum"}
	require.NoError(t, crypto.Validate(MethodCrypto))
	assert.Error(t, crypto.Validate(MethodWallet))

	wallet := Destination{Provider: "paypal", WalletID: "jane@example.com"}
	require.NoError(t, wallet.Validate(MethodWallet))
	assert.Error(t, wallet.Validate(MethodBankTransfer))

	assert.Error(t, Destination{}.Validate("unknown"))
	assert.Error(t, Destination{IBAN: "   "}.Validate(MethodBankTransfer))
}

func TestDestinationRoundTrip(t *testing.T) {
	d := Destination{Address: "bc1qxyz", Network: "bitcoin"}
	raw, err := MarshalDestination(d)
	require.NoError(t, err)

	got := UnmarshalDestination(raw)
	assert.Equal(t, d, got)

	assert.Equal(t, Destination{}, UnmarshalDestination(nil))
}

func TestDestinationLabel(t *testing.T) {
	assert.Equal(t, "Jane Doe (DE89)", Destination{IBAN: "DE89", AccountName: "Jane Doe"}.Label(MethodBankTransfer))
	assert.Equal(t, "ethereum/0xabc", Destination{Address: "0xabc", Network: "ethereum"}.Label(MethodCrypto))
	assert.Equal(t, "paypal:jane", Destination{Provider: "paypal", WalletID: "jane"}.Label(MethodWallet))
}
