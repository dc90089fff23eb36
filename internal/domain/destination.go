package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Destination is the payout target for a withdrawal. It is a tagged union
// keyed by the withdrawal method: each method requires a different set of
// fields, checked at the boundary instead of trusted as an opaque bag.
type Destination struct {
	// bank_transfer
	IBAN          string `json:"iban,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	// crypto
	Address string `json:"address,omitempty"`
	Network string `json:"network,omitempty"`
	// wallet
	Provider string `json:"provider,omitempty"`
	WalletID string `json:"wallet_id,omitempty"`
}

// Validate ensures the destination carries the required fields for method.
func (d Destination) Validate(method string) error {
	switch method {
	case MethodBankTransfer:
		if strings.TrimSpace(d.IBAN) == "" {
			return errors.New("destination.iban is required for bank_transfer")
		}
		if strings.TrimSpace(d.AccountName) == "" {
			return errors.New("destination.account_name is required for bank_transfer")
		}
	case MethodCrypto:
		if strings.TrimSpace(d.Address) == "" {
			return errors.New("destination.address is required for crypto")
		}
		if strings.TrimSpace(d.Network) == "" {
			return errors.New("destination.network is required for crypto")
		}
	case MethodWallet:
		if strings.TrimSpace(d.Provider) == "" {
			return errors.New("destination.provider is required for wallet")
		}
		if strings.TrimSpace(d.WalletID) == "" {
			return errors.New("destination.wallet_id is required for wallet")
		}
	default:
		return fmt.Errorf("unsupported withdrawal method: %q", method)
	}
	return nil
}

// Label renders a short human-readable form for logs and notifications.
func (d Destination) Label(method string) string {
	switch method {
	case MethodBankTransfer:
		if d.AccountName == "" {
			return d.IBAN
		}
		return fmt.Sprintf("%s (%s)", d.AccountName, d.IBAN)
	case MethodCrypto:
		return fmt.Sprintf("%s/%s", d.Network, d.Address)
	case MethodWallet:
		return fmt.Sprintf("%s:%s", d.Provider, d.WalletID)
	}
	return "EXTERNAL_ACCOUNT"
}

// MarshalDestination encodes a destination for the JSONB column.
func MarshalDestination(d Destination) ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalDestination decodes the JSONB column, tolerating empty payloads.
func UnmarshalDestination(raw []byte) Destination {
	var d Destination
	if len(raw) == 0 {
		return d
	}
	_ = json.Unmarshal(raw, &d)
	return d
}
