// Package identity canonicalizes the identifiers that join datasets:
// wallet addresses and external social handles. Every component that matches
// on either must go through these functions.
package identity

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeHandle returns the canonical form of an external handle:
// trimmed, without a leading '@', lower-cased.
// Returns "" for blank input.
func NormalizeHandle(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "@")
	h = strings.TrimSpace(h)
	return strings.ToLower(h)
}

// NormalizeWallet returns the trimmed, lower-cased wallet address. The
// 0x prefix is neither added nor removed: stores are matched in the form
// upstream wrote them.
func NormalizeWallet(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}

// WalletForms returns the normalized wallet followed, for an EVM address,
// by the same address with the 0x prefix toggled. Upstream tables may hold
// either form.
func WalletForms(w string) []string {
	n := NormalizeWallet(w)
	if n == "" {
		return nil
	}
	if !common.IsHexAddress(n) {
		return []string{n}
	}
	prefixed := strings.ToLower(common.HexToAddress(n).Hex())
	if n == prefixed {
		return []string{n, strings.TrimPrefix(prefixed, "0x")}
	}
	return []string{n, prefixed}
}

// WalletSet is a set of canonical wallet addresses.
type WalletSet map[string]struct{}

// NewWalletSet builds a set from raw addresses. EVM addresses are stored in
// both prefix forms so they match however upstream wrote them.
// Blank entries are ignored.
func NewWalletSet(wallets []string) WalletSet {
	set := make(WalletSet, len(wallets))
	for _, w := range wallets {
		for _, f := range WalletForms(w) {
			set[f] = struct{}{}
		}
	}
	return set
}

// Contains reports whether the wallet (normalized first) is in the set.
func (s WalletSet) Contains(wallet string) bool {
	if len(s) == 0 {
		return false
	}
	_, ok := s[NormalizeWallet(wallet)]
	return ok
}
