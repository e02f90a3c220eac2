// Package keyring is the signer/account collaborator: it exposes the
// available accounts and the active selection. Signing itself is delegated
// to the node's dev-mode signer, so no key material lives here.
package keyring

import (
	"fmt"
	"strings"

	"rampwatch/pkg/config"
	"rampwatch/pkg/models"
)

// Pair is one selectable account.
type Pair struct {
	Name    string
	Address models.Address
}

// Keyring holds the loaded accounts and the active selection.
type Keyring struct {
	pairs   []Pair
	current int
}

// Load builds a keyring from configuration. At least one account with an
// address is required.
func Load(accounts []config.AccountConfig) (*Keyring, error) {
	var pairs []Pair
	for _, a := range accounts {
		addr := strings.TrimSpace(a.Address)
		if addr == "" {
			continue
		}
		name := a.Name
		if name == "" {
			name = addr
		}
		pairs = append(pairs, Pair{Name: name, Address: models.Address(addr)})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no usable accounts in configuration")
	}
	return &Keyring{pairs: pairs}, nil
}

// Pairs returns all accounts in configuration order.
func (k *Keyring) Pairs() []Pair {
	return k.pairs
}

// Current returns the active account.
func (k *Keyring) Current() Pair {
	return k.pairs[k.current]
}

// SetCurrent selects the account at index i.
func (k *Keyring) SetCurrent(i int) error {
	if i < 0 || i >= len(k.pairs) {
		return fmt.Errorf("account index %d out of range", i)
	}
	k.current = i
	return nil
}

// Next cycles to the following account and returns it.
func (k *Keyring) Next() Pair {
	k.current = (k.current + 1) % len(k.pairs)
	return k.pairs[k.current]
}

func (k *Keyring) Len() int {
	return len(k.pairs)
}
