// Package keyring derives and holds the engine's signing keys. Key custody
// beyond local BIP44 derivation (hardware wallets, remote signers) sits
// behind the same interface.
package keyring

import (
	"crypto/ecdsa"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

const hardened = 0x80000000

// bip44Prefix is m/44'/60'/0'/0; the address index is appended per account.
var bip44Prefix = []uint32{44 + hardened, 60 + hardened, hardened, 0}

// Service resolves accounts to their signing keys.
type Service interface {
	// Key returns the private key for account, or an error when the
	// account is not managed by this keyring.
	Key(account common.Address) (*ecdsa.PrivateKey, error)

	// Accounts lists the managed addresses in derivation order.
	Accounts() []common.Address
}

type service struct {
	mu       sync.RWMutex
	keys     map[common.Address]*ecdsa.PrivateKey
	accounts []common.Address
}

// NewFromMnemonic derives n accounts from a BIP39 mnemonic along the
// standard EVM BIP44 path.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewFromMnemonic(mnemonic string, n int) (Service, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}
	if n <= 0 {
		return nil, errors.New("at least one account is required")
	}

	seed := bip39.NewSeed(mnemonic, "")
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create master key")
	}

	s := &service{
		keys:     make(map[common.Address]*ecdsa.PrivateKey, n),
		accounts: make([]common.Address, 0, n),
	}

	for i := 0; i < n; i++ {
		indices := append(append([]uint32{}, bip44Prefix...), uint32(i))
		derived, err := deriveChild(masterKey, indices)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to derive account %d", i)
		}

		privateKey, err := crypto.ToECDSA(derived.Key)
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert derived key to ECDSA")
		}

		address := crypto.PubkeyToAddress(privateKey.PublicKey)
		s.keys[address] = privateKey
		s.accounts = append(s.accounts, address)
	}

	return s, nil
}

func deriveChild(masterKey *bip32.Key, indices []uint32) (*bip32.Key, error) {
	derivedKey := masterKey
	for _, index := range indices {
		child, err := derivedKey.NewChildKey(index)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to derive child key at index %d", index)
		}
		derivedKey = child
	}
	return derivedKey, nil
}

func (s *service) Key(account common.Address) (*ecdsa.PrivateKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	privateKey, ok := s.keys[account]
	if !ok {
		return nil, errors.Errorf("account %s is not managed by this keyring", account.Hex())
	}
	return privateKey, nil
}

func (s *service) Accounts() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Address, len(s.accounts))
	copy(out, s.accounts)
	return out
}
