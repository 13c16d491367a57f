// Package delegation determines whether an account has delegated execution
// authority to a smart-contract wallet on a given chain.
package delegation

import (
	"bytes"
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github/lumenwallet/tx-engine/internal/engine/provider"
	"github/lumenwallet/tx-engine/internal/models"
)

// delegationPrefix is the EIP-7702 delegation designator: accounts that have
// authorized a delegate carry code of the form 0xef0100 || delegate address.
var delegationPrefix = []byte{0xef, 0x01, 0x00}

const delegationCodeLength = 23

// Detector reports the delegation status of an account. The result is
// recomputed on every call; chain state can change between signing attempts.
type Detector interface {
	Detect(ctx context.Context, chainID int64, account common.Address) (models.DelegationInfo, error)
}

type detector struct {
	providers provider.Service
}

// NewDetector creates a delegation detector backed by the provider service.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewDetector(providers provider.Service) Detector {
	return &detector{providers: providers}
}

func (d *detector) Detect(ctx context.Context, chainID int64, account common.Address) (models.DelegationInfo, error) {
	client, err := d.providers.GetClient(ctx, chainID)
	if err != nil {
		return models.DelegationInfo{}, errors.Wrap(err, "failed to get RPC client")
	}

	code, err := client.CodeAt(ctx, account, nil)
	if err != nil {
		return models.DelegationInfo{}, errors.Wrap(err, "failed to get account code")
	}

	return ParseDelegation(code), nil
}

// ParseDelegation interprets account code as a delegation designator.
// Anything that is not exactly a 23-byte 0xef0100-prefixed designator means
// the account is not delegated.
func ParseDelegation(code []byte) models.DelegationInfo {
	if len(code) != delegationCodeLength || !bytes.HasPrefix(code, delegationPrefix) {
		return models.DelegationInfo{IsDelegated: false}
	}

	delegate := common.BytesToAddress(code[len(delegationPrefix):])
	return models.DelegationInfo{
		IsDelegated:     true,
		DelegateAddress: &delegate,
	}
}
