package delegation_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/lumenwallet/tx-engine/internal/engine/delegation"
	"github/lumenwallet/tx-engine/internal/engine/provider"
	"github/lumenwallet/tx-engine/internal/test/ethmock"
)

type staticProviders struct {
	client *ethmock.Client
}

//nolint:ireturn
func (p *staticProviders) GetClient(_ context.Context, _ int64) (provider.Client, error) {
	return p.client, nil
}

func (p *staticProviders) Close() {}

func delegationCode(delegate common.Address) []byte {
	return append([]byte{0xef, 0x01, 0x00}, delegate.Bytes()...)
}

func TestParseDelegation(t *testing.T) {
	delegate := common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")

	t.Run("designator", func(t *testing.T) {
		info := delegation.ParseDelegation(delegationCode(delegate))
		require.True(t, info.IsDelegated)
		require.NotNil(t, info.DelegateAddress)
		assert.Equal(t, delegate, *info.DelegateAddress)
	})

	t.Run("empty code", func(t *testing.T) {
		info := delegation.ParseDelegation(nil)
		assert.False(t, info.IsDelegated)
		assert.Nil(t, info.DelegateAddress)
	})

	t.Run("plain contract code", func(t *testing.T) {
		info := delegation.ParseDelegation([]byte{0x60, 0x80, 0x60, 0x40, 0x52})
		assert.False(t, info.IsDelegated)
	})

	t.Run("wrong prefix right length", func(t *testing.T) {
		code := delegationCode(delegate)
		code[0] = 0xee
		info := delegation.ParseDelegation(code)
		assert.False(t, info.IsDelegated)
	})

	t.Run("truncated designator", func(t *testing.T) {
		info := delegation.ParseDelegation([]byte{0xef, 0x01, 0x00, 0xaa})
		assert.False(t, info.IsDelegated)
	})
}

func TestDetect(t *testing.T) {
	delegate := common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")

	client := &ethmock.Client{
		CodeAtFn: func(_ context.Context, a common.Address, _ *big.Int) ([]byte, error) {
			if a == account {
				return delegationCode(delegate), nil
			}
			return nil, nil
		},
	}
	d := delegation.NewDetector(&staticProviders{client: client})

	info, err := d.Detect(context.Background(), 1, account)
	require.NoError(t, err)
	require.True(t, info.IsDelegated)
	assert.Equal(t, delegate, *info.DelegateAddress)

	info, err = d.Detect(context.Background(), 1, common.HexToAddress("0x2222222222222222222222222222222222222222"))
	require.NoError(t, err)
	assert.False(t, info.IsDelegated)
}
