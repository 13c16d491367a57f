package permit_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/lumenwallet/tx-engine/internal/config"
	"github/lumenwallet/tx-engine/internal/engine/keyring"
	"github/lumenwallet/tx-engine/internal/engine/permit"
	"github/lumenwallet/tx-engine/internal/models"
	"github/lumenwallet/tx-engine/internal/test/ethmock"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var (
	testSpender = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testToken   = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func testKeyring(t *testing.T) keyring.Service {
	t.Helper()
	keys, err := keyring.NewFromMnemonic(testMnemonic, 1)
	require.NoError(t, err)
	return keys
}

func testConfig() config.Engine {
	return config.Engine{
		SubmitAttempts: 3,
		SubmitBackoff:  time.Millisecond,
	}
}

func eip2612Token() *models.TokenPermitConfig {
	return &models.TokenPermitConfig{
		Address: testToken,
		Name:    "USD Coin",
		Version: "2",
		Kind:    models.PermitEIP2612,
	}
}

func nonceClient(nonce int64) *ethmock.Client {
	return &ethmock.Client{
		CallContractFn: func(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			return common.LeftPadBytes(big.NewInt(nonce).Bytes(), 32), nil
		},
	}
}

func TestSignPermitSkipsWithoutTokenConfig(t *testing.T) {
	keys := testKeyring(t)
	s := permit.NewService(keys, testConfig())
	client := &ethmock.Client{}

	result, err := s.SignPermit(context.Background(), client, 1, nil,
		keys.Accounts()[0], testSpender, big.NewInt(0), big.NewInt(100))
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.NotEmpty(t, result.SkipReason)
	assert.Nil(t, result.Permit)
	// Skip decisions never touch the network.
	assert.Zero(t, client.TotalCalls())
}

func TestSignPermitSkipsWhenAllowanceSufficient(t *testing.T) {
	keys := testKeyring(t)
	s := permit.NewService(keys, testConfig())
	client := &ethmock.Client{}

	result, err := s.SignPermit(context.Background(), client, 1, eip2612Token(),
		keys.Accounts()[0], testSpender, big.NewInt(100), big.NewInt(100))
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, client.TotalCalls())
}

func TestSignPermitEIP2612(t *testing.T) {
	keys := testKeyring(t)
	owner := keys.Accounts()[0]
	s := permit.NewService(keys, testConfig())

	before := time.Now()
	result, err := s.SignPermit(context.Background(), nonceClient(7), 1, eip2612Token(),
		owner, testSpender, big.NewInt(0), big.NewInt(1_000_000))
	require.NoError(t, err)
	require.False(t, result.Skipped)
	require.NotNil(t, result.Permit)

	message := result.Permit.Message
	require.Equal(t, models.PermitEIP2612, message.Kind)
	require.NotNil(t, message.EIP2612)
	assert.Equal(t, owner, message.EIP2612.Owner)
	assert.Equal(t, testSpender, message.EIP2612.Spender)
	assert.Equal(t, big.NewInt(1_000_000), message.EIP2612.Value)
	assert.Equal(t, big.NewInt(7), message.EIP2612.Nonce)

	// Deadline is pinned 20 minutes out.
	deadline := time.Unix(message.EIP2612.Deadline.Int64(), 0)
	assert.WithinDuration(t, before.Add(models.PermitValidity), deadline, 5*time.Second)

	// The signature recovers to the owner under the exact typed data the
	// token contract will reconstruct.
	digest := eip2612Digest(t, message, "2")
	recovered := recoverSigner(t, digest, result.Permit)
	assert.Equal(t, owner, recovered)
}

func TestSignPermitIdempotent(t *testing.T) {
	keys := testKeyring(t)
	owner := keys.Accounts()[0]
	s := permit.NewService(keys, testConfig())

	sign := func() *permit.Result {
		result, err := s.SignPermit(context.Background(), nonceClient(7), 1, eip2612Token(),
			owner, testSpender, big.NewInt(0), big.NewInt(1_000_000))
		require.NoError(t, err)
		require.False(t, result.Skipped)
		return result
	}

	// The deadline is clock-derived; retry the pair if the calls straddled
	// a second boundary.
	var first, second *permit.Result
	for range 3 {
		first, second = sign(), sign()
		if first.Permit.Message.EIP2612.Deadline.Cmp(second.Permit.Message.EIP2612.Deadline) == 0 {
			break
		}
	}
	require.Equal(t, first.Permit.Message.EIP2612.Deadline, second.Permit.Message.EIP2612.Deadline)
	assert.Equal(t, big.NewInt(7), first.Permit.Message.EIP2612.Nonce)
	assert.Equal(t, big.NewInt(7), second.Permit.Message.EIP2612.Nonce)

	// With the (owner, spender, value, nonce, deadline) tuple unchanged,
	// both signatures must validate against one and the same digest.
	digest := eip2612Digest(t, first.Permit.Message, "2")
	assert.Equal(t, owner, recoverSigner(t, digest, first.Permit))
	assert.Equal(t, owner, recoverSigner(t, digest, second.Permit))

	// Deterministic ECDSA: unchanged inputs reproduce the signature.
	assert.Equal(t, first.Permit.R, second.Permit.R)
	assert.Equal(t, first.Permit.S, second.Permit.S)
	assert.Equal(t, first.Permit.V, second.Permit.V)
}

func TestSignPermitOmitsDomainVersionWhenEmpty(t *testing.T) {
	keys := testKeyring(t)
	owner := keys.Accounts()[0]
	s := permit.NewService(keys, testConfig())

	token := eip2612Token()
	token.Version = ""

	result, err := s.SignPermit(context.Background(), nonceClient(0), 1, token,
		owner, testSpender, big.NewInt(0), big.NewInt(5))
	require.NoError(t, err)
	require.NotNil(t, result.Permit)

	// Recovery only succeeds against a domain separator without a version
	// field; a defaulted "1" would produce a different digest.
	digest := eip2612Digest(t, result.Permit.Message, "")
	recovered := recoverSigner(t, digest, result.Permit)
	assert.Equal(t, owner, recovered)
}

func TestSignPermitAllowedVariant(t *testing.T) {
	keys := testKeyring(t)
	owner := keys.Accounts()[0]
	s := permit.NewService(keys, testConfig())

	token := &models.TokenPermitConfig{
		Address: testToken,
		Name:    "Dai Stablecoin",
		Version: "1",
		Kind:    models.PermitAllowed,
	}

	result, err := s.SignPermit(context.Background(), nonceClient(3), 1, token,
		owner, testSpender, big.NewInt(0), big.NewInt(100))
	require.NoError(t, err)
	require.NotNil(t, result.Permit)

	message := result.Permit.Message
	require.Equal(t, models.PermitAllowed, message.Kind)
	require.NotNil(t, message.Allowed)
	assert.Nil(t, message.EIP2612)
	assert.Equal(t, owner, message.Allowed.Holder)
	assert.Equal(t, testSpender, message.Allowed.Spender)
	assert.Equal(t, big.NewInt(3), message.Allowed.Nonce)
	assert.True(t, message.Allowed.Allowed)
	assert.True(t, result.Permit.V == 27 || result.Permit.V == 28)
}

func TestSignPermitUnknownOwner(t *testing.T) {
	keys := testKeyring(t)
	s := permit.NewService(keys, testConfig())

	stranger := common.HexToAddress("0x9999999999999999999999999999999999999999")
	_, err := s.SignPermit(context.Background(), nonceClient(0), 1, eip2612Token(),
		stranger, testSpender, big.NewInt(0), big.NewInt(1))
	require.Error(t, err)
}

func TestSignPermitNonceFetchRetriesTransientErrors(t *testing.T) {
	keys := testKeyring(t)
	owner := keys.Accounts()[0]
	s := permit.NewService(keys, testConfig())

	calls := 0
	client := &ethmock.Client{
		CallContractFn: func(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			calls++
			if calls < 3 {
				return nil, assert.AnError // unknown kind, not retried
			}
			return make([]byte, 32), nil
		},
	}

	_, err := s.SignPermit(context.Background(), client, 1, eip2612Token(),
		owner, testSpender, big.NewInt(0), big.NewInt(1))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

// eip2612Digest reconstructs the digest exactly as the verifying contract
// does.
func eip2612Digest(t *testing.T, message models.PermitMessage, version string) []byte {
	t.Helper()

	domainType := []apitypes.Type{{Name: "name", Type: "string"}}
	if version != "" {
		domainType = append(domainType, apitypes.Type{Name: "version", Type: "string"})
	}
	domainType = append(domainType,
		apitypes.Type{Name: "chainId", Type: "uint256"},
		apitypes.Type{Name: "verifyingContract", Type: "address"},
	)

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"Permit": []apitypes.Type{
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              "USD Coin",
			Version:           version,
			ChainId:           math.NewHexOrDecimal256(1),
			VerifyingContract: testToken.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    message.EIP2612.Owner.Hex(),
			"spender":  message.EIP2612.Spender.Hex(),
			"value":    (*math.HexOrDecimal256)(message.EIP2612.Value),
			"nonce":    (*math.HexOrDecimal256)(message.EIP2612.Nonce),
			"deadline": (*math.HexOrDecimal256)(message.EIP2612.Deadline),
		},
	}

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	require.NoError(t, err)
	return digest
}

func recoverSigner(t *testing.T, digest []byte, signed *models.SignedPermit) common.Address {
	t.Helper()

	signature := make([]byte, 65)
	copy(signature[:32], signed.R.Bytes())
	copy(signature[32:64], signed.S.Bytes())
	signature[64] = signed.V - 27

	pubKey, err := crypto.SigToPub(digest, signature)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(*pubKey)
}
