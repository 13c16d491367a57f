package permit

import (
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github/lumenwallet/tx-engine/internal/models"
)

// buildTypedData assembles the EIP-712 payload. Field names, ordering and
// the domain shape must match the deployed token contracts bit-exact, so the
// type arrays below are spelled out rather than derived.
func buildTypedData(token *models.TokenPermitConfig, chainID int64, message models.PermitMessage) apitypes.TypedData {
	domainType := []apitypes.Type{
		{Name: "name", Type: "string"},
	}
	// Tokens that declare no version omit the field from their domain
	// separator entirely.
	if token.Version != "" {
		domainType = append(domainType, apitypes.Type{Name: "version", Type: "string"})
	}
	domainType = append(domainType,
		apitypes.Type{Name: "chainId", Type: "uint256"},
		apitypes.Type{Name: "verifyingContract", Type: "address"},
	)

	domain := apitypes.TypedDataDomain{
		Name:              token.Name,
		ChainId:           math.NewHexOrDecimal256(chainID),
		VerifyingContract: token.Address.Hex(),
	}
	if token.Version != "" {
		domain.Version = token.Version
	}

	var permitType []apitypes.Type
	var messageMap apitypes.TypedDataMessage

	if message.Kind == models.PermitAllowed {
		permitType = []apitypes.Type{
			{Name: "holder", Type: "address"},
			{Name: "spender", Type: "address"},
			{Name: "nonce", Type: "uint256"},
			{Name: "expiry", Type: "uint256"},
			{Name: "allowed", Type: "bool"},
		}
		messageMap = apitypes.TypedDataMessage{
			"holder":  message.Allowed.Holder.Hex(),
			"spender": message.Allowed.Spender.Hex(),
			"nonce":   (*math.HexOrDecimal256)(message.Allowed.Nonce),
			"expiry":  (*math.HexOrDecimal256)(message.Allowed.Expiry),
			"allowed": message.Allowed.Allowed,
		}
	} else {
		permitType = []apitypes.Type{
			{Name: "owner", Type: "address"},
			{Name: "spender", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "nonce", Type: "uint256"},
			{Name: "deadline", Type: "uint256"},
		}
		messageMap = apitypes.TypedDataMessage{
			"owner":    message.EIP2612.Owner.Hex(),
			"spender":  message.EIP2612.Spender.Hex(),
			"value":    (*math.HexOrDecimal256)(message.EIP2612.Value),
			"nonce":    (*math.HexOrDecimal256)(message.EIP2612.Nonce),
			"deadline": (*math.HexOrDecimal256)(message.EIP2612.Deadline),
		}
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"Permit":       permitType,
		},
		PrimaryType: "Permit",
		Domain:      domain,
		Message:     messageMap,
	}
}
