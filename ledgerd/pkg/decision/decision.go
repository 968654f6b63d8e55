// Package decision defines the signed payloads the settlement authority
// produces: the winning decision applied by Settle, and the standalone
// authorization consumed by Recover. Payloads are borsh-encoded and signed
// with the authority's ed25519 key, the same key scheme as Solana wallets.
package decision

import (
	"crypto/ed25519"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Payload is a settlement decision. TotalEntries is the freshness token: it
// must equal the registry's counter at apply time, so a decision signed
// against an earlier round cannot be replayed after the registry has moved on.
type Payload struct {
	TierID       uint8
	Winner       solana.PublicKey
	TotalEntries uint64
	IssuedAt     int64 // unix seconds
}

// Marshal encodes the payload in borsh.
func (p *Payload) Marshal() ([]byte, error) {
	data, err := bin.MarshalBorsh(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision payload: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a borsh payload.
func Unmarshal(data []byte) (*Payload, error) {
	var p Payload
	if err := bin.UnmarshalBorsh(&p, data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision payload: %w", err)
	}
	return &p, nil
}

// Sign encodes and signs a payload with the authority's private key,
// returning the wire payload and its signature.
func Sign(key solana.PrivateKey, p *Payload) (payload []byte, sig []byte, err error) {
	payload, err = p.Marshal()
	if err != nil {
		return nil, nil, err
	}
	signature, err := key.Sign(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign decision payload: %w", err)
	}
	return payload, signature[:], nil
}

// Verify reports whether sig is a valid authority signature over payload.
func Verify(authority solana.PublicKey, payload, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(authority[:]), payload, sig)
}

// RecoverMessage is the canonical byte string an authority signs to authorize
// an emergency recovery. It binds the tier and an issue time so a captured
// authorization cannot be replayed indefinitely.
func RecoverMessage(tierID uint8, issuedAt time.Time) []byte {
	return []byte(fmt.Sprintf("gauntlet/recover/v1:%d:%d", tierID, issuedAt.Unix()))
}

// SignRecovery signs a recovery authorization for the given tier.
func SignRecovery(key solana.PrivateKey, tierID uint8, issuedAt time.Time) ([]byte, error) {
	signature, err := key.Sign(RecoverMessage(tierID, issuedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to sign recovery authorization: %w", err)
	}
	return signature[:], nil
}

// VerifyRecovery reports whether sig authorizes recovery of the given tier.
func VerifyRecovery(authority solana.PublicKey, tierID uint8, issuedAt time.Time, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(authority[:]), RecoverMessage(tierID, issuedAt), sig)
}
