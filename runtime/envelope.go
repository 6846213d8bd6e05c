package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"genomarket/core/types"
	"genomarket/crypto"
)

// Envelope is a signed call submitted by an account. The signature covers
// keccak256(rlp([chainId, caller, nonce, call, args])) where args is the
// compact JSON encoding of the call arguments.
type Envelope struct {
	ChainID   uint64          `json:"chainId"`
	Caller    types.Address   `json:"caller"`
	Nonce     uint64          `json:"nonce"`
	Call      string          `json:"call"`
	Args      json.RawMessage `json:"args"`
	Signature hexutil.Bytes   `json:"signature"`
}

func canonicalArgs(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return buf.Bytes(), nil
}

// NewEnvelope encodes args and builds an unsigned envelope.
func NewEnvelope(chainID uint64, caller types.Address, nonce uint64, call string, args interface{}) (*Envelope, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	return &Envelope{ChainID: chainID, Caller: caller, Nonce: nonce, Call: call, Args: encoded}, nil
}

// Digest returns the 32-byte hash the caller signs.
func (e *Envelope) Digest() ([]byte, error) {
	args, err := canonicalArgs(e.Args)
	if err != nil {
		return nil, err
	}
	encoded, err := rlp.EncodeToBytes([]interface{}{e.ChainID, e.Caller, e.Nonce, e.Call, args})
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(encoded), nil
}

// Hash identifies the envelope in logs and API responses.
func (e *Envelope) Hash() (types.Hash, error) {
	digest, err := e.Digest()
	if err != nil {
		return types.Hash{}, err
	}
	var h types.Hash
	copy(h[:], digest)
	return h, nil
}

// Sign sets the caller to the key's address and signs the envelope.
func (e *Envelope) Sign(key *crypto.PrivateKey) error {
	e.Caller = key.Address()
	digest, err := e.Digest()
	if err != nil {
		return err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return err
	}
	e.Signature = sig
	return nil
}

// Verify checks that the signature was produced by Caller.
func (e *Envelope) Verify() error {
	digest, err := e.Digest()
	if err != nil {
		return err
	}
	signer, err := crypto.RecoverAddress(digest, e.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer != e.Caller {
		return ErrBadSignature
	}
	return nil
}

// decodeArgs strictly decodes the envelope arguments into out.
func (e *Envelope) decodeArgs(out interface{}) error {
	args, err := canonicalArgs(e.Args)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}
