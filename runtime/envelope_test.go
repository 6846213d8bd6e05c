package runtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"genomarket/core/types"
	"genomarket/crypto"
)

func TestEnvelopeDigestIgnoresArgsWhitespace(t *testing.T) {
	caller := types.Address{0x01}
	compact := &Envelope{ChainID: 7, Caller: caller, Nonce: 3, Call: "orders.pay", Args: json.RawMessage(`{"orderId":"0x01"}`)}
	spaced := &Envelope{ChainID: 7, Caller: caller, Nonce: 3, Call: "orders.pay", Args: json.RawMessage("{ \"orderId\" : \"0x01\" }\n")}

	a, err := compact.Digest()
	require.NoError(t, err)
	b, err := spaced.Digest()
	require.NoError(t, err)
	require.Equal(t, a, b)

	spaced.Nonce = 4
	c, err := spaced.Digest()
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestEnvelopeEmptyArgsAreEquivalent(t *testing.T) {
	empty := &Envelope{ChainID: 7, Call: "catalog.deregister_seller"}
	null := &Envelope{ChainID: 7, Call: "catalog.deregister_seller", Args: json.RawMessage("null")}
	object := &Envelope{ChainID: 7, Call: "catalog.deregister_seller", Args: json.RawMessage("{}")}

	want, err := empty.Digest()
	require.NoError(t, err)
	for _, env := range []*Envelope{null, object} {
		got, err := env.Digest()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	bad := &Envelope{ChainID: 7, Call: "orders.pay", Args: json.RawMessage("{not json")}
	_, err = bad.Digest()
	require.ErrorIs(t, err, ErrInvalidArgs)
}

func TestEnvelopeSurvivesJSONRoundTrip(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	env, err := NewEnvelope(7, types.Address{}, 0, "orders.cancel", OrderArgs{OrderID: types.Hash{0xAA}})
	require.NoError(t, err)
	require.NoError(t, env.Sign(key))
	require.Equal(t, key.Address(), env.Caller)
	require.NoError(t, env.Verify())

	raw, err := json.MarshalIndent(env, "", "  ")
	require.NoError(t, err)
	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NoError(t, decoded.Verify())

	h1, err := env.Hash()
	require.NoError(t, err)
	h2, err := decoded.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	var args OrderArgs
	require.NoError(t, decoded.decodeArgs(&args))
	require.Equal(t, types.Hash{0xAA}, args.OrderID)

	decoded.Nonce++
	require.ErrorIs(t, decoded.Verify(), ErrBadSignature)
	decoded.Nonce--
	decoded.Signature = decoded.Signature[:10]
	require.ErrorIs(t, decoded.Verify(), ErrBadSignature)
}
