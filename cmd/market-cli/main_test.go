package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"genomarket/crypto"
)

func writeHexKey(t *testing.T) (string, *crypto.PrivateKey) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.hex")
	require.NoError(t, os.WriteFile(path, []byte(key.Hex()+"\n"), 0o600))
	return path, key
}

func TestCallArgs(t *testing.T) {
	raw, err := callArgs(nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(raw))

	raw, err = callArgs([]string{` {"orderId":"0x01"} `})
	require.NoError(t, err)
	require.JSONEq(t, `{"orderId":"0x01"}`, string(raw))

	_, err = callArgs([]string{`{"orderId":`})
	require.Error(t, err)
}

func TestBuildEnvelopeSignsForKey(t *testing.T) {
	path, key := writeHexKey(t)
	env, err := buildEnvelope(7, 3, path, "orders.cancel_order", []string{`{"orderId":"0x01"}`})
	require.NoError(t, err)
	require.Equal(t, key.Address(), env.Caller)
	require.Equal(t, uint64(3), env.Nonce)
	require.Equal(t, uint64(7), env.ChainID)
	require.NoError(t, env.Verify())
}

func TestLoadKeyReadsKeystore(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "market.json")
	require.NoError(t, crypto.SaveToKeystore(path, key, "correct horse"))

	t.Setenv(keystorePassEnv, "correct horse")
	loaded, err := loadKey(path)
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())
}

func TestClientReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": "BadNonce", "retryable": true, "message": "nonce 1, expected 2"})
	}))
	defer srv.Close()

	err := newClient(srv.URL).do(http.MethodGet, "/accounts/x", nil, nil)
	require.EqualError(t, err, "BadNonce: nonce 1, expected 2")
}
