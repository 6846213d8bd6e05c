package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"genomarket/cmd/internal/passphrase"
	"genomarket/core/types"
	"genomarket/crypto"
	"genomarket/runtime"
	"genomarket/services/orderindex"
)

const (
	keystorePassEnv = "MARKET_KEYSTORE_PASS"
	rpcURLEnv       = "MARKET_RPC_URL"
	defaultRPCURL   = "http://localhost:8080"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "keygen":
		err = keygen(args)
	case "address":
		err = address(args)
	case "sign":
		err = sign(args)
	case "submit":
		err = submit(args)
	case "export-orders":
		err = exportOrders(args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: market-cli <command> [arguments]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  keygen <keystore-path>                      Create a new encrypted signing key")
	fmt.Fprintln(os.Stderr, "  address <key-file>                          Print the address of a key")
	fmt.Fprintln(os.Stderr, "  sign [-chain N] [-nonce N] <key-file> <call> [args-json]")
	fmt.Fprintln(os.Stderr, "                                              Print a signed envelope")
	fmt.Fprintln(os.Stderr, "  submit [-rpc URL] <key-file> <call> [args-json]")
	fmt.Fprintln(os.Stderr, "                                              Sign with the current nonce and submit")
	fmt.Fprintln(os.Stderr, "  export-orders -dsn DSN -out FILE [-driver sqlite|postgres] [-pallet P] [-status S]")
	fmt.Fprintln(os.Stderr, "                                              Export indexed orders to parquet")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintf(os.Stderr, "Keystore passphrases are read from %s or prompted for.\n", keystorePassEnv)
}

func keygen(args []string) error {
	if len(args) != 1 {
		return errors.New("keygen takes exactly one keystore path")
	}
	pass, err := passphrase.NewSource(keystorePassEnv).WithConfirmation().Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(args[0], key, pass); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Printf("Address:  %s\n", key.Address())
	fmt.Printf("Keystore: %s\n", args[0])
	return nil
}

func address(args []string) error {
	if len(args) != 1 {
		return errors.New("address takes exactly one key file")
	}
	key, err := loadKey(args[0])
	if err != nil {
		return err
	}
	fmt.Println(key.Address())
	return nil
}

// loadKey only asks for a passphrase when path holds a keystore.
func loadKey(path string) (*crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return crypto.LoadKey(path, "")
	}
	pass, err := passphrase.NewSource(keystorePassEnv).Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

// callArgs returns the JSON arguments for a call. A missing argument means {}.
func callArgs(rest []string) (json.RawMessage, error) {
	if len(rest) == 0 {
		return json.RawMessage("{}"), nil
	}
	raw := json.RawMessage(strings.TrimSpace(rest[0]))
	if !json.Valid(raw) {
		return nil, fmt.Errorf("arguments are not valid JSON: %s", rest[0])
	}
	return raw, nil
}

func buildEnvelope(chainID, nonce uint64, keyPath, call string, rest []string) (*runtime.Envelope, error) {
	key, err := loadKey(keyPath)
	if err != nil {
		return nil, err
	}
	raw, err := callArgs(rest)
	if err != nil {
		return nil, err
	}
	env, err := runtime.NewEnvelope(chainID, key.Address(), nonce, call, raw)
	if err != nil {
		return nil, err
	}
	if err := env.Sign(key); err != nil {
		return nil, err
	}
	return env, nil
}

func sign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	chainID := fs.Uint64("chain", 1337, "chain id the envelope is valid for")
	nonce := fs.Uint64("nonce", 0, "caller account nonce")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("sign needs a key file and a call")
	}
	env, err := buildEnvelope(*chainID, *nonce, fs.Arg(0), fs.Arg(1), fs.Args()[2:])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	if base == "" {
		base = os.Getenv(rpcURLEnv)
	}
	if base == "" {
		base = defaultRPCURL
	}
	return &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 15 * time.Second}}
}

func (c *client) do(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func submit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	rpcURL := fs.String("rpc", "", "node RPC URL (defaults to "+rpcURLEnv+" or "+defaultRPCURL+")")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("submit needs a key file and a call")
	}
	key, err := loadKey(fs.Arg(0))
	if err != nil {
		return err
	}
	c := newClient(*rpcURL)

	var calls struct {
		ChainID uint64 `json:"chainId"`
	}
	if err := c.do(http.MethodGet, "/calls", nil, &calls); err != nil {
		return fmt.Errorf("fetch chain id: %w", err)
	}
	var account struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := c.do(http.MethodGet, "/accounts/"+key.Address().String(), nil, &account); err != nil {
		return fmt.Errorf("fetch nonce: %w", err)
	}

	raw, err := callArgs(fs.Args()[2:])
	if err != nil {
		return err
	}
	env, err := runtime.NewEnvelope(calls.ChainID, key.Address(), account.Nonce, fs.Arg(1), raw)
	if err != nil {
		return err
	}
	if err := env.Sign(key); err != nil {
		return err
	}

	var receipt json.RawMessage
	if err := c.do(http.MethodPost, "/tx", env, &receipt); err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, receipt, "", "  "); err != nil {
		return err
	}
	fmt.Println(pretty.String())
	return nil
}

func exportOrders(args []string) error {
	fs := flag.NewFlagSet("export-orders", flag.ContinueOnError)
	driver := fs.String("driver", "sqlite", "index database driver")
	dsn := fs.String("dsn", "", "index database DSN")
	out := fs.String("out", "orders.parquet", "output parquet file")
	pallet := fs.String("pallet", "", "only export this marketplace")
	status := fs.String("status", "", "only export orders in this status")
	seller := fs.String("seller", "", "only export orders for this seller address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*dsn) == "" {
		return errors.New("export-orders requires -dsn")
	}
	q := orderindex.Query{Pallet: *pallet, Status: *status}
	if *seller != "" {
		addr, err := types.ParseAddress(*seller)
		if err != nil {
			return fmt.Errorf("seller: %w", err)
		}
		q.Seller = addr.String()
	}

	db, err := orderindex.Open(*driver, *dsn)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	n, err := orderindex.New(db, nil).ExportParquet(*out, q)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d orders to %s\n", n, *out)
	return nil
}
