package node

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	solgate "github.com/solgatepay/solgate/pkg"
	"github.com/solgatepay/solgate/pkg/solana"
)

// interface guard ensures RPC implements solgate.L1
var _ solgate.L1 = &RPC{}

const rpcTimeout = 15 * time.Second
const confirmPollInterval = 2 * time.Second
const confirmAttempts = 30

// NewSolanaRPC returns a solgate.L1 implementor that talks JSON-RPC
// to the configured Solana node.
func NewSolanaRPC(config solgate.Config) (*RPC, error) {
	nodeConf := config.NodeOf()
	if nodeConf.RPCURL == "" {
		return nil, fmt.Errorf("no RPC URL configured for network %q", config.Solgate.Network)
	}
	return &RPC{
		url:        nodeConf.RPCURL,
		commitment: nodeConf.Commitment,
		client:     &http.Client{Timeout: rpcTimeout},
	}, nil
}

type RPC struct {
	url        string
	commitment string
	client     *http.Client
	id         uint64
}

type rpcRequest struct {
	JsonRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	Id      uint64 `json:"id"`
}
type rpcResponse struct {
	Id     uint64           `json:"id"`
	Result *json.RawMessage `json:"result"`
	Error  *rpcError        `json:"error"`
}
type rpcError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// errNullResult marks a successful response whose result is null
// (e.g. getTransaction for an unknown signature).
var errNullResult = errors.New("json-rpc null result")

func (l *RPC) request(method string, params []any, result any) error {
	l.id += 1 // each request should use a unique ID
	body := rpcRequest{
		JsonRPC: "2.0",
		Method:  method,
		Params:  params,
		Id:      l.id,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("json-rpc marshal request: %v", err)
	}
	req, err := http.NewRequest("POST", l.url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("json-rpc request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("json-rpc transport: %v", err)
	}
	// we MUST read all of res.Body and call res.Close,
	// otherwise the underlying connection cannot be re-used.
	defer res.Body.Close()
	res_bytes, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("json-rpc read response: %v", err)
	}
	if res.StatusCode != 200 {
		return fmt.Errorf("json-rpc status code: %s", res.Status)
	}
	var rpcres rpcResponse
	err = json.Unmarshal(res_bytes, &rpcres)
	if err != nil {
		return fmt.Errorf("json-rpc unmarshal response: %v", err)
	}
	if rpcres.Id != body.Id {
		return fmt.Errorf("json-rpc wrong ID returned: %v vs %v", rpcres.Id, body.Id)
	}
	if rpcres.Error != nil {
		return fmt.Errorf("json-rpc error returned: %d %s", rpcres.Error.Code, rpcres.Error.Message)
	}
	if rpcres.Result == nil {
		return errNullResult
	}
	err = json.Unmarshal(*rpcres.Result, result)
	if err != nil {
		return fmt.Errorf("json-rpc unmarshal result: %v | %v", err, string(*rpcres.Result))
	}
	return nil
}

func (l *RPC) MakeAddress() (solgate.Address, solgate.Privkey, error) {
	// key generation is local, no node round-trip
	address, secret, err := solana.GenerateKeypair()
	if err != nil {
		return "", "", err
	}
	return solgate.Address(address), solgate.Privkey(secret), nil
}

func (l *RPC) ListSignatures(addr solgate.Address, limit int) (sigs []string, err error) {
	var result []struct {
		Signature string `json:"signature"`
	}
	err = l.request("getSignaturesForAddress",
		[]any{addr, map[string]any{"limit": limit, "commitment": l.commitment}}, &result)
	if err != nil {
		return nil, err
	}
	for _, entry := range result {
		sigs = append(sigs, entry.Signature)
	}
	return sigs, nil
}

func (l *RPC) GetTransaction(signature string) (solgate.TxnInfo, error) {
	var result struct {
		Meta struct {
			PreBalances  []int64 `json:"preBalances"`
			PostBalances []int64 `json:"postBalances"`
		} `json:"meta"`
		Transaction struct {
			Message struct {
				AccountKeys []string `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
	}
	err := l.request("getTransaction", []any{signature, map[string]any{
		"encoding":                       "json",
		"commitment":                     l.commitment,
		"maxSupportedTransactionVersion": 0,
	}}, &result)
	if err == errNullResult {
		return solgate.TxnInfo{}, solgate.NewErr(solgate.NotFound, "no such transaction: %v", signature)
	}
	if err != nil {
		return solgate.TxnInfo{}, err
	}
	info := solgate.TxnInfo{
		PreBalances:  result.Meta.PreBalances,
		PostBalances: result.Meta.PostBalances,
	}
	for _, key := range result.Transaction.Message.AccountKeys {
		info.AccountKeys = append(info.AccountKeys, solgate.Address(key))
	}
	return info, nil
}

func (l *RPC) GetBalance(addr solgate.Address) (int64, error) {
	var result struct {
		Value int64 `json:"value"`
	}
	err := l.request("getBalance", []any{addr, map[string]any{"commitment": l.commitment}}, &result)
	if err != nil {
		return 0, err
	}
	return result.Value, nil
}

func (l *RPC) GetRentExemptReserve() (reserve int64, err error) {
	// reserve for a plain (zero-data) account
	err = l.request("getMinimumBalanceForRentExemption", []any{0}, &reserve)
	return
}

func (l *RPC) GetLatestBlockhash() (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	err := l.request("getLatestBlockhash", []any{map[string]any{"commitment": l.commitment}}, &result)
	if err != nil {
		return "", err
	}
	return result.Value.Blockhash, nil
}

func (l *RPC) EstimateFee(message []byte) (int64, error) {
	var result struct {
		Value *int64 `json:"value"`
	}
	encoded := base64.StdEncoding.EncodeToString(message)
	err := l.request("getFeeForMessage", []any{encoded, map[string]any{"commitment": l.commitment}}, &result)
	if err != nil {
		return 0, err
	}
	if result.Value == nil {
		return 0, fmt.Errorf("getFeeForMessage: node could not price the message")
	}
	return *result.Value, nil
}

func (l *RPC) Simulate(rawTxn []byte) error {
	var result struct {
		Value struct {
			Err  *json.RawMessage `json:"err"`
			Logs []string         `json:"logs"`
		} `json:"value"`
	}
	encoded := base64.StdEncoding.EncodeToString(rawTxn)
	err := l.request("simulateTransaction", []any{encoded, map[string]any{
		"encoding":   "base64",
		"commitment": l.commitment,
	}}, &result)
	if err != nil {
		return err
	}
	if result.Value.Err != nil {
		return fmt.Errorf("simulation failed: %s (logs: %v)", string(*result.Value.Err), result.Value.Logs)
	}
	return nil
}

func (l *RPC) SendRaw(rawTxn []byte, maxRetries int) (string, error) {
	var signature string
	encoded := base64.StdEncoding.EncodeToString(rawTxn)
	err := l.request("sendTransaction", []any{encoded, map[string]any{
		"encoding":      "base64",
		"skipPreflight": false,
		"maxRetries":    maxRetries,
	}}, &signature)
	if err != nil {
		return "", err
	}
	if signature == "" {
		return "", fmt.Errorf("sendTransaction: did not return a signature")
	}
	return signature, nil
}

func (l *RPC) Confirm(signature string) error {
	for attempt := 0; attempt < confirmAttempts; attempt++ {
		var result struct {
			Value []*struct {
				ConfirmationStatus string           `json:"confirmationStatus"`
				Err                *json.RawMessage `json:"err"`
			} `json:"value"`
		}
		err := l.request("getSignatureStatuses", []any{[]string{signature}}, &result)
		if err != nil {
			return err
		}
		if len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction failed on-chain: %s", string(*status.Err))
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return nil
			}
		}
		time.Sleep(confirmPollInterval)
	}
	return fmt.Errorf("confirm %s: timed out", signature)
}
