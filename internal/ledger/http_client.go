package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aptos-vault-swap/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultBackoffMult  = 2.0
	DefaultMaxLag       = 60 * time.Second
	DefaultGasUnitPrice = 100
	DefaultMaxGasAmount = 200_000
	DefaultExpiration   = 10 * time.Minute
)

const coinStorePrefix = "0x1::coin::CoinStore<"

// HTTPClient implements Client against the node REST API.
type HTTPClient struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	maxLag      time.Duration

	signer       *Signer
	gasUnitPrice uint64
	maxGasAmount uint64
	expiration   time.Duration
	now          func() time.Time
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for read requests.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithMaxLag sets how far behind wall clock the ledger may be and still count as healthy.
func WithMaxLag(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxLag = d
	}
}

// WithSigner sets the key used by Submit.
func WithSigner(s *Signer) ClientOption {
	return func(c *HTTPClient) {
		c.signer = s
	}
}

// WithGas sets the gas parameters and expiration window of submitted transactions.
func WithGas(unitPrice, maxAmount uint64, expiration time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.gasUnitPrice = unitPrice
		c.maxGasAmount = maxAmount
		c.expiration = expiration
	}
}

// WithNow overrides the wall clock used for health and expiration.
func WithNow(now func() time.Time) ClientOption {
	return func(c *HTTPClient) {
		c.now = now
	}
}

// NewHTTPClient creates a client for the node at nodeURL. The /v1 prefix is
// appended when missing.
func NewHTTPClient(nodeURL string, opts ...ClientOption) *HTTPClient {
	base := strings.TrimRight(nodeURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	c := &HTTPClient{
		baseURL:      base,
		client:       &http.Client{Timeout: DefaultTimeout},
		maxRetries:   DefaultMaxRetries,
		retryDelay:   DefaultRetryDelay,
		maxDelay:     DefaultMaxDelay,
		backoffMult:  DefaultBackoffMult,
		maxLag:       DefaultMaxLag,
		gasUnitPrice: DefaultGasUnitPrice,
		maxGasAmount: DefaultMaxGasAmount,
		expiration:   DefaultExpiration,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Signer returns the configured signer, or nil.
func (c *HTTPClient) Signer() *Signer { return c.signer }

// apiError is an error body returned by the node.
type apiError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	ErrorCode  string `json:"error_code"`
	VMError    *int   `json:"vm_error_code,omitempty"`
}

func (e *apiError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("node error %d (%s): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("node error %d: %s", e.StatusCode, e.Message)
}

func (e *apiError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// request describes one REST call.
type request struct {
	op     string
	method string
	path   string
	body   any
	retry  bool
}

// do performs a REST call. Reads are retried with exponential backoff on
// transport failures, 429 and 5xx. Client errors are never retried.
func (c *HTTPClient) do(ctx context.Context, r request, result any) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordLedgerLatency(r.op, time.Since(start).Seconds(), err)
	}()

	var body []byte
	if r.body != nil {
		body, err = json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	attempts := 0
	if r.retry {
		attempts = c.maxRetries
	}
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		case resp.StatusCode >= 500:
			lastErr = decodeAPIError(resp.StatusCode, respBody)
			continue
		case resp.StatusCode >= 400:
			return decodeAPIError(resp.StatusCode, respBody)
		case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted:
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	if attempts == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &apiError{StatusCode: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// AccountBalances reads every CoinStore resource of the account. An account
// unknown to the node holds nothing and yields an empty map.
func (c *HTTPClient) AccountBalances(ctx context.Context, account string) (map[string]uint64, error) {
	var resources []struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	path := "/accounts/" + url.PathEscape(account) + "/resources?limit=9999"
	err := c.do(ctx, request{op: "account_resources", method: http.MethodGet, path: path, retry: true}, &resources)
	if errors.Is(err, ErrNotFound) {
		return map[string]uint64{}, nil
	}
	if err != nil {
		return nil, err
	}

	balances := make(map[string]uint64)
	for _, res := range resources {
		if !strings.HasPrefix(res.Type, coinStorePrefix) || !strings.HasSuffix(res.Type, ">") {
			continue
		}
		coinType := strings.TrimSuffix(strings.TrimPrefix(res.Type, coinStorePrefix), ">")

		var store struct {
			Coin struct {
				Value string `json:"value"`
			} `json:"coin"`
		}
		if err := json.Unmarshal(res.Data, &store); err != nil {
			return nil, fmt.Errorf("decode %s: %w", res.Type, err)
		}
		value, err := parseU64(store.Coin.Value)
		if err != nil {
			return nil, fmt.Errorf("decode %s balance: %w", coinType, err)
		}
		balances[coinType] = value
	}
	return balances, nil
}

// IsHealthy reads ledger info and compares the ledger timestamp against the clock.
func (c *HTTPClient) IsHealthy(ctx context.Context) (bool, error) {
	var info struct {
		ChainID         int    `json:"chain_id"`
		LedgerVersion   string `json:"ledger_version"`
		LedgerTimestamp string `json:"ledger_timestamp"`
		BlockHeight     string `json:"block_height"`
	}
	if err := c.do(ctx, request{op: "ledger_info", method: http.MethodGet, path: "", retry: true}, &info); err != nil {
		return false, err
	}
	if c.maxLag <= 0 {
		return true, nil
	}
	micros, err := parseU64(info.LedgerTimestamp)
	if err != nil {
		return false, fmt.Errorf("decode ledger_timestamp: %w", err)
	}
	lag := c.now().Sub(time.UnixMicro(int64(micros)))
	return lag <= c.maxLag, nil
}

// SequenceNumber reads the account's next sequence number.
func (c *HTTPClient) SequenceNumber(ctx context.Context, account string) (uint64, error) {
	var acct struct {
		SequenceNumber    string `json:"sequence_number"`
		AuthenticationKey string `json:"authentication_key"`
	}
	path := "/accounts/" + url.PathEscape(account)
	if err := c.do(ctx, request{op: "account", method: http.MethodGet, path: path, retry: true}, &acct); err != nil {
		return 0, err
	}
	return parseU64(acct.SequenceNumber)
}

// entryFunctionPayload is the JSON form of an entry function call.
type entryFunctionPayload struct {
	Type string `json:"type"`
	Payload
}

type submitRequest struct {
	Sender                  string               `json:"sender"`
	SequenceNumber          string               `json:"sequence_number"`
	MaxGasAmount            string               `json:"max_gas_amount"`
	GasUnitPrice            string               `json:"gas_unit_price"`
	ExpirationTimestampSecs string               `json:"expiration_timestamp_secs"`
	Payload                 entryFunctionPayload `json:"payload"`
	Signature               *signature           `json:"signature,omitempty"`
}

type signature struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// Submit encodes, signs and submits the transaction. The final POST is never
// retried: a failure other than ErrRejected leaves the outcome unknown.
func (c *HTTPClient) Submit(ctx context.Context, sub Submission) (string, error) {
	if c.signer == nil {
		return "", ErrNoSigner
	}

	payload := sub.Payload
	if payload.TypeArguments == nil {
		payload.TypeArguments = []string{}
	}
	if payload.Arguments == nil {
		payload.Arguments = []any{}
	}

	txn := submitRequest{
		Sender:                  c.signer.Address(),
		SequenceNumber:          strconv.FormatUint(sub.SequenceNumber, 10),
		MaxGasAmount:            strconv.FormatUint(c.maxGasAmount, 10),
		GasUnitPrice:            strconv.FormatUint(c.gasUnitPrice, 10),
		ExpirationTimestampSecs: strconv.FormatInt(c.now().Add(c.expiration).Unix(), 10),
		Payload:                 entryFunctionPayload{Type: "entry_function_payload", Payload: payload},
	}

	var signingMessage string
	err := c.do(ctx, request{op: "encode_submission", method: http.MethodPost, path: "/transactions/encode_submission", body: txn, retry: true}, &signingMessage)
	if err != nil {
		return "", rejectedOrUnknown(err)
	}
	msg, err := hex.DecodeString(strings.TrimPrefix(signingMessage, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: decode signing message: %v", ErrRejected, err)
	}

	txn.Signature = &signature{
		Type:      "ed25519_signature",
		PublicKey: c.signer.PublicKeyHex(),
		Signature: "0x" + hex.EncodeToString(c.signer.Sign(msg)),
	}

	var pending struct {
		Hash string `json:"hash"`
	}
	if err := c.do(ctx, request{op: "submit_" + sub.Path, method: http.MethodPost, path: "/transactions", body: txn}, &pending); err != nil {
		return "", rejectedOrUnknown(err)
	}
	if pending.Hash == "" {
		return "", fmt.Errorf("submit: node returned no hash")
	}
	return pending.Hash, nil
}

// rejectedOrUnknown marks client errors as definitive rejections.
func rejectedOrUnknown(err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return fmt.Errorf("%w: %v", ErrRejected, apiErr)
	}
	return err
}

// TransactionStatus looks a transaction up by hash.
func (c *HTTPClient) TransactionStatus(ctx context.Context, handle string) (Status, error) {
	var tx struct {
		Type      string `json:"type"`
		Hash      string `json:"hash"`
		Success   *bool  `json:"success"`
		VMStatus  string `json:"vm_status"`
		GasUsed   string `json:"gas_used"`
		Timestamp string `json:"timestamp"`
	}
	path := "/transactions/by_hash/" + url.PathEscape(handle)
	if err := c.do(ctx, request{op: "transaction_by_hash", method: http.MethodGet, path: path, retry: true}, &tx); err != nil {
		return Status{}, err
	}

	if tx.Type == "pending_transaction" || tx.Success == nil {
		return Status{Kind: StatusPending}, nil
	}

	st := Status{Kind: StatusReverted, Detail: tx.VMStatus}
	if *tx.Success {
		st.Kind = StatusConfirmed
	}
	if tx.GasUsed != "" {
		gas, err := parseU64(tx.GasUsed)
		if err != nil {
			return Status{}, fmt.Errorf("decode gas_used: %w", err)
		}
		st.GasUsed = gas
	}
	if tx.Timestamp != "" {
		micros, err := parseU64(tx.Timestamp)
		if err != nil {
			return Status{}, fmt.Errorf("decode timestamp: %w", err)
		}
		st.Timestamp = time.UnixMicro(int64(micros)).UTC()
	}
	return st, nil
}

// View executes a view function.
func (c *HTTPClient) View(ctx context.Context, req ViewRequest) ([]json.RawMessage, error) {
	if req.TypeArguments == nil {
		req.TypeArguments = []string{}
	}
	if req.Arguments == nil {
		req.Arguments = []any{}
	}
	var out []json.RawMessage
	if err := c.do(ctx, request{op: "view", method: http.MethodPost, path: "/view", body: req, retry: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseU64 decodes the node's string-encoded u64 values.
func parseU64(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 10, 64)
}

// ParseU64 decodes a u64 returned by a view function, which the node encodes
// as a JSON string.
func ParseU64(raw json.RawMessage) (uint64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n uint64
		if err2 := json.Unmarshal(raw, &n); err2 != nil {
			return 0, fmt.Errorf("decode u64: %w", err)
		}
		return n, nil
	}
	return parseU64(s)
}

// BalanceOf returns the balance of coinType, matching the address component
// of the type regardless of leading zeros or case.
func BalanceOf(balances map[string]uint64, coinType string) uint64 {
	if v, ok := balances[coinType]; ok {
		return v
	}
	want := normalizeType(coinType)
	for k, v := range balances {
		if normalizeType(k) == want {
			return v
		}
	}
	return 0
}

func normalizeType(t string) string {
	addr, rest, ok := strings.Cut(t, "::")
	if !ok {
		return strings.ToLower(t)
	}
	return NormalizeAddress(addr) + "::" + rest
}
