package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	ProtocolJSONRPC    = "jsonrpc"
	ProtocolJSONRPCSSL = "jsonrpc+ssl"
)

// Source is the read-only view of the legacy system used by the migration
// engine. *Session implements it.
type Source interface {
	Search(ctx context.Context, model string, domain Domain) ([]int, error)
	SearchRead(ctx context.Context, model string, domain Domain, fields []string, out interface{}) error
	Read(ctx context.Context, model string, ids []int, fields []string, out interface{}) error
	ExternalIDs(ctx context.Context, model string, ids []int) (map[int]string, error)
	Version() string
	Logout(ctx context.Context) error
}

// Options configures a connection to the legacy server
type Options struct {
	Host      string // host name or full URL
	Protocol  string // "jsonrpc" or "jsonrpc+ssl"
	Port      int
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables pacing

	HTTPClient *http.Client
}

// Client is a JSON-RPC connection to the legacy server
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	seq      atomic.Int64
	version  string
}

// Dial connects to the legacy server and reads its version.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	endpoint, err := buildEndpoint(opts)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		endpoint: endpoint,
		http:     httpClient,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	var info struct {
		ServerVersion string `json:"server_version"`
	}
	if err := c.call(ctx, "common", "version", []interface{}{}, &info); err != nil {
		return nil, err
	}
	c.version = info.ServerVersion

	return c, nil
}

func buildEndpoint(opts Options) (string, error) {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		return "", fmt.Errorf("remote host is required")
	}
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return "", fmt.Errorf("invalid remote host %q: %w", host, err)
		}
		host = u.Hostname()
	}

	var scheme string
	switch opts.Protocol {
	case ProtocolJSONRPCSSL, "":
		scheme = "https"
	case ProtocolJSONRPC:
		scheme = "http"
	default:
		return "", fmt.Errorf("unsupported protocol: %s", opts.Protocol)
	}

	port := opts.Port
	if port <= 0 {
		port = 443
		if scheme == "http" {
			port = 80
		}
	}

	return fmt.Sprintf("%s://%s:%d/jsonrpc", scheme, host, port), nil
}

// Version returns the server version reported at dial time
func (c *Client) Version() string {
	return c.version
}

// Login authenticates against a database and returns a session.
func (c *Client) Login(ctx context.Context, database, user, password string) (*Session, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "common", "login", []interface{}{database, user, password}, &raw); err != nil {
		return nil, err
	}

	var uid int
	if isEmptyJSON(raw) || json.Unmarshal(raw, &uid) != nil || uid <= 0 {
		return nil, fmt.Errorf("%w: user %s on database %s", ErrAuth, user, database)
	}

	return &Session{
		client:   c,
		database: database,
		uid:      uid,
		password: password,
	}, nil
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string        `json:"service"`
	Method  string        `json:"method"`
	Args    []interface{} `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"data"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, service, method string, args []interface{}, out interface{}) error {
	op := service + "." + method

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Op: op, Err: err}
		}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      c.seq.Add(1),
	})
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrProtocol, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: op, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrProtocol, op, err)
	}

	if decoded.Error != nil {
		return &Error{
			Code:    decoded.Error.Code,
			Message: decoded.Error.Message,
			Name:    decoded.Error.Data.Name,
			Detail:  decoded.Error.Data.Message,
		}
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = decoded.Result
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", ErrProtocol, op, err)
	}
	return nil
}

// Session is an authenticated connection bound to one database
type Session struct {
	client   *Client
	database string
	uid      int
	password string
}

// UID returns the authenticated remote user id
func (s *Session) UID() int {
	return s.uid
}

// Version returns the remote server version
func (s *Session) Version() string {
	return s.client.version
}

func (s *Session) execute(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}, out interface{}) error {
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	params := []interface{}{s.database, s.uid, s.password, model, method, args, kwargs}
	if err := s.client.call(ctx, "object", "execute_kw", params, out); err != nil {
		return fmt.Errorf("%s.%s: %w", model, method, err)
	}
	return nil
}

// Search returns the ids of the records matching domain
func (s *Session) Search(ctx context.Context, model string, domain Domain) ([]int, error) {
	var ids []int
	if err := s.execute(ctx, model, "search", []interface{}{domain}, nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SearchRead decodes the matching records' fields into out (a pointer to a slice)
func (s *Session) SearchRead(ctx context.Context, model string, domain Domain, fields []string, out interface{}) error {
	return s.execute(ctx, model, "search_read", []interface{}{domain},
		map[string]interface{}{"fields": fields}, out)
}

// Read decodes the given records' fields into out (a pointer to a slice)
func (s *Session) Read(ctx context.Context, model string, ids []int, fields []string, out interface{}) error {
	if len(ids) == 0 {
		return json.Unmarshal([]byte("[]"), out)
	}
	return s.execute(ctx, model, "read", []interface{}{ids},
		map[string]interface{}{"fields": fields}, out)
}

// ExternalIDs resolves records to their "module.name" external identifiers.
// Records without one are absent from the result.
func (s *Session) ExternalIDs(ctx context.Context, model string, ids []int) (map[int]string, error) {
	result := make(map[int]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var rows []struct {
		Module string `json:"module"`
		Name   string `json:"name"`
		ResID  int    `json:"res_id"`
	}
	domain := Domain{Cond("model", "=", model), Cond("res_id", "in", ids)}
	if err := s.SearchRead(ctx, "ir.model.data", domain, []string{"module", "name", "res_id"}, &rows); err != nil {
		return nil, err
	}

	for _, row := range rows {
		if _, seen := result[row.ResID]; !seen {
			result[row.ResID] = row.Module + "." + row.Name
		}
	}
	return result, nil
}

// Logout releases the session's idle connections
func (s *Session) Logout(ctx context.Context) error {
	s.client.http.CloseIdleConnections()
	return nil
}
