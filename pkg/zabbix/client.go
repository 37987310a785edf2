// Package zabbix implements a JSON-RPC 2.0 client for the Zabbix API.
//
// The client owns the auth-token lifecycle: Login obtains a Bearer token via
// user.login, every subsequent call carries it, and Logout invalidates it.
// All operations are context-aware and blocking; the only timeout is the
// transport's own, taken from ClientConfig.
package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ClientConfig holds configuration for the Zabbix API client.
type ClientConfig struct {
	URL      string        // API endpoint, e.g. https://zabbix.example.com/api_jsonrpc.php
	Username string
	Password string
	Timeout  time.Duration
}

// Client is a Zabbix JSON-RPC API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	config     ClientConfig

	mu    sync.RWMutex
	token string

	requestID atomic.Int64
}

// APIError is an application-level error returned by the Zabbix API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *APIError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("api error %d: %s: %s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// NewClient creates a new Zabbix API client. The caller must Login before
// issuing authenticated calls.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("zabbix URL is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("zabbix credentials are required")
	}

	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		cfg.URL = "https://" + cfg.URL
		log.Debug().Str("url", cfg.URL).Msg("No protocol specified in Zabbix URL, defaulting to HTTPS")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}, nil
}

// Login authenticates with user.login and stores the Bearer token for
// subsequent calls.
func (c *Client) Login(ctx context.Context) error {
	var token string
	err := c.call(ctx, "user.login", map[string]any{
		"username": c.config.Username,
		"password": c.config.Password,
	}, &token)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	log.Debug().Str("user", c.config.Username).Msg("Authenticated with Zabbix API")
	return nil
}

// Logout invalidates the current auth token. Safe to call when not logged in.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return nil
	}

	err := c.call(ctx, "user.logout", map[string]any{}, nil)

	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *APIError       `json:"error"`
}

// call performs one JSON-RPC request. out, when non-nil, receives the
// decoded result payload.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	payload := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json-rpc")

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" && method != "user.login" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%s: authentication error: HTTP %d: %s", method, resp.StatusCode, raw)
		}
		return fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode, raw)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}

	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

// HostGroupByID fetches a host group by its stable ID. Returns nil when no
// group with that ID exists.
func (c *Client) HostGroupByID(ctx context.Context, groupID string) (*HostGroup, error) {
	var groups []HostGroup
	err := c.call(ctx, "hostgroup.get", map[string]any{
		"output":   []string{"groupid", "name"},
		"groupids": []string{groupID},
	}, &groups)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}
	return &groups[0], nil
}

// HostGroupsByName fetches host groups matching a name exactly.
func (c *Client) HostGroupsByName(ctx context.Context, name string) ([]HostGroup, error) {
	var groups []HostGroup
	err := c.call(ctx, "hostgroup.get", map[string]any{
		"output": []string{"groupid", "name"},
		"filter": map[string]any{"name": name},
	}, &groups)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// AllHostGroupsWithHosts fetches every host group together with its host
// membership, the source data for a topology snapshot.
func (c *Client) AllHostGroupsWithHosts(ctx context.Context) ([]HostGroup, error) {
	var groups []HostGroup
	err := c.call(ctx, "hostgroup.get", map[string]any{
		"output":      []string{"groupid", "name"},
		"selectHosts": []string{"hostid", "name"},
	}, &groups)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateHostGroup creates a host group and returns its newly assigned ID.
// The remote system picks the ID; callers must not assume any particular
// value.
func (c *Client) CreateHostGroup(ctx context.Context, name string) (string, error) {
	var result struct {
		GroupIDs []string `json:"groupids"`
	}
	err := c.call(ctx, "hostgroup.create", map[string]any{"name": name}, &result)
	if err != nil {
		return "", err
	}
	if len(result.GroupIDs) == 0 {
		return "", fmt.Errorf("hostgroup.create: no group ID returned")
	}
	return result.GroupIDs[0], nil
}

// RenameHostGroup changes a host group's name.
func (c *Client) RenameHostGroup(ctx context.Context, groupID, name string) error {
	return c.call(ctx, "hostgroup.update", map[string]any{
		"groupid": groupID,
		"name":    name,
	}, nil)
}

// DeleteHostGroup removes a host group. The API rejects deletion of groups
// that still contain hosts.
func (c *Client) DeleteHostGroup(ctx context.Context, groupID string) error {
	return c.call(ctx, "hostgroup.delete", []string{groupID}, nil)
}

// HostByID fetches a host with its groups and linked templates expanded.
// Returns nil when the host does not exist.
func (c *Client) HostByID(ctx context.Context, hostID string) (*Host, error) {
	var hosts []Host
	err := c.call(ctx, "host.get", map[string]any{
		"output":                []string{"hostid", "name"},
		"hostids":               []string{hostID},
		"selectGroups":          []string{"groupid", "name"},
		"selectParentTemplates": []string{"templateid", "name"},
	}, &hosts)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, nil
	}
	return &hosts[0], nil
}

// HostByName fetches a host by its visible name. Returns nil when no host
// matches.
func (c *Client) HostByName(ctx context.Context, name string) (*Host, error) {
	var hosts []Host
	err := c.call(ctx, "host.get", map[string]any{
		"output":                []string{"hostid", "name"},
		"filter":                map[string]any{"name": name},
		"selectGroups":          []string{"groupid", "name"},
		"selectParentTemplates": []string{"templateid", "name"},
	}, &hosts)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, nil
	}
	return &hosts[0], nil
}

// HostsInGroup lists the hosts belonging to a group, in API order. A
// non-zero limit caps the result, used for cheap emptiness probes.
func (c *Client) HostsInGroup(ctx context.Context, groupID string, limit int) ([]HostRef, error) {
	params := map[string]any{
		"output":   []string{"hostid", "name"},
		"groupids": []string{groupID},
	}
	if limit > 0 {
		params["limit"] = limit
	}
	var hosts []HostRef
	if err := c.call(ctx, "host.get", params, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// HostGroupIDs returns the IDs of every group a host currently belongs to.
func (c *Client) HostGroupIDs(ctx context.Context, hostID string) ([]string, error) {
	var hosts []Host
	err := c.call(ctx, "host.get", map[string]any{
		"output":       []string{"hostid"},
		"hostids":      []string{hostID},
		"selectGroups": []string{"groupid"},
	}, &hosts)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("host.get: host %s not found", hostID)
	}
	ids := make([]string, 0, len(hosts[0].Groups))
	for _, g := range hosts[0].Groups {
		ids = append(ids, g.GroupID)
	}
	return ids, nil
}

// SetHostGroups replaces a host's full group membership in one write.
func (c *Client) SetHostGroups(ctx context.Context, hostID string, groupIDs []string) error {
	groups := make([]map[string]string, 0, len(groupIDs))
	for _, id := range groupIDs {
		groups = append(groups, map[string]string{"groupid": id})
	}
	return c.call(ctx, "host.update", map[string]any{
		"hostid": hostID,
		"groups": groups,
	}, nil)
}

// TemplateByName fetches a template by name. Returns nil when no template
// matches.
func (c *Client) TemplateByName(ctx context.Context, name string) (*Template, error) {
	var templates []Template
	err := c.call(ctx, "template.get", map[string]any{
		"output": []string{"templateid", "name"},
		"filter": map[string]any{"name": name},
	}, &templates)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, nil
	}
	return &templates[0], nil
}

// HostTemplates returns the templates currently linked to a host.
func (c *Client) HostTemplates(ctx context.Context, hostID string) ([]Template, error) {
	host, err := c.HostByID(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if host == nil {
		return nil, fmt.Errorf("host.get: host %s not found", hostID)
	}
	return host.Templates, nil
}

// SetHostTemplates replaces a host's full template set in one write.
func (c *Client) SetHostTemplates(ctx context.Context, hostID string, templateIDs []string) error {
	templates := make([]map[string]string, 0, len(templateIDs))
	for _, id := range templateIDs {
		templates = append(templates, map[string]string{"templateid": id})
	}
	return c.call(ctx, "host.update", map[string]any{
		"hostid":    hostID,
		"templates": templates,
	}, nil)
}

// HostTriggers lists a host's directly-attached triggers with their
// originating-template linkage and item metadata. Inherited and
// discovery-generated triggers are excluded server-side; the linkage field
// still comes back for callers that classify on it.
func (c *Client) HostTriggers(ctx context.Context, hostID string) ([]Trigger, error) {
	var triggers []Trigger
	err := c.call(ctx, "trigger.get", map[string]any{
		"output":      []string{"triggerid", "description", "expression", "priority", "status", "templateid"},
		"hostids":     []string{hostID},
		"inherited":   false,
		"filter":      map[string]any{"flags": 0},
		"selectItems": []string{"itemid", "name", "key_"},
	}, &triggers)
	if err != nil {
		return nil, err
	}
	return triggers, nil
}

// DeleteTrigger removes a single trigger by ID.
func (c *Client) DeleteTrigger(ctx context.Context, triggerID string) error {
	return c.call(ctx, "trigger.delete", []string{triggerID}, nil)
}
