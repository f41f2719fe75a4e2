package fibaro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/hcbridge/internal/device"
)

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
}

// Config holds connection settings for the controller.
type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration

	// HTTPClient overrides the default client. Its Timeout is left as is.
	HTTPClient *http.Client

	Logger Logger
}

// Client talks to the controller's REST API.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	base     *url.URL
	username string
	password string
	http     *http.Client
	logger   Logger
}

// NewClient validates cfg and creates a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: url %q", ErrInvalidConfig, cfg.URL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		http:     hc,
		logger:   cfg.Logger,
	}, nil
}

// FetchIncrementalState returns the changes since cursor.
func (c *Client) FetchIncrementalState(ctx context.Context, cursor int64) (Refresh, error) {
	q := url.Values{"last": {strconv.FormatInt(cursor, 10)}}
	var p refreshPayload
	if err := c.do(ctx, http.MethodGet, "/api/refreshStates", q, nil, &p); err != nil {
		return Refresh{}, err
	}
	return p.refresh(), nil
}

// ListDevices returns every device known to the controller.
func (c *Client) ListDevices(ctx context.Context) ([]device.Descriptor, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/devices", nil, nil, &raw); err != nil {
		return nil, err
	}
	return device.ListFromPayload(raw)
}

// ReadDeviceProperties returns the current property bag of one device.
func (c *Client) ReadDeviceProperties(ctx context.Context, id int) (map[string]any, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/devices/%d", id), nil, nil, &raw); err != nil {
		return nil, err
	}
	d, err := device.FromPayload(raw)
	if err != nil {
		return nil, err
	}
	return d.Properties.Raw, nil
}

// ListScenes returns the controller's scenes.
func (c *Client) ListScenes(ctx context.Context) ([]Scene, error) {
	var scenes []Scene
	if err := c.do(ctx, http.MethodGet, "/api/scenes", nil, nil, &scenes); err != nil {
		return nil, err
	}
	return scenes, nil
}

// SendDeviceCommand invokes an action on a device.
func (c *Client) SendDeviceCommand(ctx context.Context, id int, action string, args []any) error {
	if args == nil {
		args = []any{}
	}
	body := map[string]any{"args": args}
	path := fmt.Sprintf("/api/devices/%d/action/%s", id, url.PathEscape(action))
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

// StartScene runs a scene.
func (c *Client) StartScene(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/scenes/%d/action/start", id), nil, map[string]any{}, nil)
}

type variable struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// ReadVariable returns a global variable's value as a string.
func (c *Client) ReadVariable(ctx context.Context, name string) (string, error) {
	var v variable
	if err := c.do(ctx, http.MethodGet, "/api/globalVariables/"+url.PathEscape(name), nil, nil, &v); err != nil {
		return "", err
	}
	switch t := v.Value.(type) {
	case string:
		return t, nil
	case nil:
		return "", nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return fmt.Sprint(t), nil
	}
}

// WriteVariable sets a global variable.
func (c *Client) WriteVariable(ctx context.Context, name, value string) error {
	body := variable{Name: name, Value: value}
	return c.do(ctx, http.MethodPut, "/api/globalVariables/"+url.PathEscape(name), nil, body, nil)
}

// ReadZoneState returns a heating ("heating") or climate ("climate") panel
// zone.
func (c *Client) ReadZoneState(ctx context.Context, kind string, id int) (Zone, error) {
	var z Zone
	if err := c.do(ctx, http.MethodGet, zonePath(kind, id), nil, nil, &z); err != nil {
		return Zone{}, err
	}
	return z, nil
}

// WriteZoneHandTemperature overrides a zone's setpoint until the given time.
func (c *Client) WriteZoneHandTemperature(ctx context.Context, kind string, id int, mode string, value float64, until time.Time) error {
	props := map[string]any{
		"handTimestamp": until.Unix(),
	}
	if kind == "climate" {
		props["handMode"] = mode
		props["handSetPointHeating"] = value
	} else {
		props["handTemperature"] = value
	}
	body := map[string]any{"properties": props}
	return c.do(ctx, http.MethodPut, zonePath(kind, id), nil, body, nil)
}

func zonePath(kind string, id int) string {
	return fmt.Sprintf("/api/panels/%s/%d", url.PathEscape(kind), id)
}

// do performs one request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if c.logger != nil {
		c.logger.Debug("controller request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		switch {
		case resp.StatusCode == http.StatusBadRequest && path == "/api/refreshStates":
			return fmt.Errorf("%w: %s", ErrStaleCursor, strings.TrimSpace(string(snippet)))
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %w: %s %s", ErrRequestFailed, ErrNotFound, method, path)
		}
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrRequestFailed, method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}
