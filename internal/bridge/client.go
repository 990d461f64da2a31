package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"vendotrash/internal/domain"
)

const (
	machineKeyHeader = "X-Machine-Key"

	statusTimeout   = 1500 * time.Millisecond
	classifyTimeout = 5 * time.Second

	DefaultTokenTTL = 300 * time.Second
)

var ErrNoActiveToken = errors.New("no active customer token")

// ServerClient talks to the /api/vendo bridge endpoints.
type ServerClient struct {
	baseURL    string
	machineKey string
	httpClient *http.Client
	tokenTTL   time.Duration
	now        func() time.Time

	mu          sync.Mutex
	cachedToken string
	cachedAt    time.Time
}

func NewServerClient(baseURL, machineKey string, tokenTTL time.Duration) *ServerClient {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &ServerClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		machineKey: machineKey,
		httpClient: &http.Client{},
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
}

func (c *ServerClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.machineKey != "" {
		req.Header.Set(machineKeyHeader, c.machineKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *ServerClient) getJSON(ctx context.Context, path string, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Ping checks that the server answers on the bridge test route.
func (c *ServerClient) Ping(ctx context.Context) error {
	var out map[string]any
	if err := c.getJSON(ctx, "/api/vendo/test", classifyTimeout, &out); err != nil {
		return fmt.Errorf("ServerClient.Ping: %w", err)
	}
	return nil
}

// SessionActive reports whether any customer has an open insert window.
func (c *ServerClient) SessionActive(ctx context.Context) (bool, error) {
	var status domain.SessionStatusDTO
	if err := c.getJSON(ctx, "/api/vendo/session-status", statusTimeout, &status); err != nil {
		return false, fmt.Errorf("ServerClient.SessionActive: %w", err)
	}
	return status.HasSession, nil
}

// ActiveToken returns the current customer's token, cached for tokenTTL.
func (c *ServerClient) ActiveToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cachedToken != "" && c.now().Sub(c.cachedAt) < c.tokenTTL {
		tok := c.cachedToken
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	var out domain.ActiveTokenDTO
	err := c.getJSON(ctx, "/api/vendo/active-token", statusTimeout, &out)
	if err == nil && (out.Status != "success" || out.Token == "") {
		err = fmt.Errorf("%w: %s", ErrNoActiveToken, out.Message)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.cachedToken = ""
		return "", fmt.Errorf("ServerClient.ActiveToken: %w", err)
	}
	c.cachedToken = out.Token
	c.cachedAt = c.now()
	return out.Token, nil
}

// ForgetToken drops the cached token, e.g. after the server rejected it.
func (c *ServerClient) ForgetToken() {
	c.mu.Lock()
	c.cachedToken = ""
	c.mu.Unlock()
}

// ClassifyDeposit classifies on behalf of the current customer. A cached token
// can belong to a customer who has since left, so a NO_SESSION answer is
// retried once with a freshly fetched token when the customer changed.
func (c *ServerClient) ClassifyDeposit(ctx context.Context, image []byte, machineID int) domain.Signal {
	token, err := c.ActiveToken(ctx)
	if err != nil {
		log.Printf("Bridge: %v, classifying without a customer token", err)
	}
	sig := c.Classify(ctx, image, token, machineID)
	if sig != domain.SignalNoSession || token == "" {
		return sig
	}

	fresh, err := c.ActiveToken(ctx)
	if err != nil || fresh == token {
		return sig
	}
	log.Printf("Bridge: customer changed, classifying again with the new token")
	return c.Classify(ctx, image, fresh, machineID)
}

// Classify uploads the image and maps the outcome to the signal for the sorter.
func (c *ServerClient) Classify(ctx context.Context, image []byte, token string, machineID int) domain.Signal {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	body, err := json.Marshal(domain.ClassifyRequestDTO{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		MachineID:   machineID,
	})
	if err != nil {
		log.Printf("Bridge: could not encode classify request: %v", err)
		return domain.SignalError
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/vendo/capture-and-classify", bytes.NewReader(body))
	if err != nil {
		log.Printf("Bridge: could not build classify request: %v", err)
		return domain.SignalError
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("Bridge: classify request failed: %v", err)
		return domain.SignalError
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var out domain.ClassifyResponseDTO
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			log.Printf("Bridge: unreadable classify response: %v", err)
			return domain.SignalError
		}
		material := domain.Material(strings.ToUpper(string(out.MaterialType)))
		log.Printf("Bridge: classified %s (confidence %.2f, %d points)", material, out.Confidence, out.PointsEarned)
		return domain.SignalFor(material)
	case resp.StatusCode == http.StatusConflict:
		c.ForgetToken()
		log.Printf("Bridge: server reports no active session for this token")
		return domain.SignalNoSession
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.ForgetToken()
		log.Printf("Bridge: server refused credentials (%d)", resp.StatusCode)
		return domain.SignalError
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("Bridge: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return domain.SignalError
	}
}
