package bulb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// maxResponseBody caps how much of the bulb's reply is read for logging.
const maxResponseBody = 4096

// ErrUnexpectedStatus is returned when the bulb answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// Client sends commands to a Tasmota device over its HTTP command endpoint.
type Client struct {
	address    string
	httpClient *http.Client
}

// NewClient creates a client for the bulb at address (host or host:port).
func NewClient(address string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		address: address,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Address returns the bulb address.
func (c *Client) Address() string {
	return c.address
}

// URL returns the full request URL for a command.
func (c *Client) URL(cmd Command) string {
	return fmt.Sprintf("http://%s/cm?cmnd=%s", c.address, cmd.Encode())
}

// Send posts one command to the bulb. The response body is only logged.
func (c *Client) Send(ctx context.Context, cmd Command) error {
	url := c.URL(cmd)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return &TransportError{Err: err}
	}

	log.Debug().Str("url", url).Msg("Sending bulb request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read bulb response body")
	} else {
		log.Debug().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("Bulb response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// TransportError means the request never got an HTTP answer
// (connection refused, timeout, unreachable host).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "bulb transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
