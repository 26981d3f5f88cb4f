package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 64 << 10

// HTTPPaymentClient posts order requests to the payment service's
// create-checkout endpoint.
type HTTPPaymentClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPPaymentClient uses an instrumented client without a timeout when client is nil.
func NewHTTPPaymentClient(endpoint string, client *http.Client) *HTTPPaymentClient {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPPaymentClient{endpoint: endpoint, client: client}
}

func (c *HTTPPaymentClient) CreateOrder(ctx context.Context, orderReq OrderRequest) (string, error) {
	body, err := json.Marshal(orderReq)
	if err != nil {
		return "", fmt.Errorf("client: failed to encode order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("client: failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &RequestError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", &RequestError{StatusCode: resp.StatusCode, Err: err}
	}

	var orderResp OrderResponse
	decodeErr := json.Unmarshal(payload, &orderResp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := orderResp.Error
		if decodeErr != nil || message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		log.Warn().Int("status", resp.StatusCode).Str("error", message).Msg("client: payment service rejected order")
		return "", &RequestError{StatusCode: resp.StatusCode, Message: message}
	}

	if decodeErr != nil {
		return "", &RequestError{StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid response body: %w", decodeErr)}
	}

	return orderResp.CheckoutURL, nil
}
