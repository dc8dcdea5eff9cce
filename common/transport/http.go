package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ceramicnetwork/go-fanout/models"
)

const recordsPath = "/api/v0/records"

var _ models.Transport = &HttpTransport{}

// HttpTransport posts records to relays that expose an HTTP ingestion endpoint.
type HttpTransport struct {
	client *http.Client
	logger models.Logger
}

func NewHttpTransport(client *http.Client, logger models.Logger) *HttpTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HttpTransport{client, logger}
}

func (h *HttpTransport) Send(ctx context.Context, address string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(address, "/")+recordsPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Debugf("send: error submitting request to %s: %v", address, err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send: relay %s rejected record: %d, %s", address, resp.StatusCode, respBody)
	}
	return nil
}

// Router picks a transport by address scheme: http(s) URLs go over HTTP, anything else is handed to the fallback
// (IPFS multiaddresses).
type Router struct {
	http     models.Transport
	fallback models.Transport
}

var _ models.Transport = &Router{}

func NewRouter(http models.Transport, fallback models.Transport) *Router {
	return &Router{http, fallback}
}

func (r *Router) Send(ctx context.Context, address string, payload []byte) error {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return r.http.Send(ctx, address, payload)
	}
	if r.fallback == nil {
		return fmt.Errorf("send: no transport for address %s", address)
	}
	return r.fallback.Send(ctx, address, payload)
}
