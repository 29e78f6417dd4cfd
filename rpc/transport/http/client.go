package http

import (
	"bytes"
	"context"
	"fmt"
	"github.com/ValentinKolb/dAudit/rpc/common"
	"github.com/ValentinKolb/dAudit/rpc/transport"
	"github.com/ValentinKolb/dAudit/rpc/transport/base"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	serverURLs []string
	client     *http.Client
	counter    atomic.Uint32
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Parse each server URL
	serverURLs := make([]string, len(config.Endpoints))
	for i, server := range config.Endpoints {
		if !strings.Contains(server, "://") {
			server = "http://" + server
		}
		parsedURL, err := url.Parse(server)
		if err != nil {
			return err
		}
		serverURLs[i] = strings.TrimSuffix(parsedURL.String(), "/") + RPCPath
	}

	dialer := &net.Dialer{
		Timeout: config.DialTimeout,
		Control: base.DialControl(config.PortMode),
	}

	// The pool mirrors the limits of the socket transports
	t.client = &http.Client{
		Timeout: config.RequestTimeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			MaxIdleConns:        len(serverURLs) * config.Connections(),
			MaxIdleConnsPerHost: config.Connections(),
			MaxConnsPerHost:     config.MaxConnectionsPerEndpoint,
			IdleConnTimeout:     config.IdleTimeout,
		},
	}
	t.serverURLs = serverURLs
	t.counter.Store(0)

	base.Logger.Infof("Using %d HTTP endpoints (request timeout %s)", len(serverURLs), config.RequestTimeout)
	return nil
}

func (t *httpClientTransport) Send(ctx context.Context, req []byte) ([]byte, error) {
	// Check if the transport is initialized
	if t.client == nil {
		return nil, fmt.Errorf("http transport not initialized")
	}

	// Select the next server via round-robin
	idx := t.counter.Add(1) % uint32(len(t.serverURLs))

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURLs[idx], bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Content-Type", "application/octet-stream")

	httpResponse, err := t.client.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			base.Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	// Check if the response status code is OK
	if httpResponse.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http error: %s", httpResponse.Status)
	}

	// Read the response body
	return io.ReadAll(httpResponse.Body)
}

func (t *httpClientTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}

	t.client = nil
	t.serverURLs = nil

	return nil
}
