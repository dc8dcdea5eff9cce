package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ceramicnetwork/go-fanout/common/loggers"
)

type recordingTransport struct {
	addresses []string
}

func (r *recordingTransport) Send(_ context.Context, address string, _ []byte) error {
	r.addresses = append(r.addresses, address)
	return nil
}

func TestHttpTransport(t *testing.T) {
	var received []byte
	accepting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != recordsPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer accepting.Close()
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer rejecting.Close()

	transport := NewHttpTransport(nil, loggers.NewTestLogger())
	tests := map[string]struct {
		address     string
		shouldError bool
	}{
		"relay accepts record":     {address: accepting.URL, shouldError: false},
		"relay accepts with slash": {address: accepting.URL + "/", shouldError: false},
		"relay rejects record":     {address: rejecting.URL, shouldError: true},
		"relay unreachable":        {address: "http://127.0.0.1:1", shouldError: true},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := transport.Send(context.Background(), test.address, []byte(`{"id":"x"}`))
			if err != nil && !test.shouldError {
				t.Errorf("unexpected error received %v", err)
			} else if err == nil && test.shouldError {
				t.Errorf("should have received error")
			}
		})
	}
	if string(received) != `{"id":"x"}` {
		t.Errorf("incorrect body received: %s", received)
	}
}

func TestRouter(t *testing.T) {
	httpTransport := &recordingTransport{}
	ipfsTransport := &recordingTransport{}
	router := NewRouter(httpTransport, ipfsTransport)

	_ = router.Send(context.Background(), "https://relay.example.com", nil)
	_ = router.Send(context.Background(), "/ip4/127.0.0.1/tcp/5001", nil)

	if len(httpTransport.addresses) != 1 || httpTransport.addresses[0] != "https://relay.example.com" {
		t.Errorf("http address routed incorrectly: %v", httpTransport.addresses)
	}
	if len(ipfsTransport.addresses) != 1 || ipfsTransport.addresses[0] != "/ip4/127.0.0.1/tcp/5001" {
		t.Errorf("ipfs address routed incorrectly: %v", ipfsTransport.addresses)
	}
	if err := NewRouter(httpTransport, nil).Send(context.Background(), "/ip4/127.0.0.1/tcp/5001", nil); err == nil {
		t.Errorf("should have failed without a fallback transport")
	}
}
