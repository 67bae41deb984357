package sdkperf

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

const defaultDialTimeout = 10 * time.Second

var transportProtocol = "tcp"

// SetTransportProtocol pins every HTTP client created afterwards to one of
// "tcp", "tcp4" or "tcp6".
func SetTransportProtocol(protocol string) error {
	switch protocol {
	case "tcp", "tcp4", "tcp6":
		transportProtocol = protocol
		return nil
	}
	return fmt.Errorf("unsupported transport protocol %q", protocol)
}

func newTransport(protocol string, dialTimeout time.Duration) *http.Transport {
	// cf. https://go.googlesource.com/go/+/refs/tags/go1.22.1/src/net/http/transport.go#43
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			return (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext(ctx, protocol, addr)
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
