// Package client owns the shared outbound HTTP clients for relay traffic.
package client

import (
	"crypto/tls"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/network"
)

// HTTPClient is the default outbound client for relay requests. Per-attempt
// deadlines come from the request context, so the client itself carries no
// overall timeout.
var HTTPClient *http.Client

// ImpatientHTTPClient serves quick metadata calls (OAuth token exchange,
// credential probes) with a hard short timeout.
var ImpatientHTTPClient *http.Client

// UserEndpointHTTPClient dials user-configured custom endpoints; its dialer
// refuses private and local addresses.
var UserEndpointHTTPClient *http.Client

// Init builds the shared HTTP clients. Transports disable HTTP/2 to keep
// upstream SSE streams on plain chunked HTTP/1.1.
func Init() {
	createTransport := func(blockInternal bool) *http.Transport {
		dialer := &net.Dialer{
			Timeout:   config.UpstreamConnectTimeout,
			KeepAlive: 30 * time.Second,
		}
		if blockInternal {
			dialer.Control = func(_, address string, _ syscall.RawConn) error {
				host, _, err := net.SplitHostPort(address)
				if err != nil {
					return errors.Wrapf(err, "split host port: %s", address)
				}
				ip := net.ParseIP(host)
				if ip == nil {
					return errors.Errorf("parse dial address: %s", host)
				}
				if network.IsForbiddenIP(ip) {
					return errors.Errorf("dial to non-public address %s refused", ip)
				}
				return nil
			}
		}
		return &http.Transport{
			DialContext:           dialer.DialContext,
			TLSNextProto:          map[string]func(string, *tls.Conn) http.RoundTripper{},
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: config.UpstreamConnectTimeout,
		}
	}

	HTTPClient = &http.Client{Transport: createTransport(false)}
	ImpatientHTTPClient = &http.Client{
		Transport: createTransport(false),
		Timeout:   10 * time.Second,
	}
	UserEndpointHTTPClient = &http.Client{Transport: createTransport(true)}
}
