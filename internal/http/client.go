// Package http builds the tuned net/http client shared by the backend API
// client, the token exchange, and the archive download.
package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/proptour/proptour-cli/internal/constants"
)

// NewClient creates an HTTP client suitable for multipart uploads and
// archive downloads.
//
// Key points:
//   - proxy settings come from the environment (HTTP_PROXY, HTTPS_PROXY,
//     NO_PROXY)
//   - connection reuse across the submit/poll/download sequence
//   - HTTP/2 enabled, with a DISABLE_HTTP2=true escape hatch
//   - no overall client timeout; each operation carries its own context
func NewClient() *nethttp.Client {
	tr := &nethttp.Transport{
		Proxy:               nethttp.ProxyFromEnvironment,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout: constants.HTTPTLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
		DisableCompression:  true, // image payloads and zip archives are already compressed
	}

	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	return &nethttp.Client{
		Transport: tr,
		Timeout:   0,
	}
}
