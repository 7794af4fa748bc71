// package services contains clients for the remote services a vocall client depends on.
package services

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gregriff/vocall/internal/public"
)

// Transport allows custom attributes to be added to each HTTP request sent by an http.Client that uses this transport
type Transport struct {
	BaseURL,
	UserID string
	MaxIdleConns int
	IdleConnTimeout,
	TLSHandshakeTimeout,
	ResponseHeaderTimeout time.Duration

	once sync.Once
	base http.RoundTripper
}

// RoundTrip adds upon the normal http.Transport.RoundTrip() behavior to add the user identity and a base url to each request.
// Reference: https://cs.opensource.google/go/x/oauth2/+/refs/tags/v0.31.0:transport.go
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	url := req.URL.String()

	baseURL := strings.TrimSuffix(t.BaseURL, "/")
	path := "/" + strings.TrimPrefix(url, "/")
	newURL, err := req.URL.Parse(baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("error building request url: %w", err)
	}

	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	req.URL = newURL
	req.Host = newURL.Host
	req.Header.Set(public.UserHeader, t.UserID)
	log.Debugf("making request to vocall server: %s %s", req.Method, newURL)

	return t.transport().RoundTrip(req)
}

func (t *Transport) transport() http.RoundTripper {
	t.once.Do(func() {
		t.base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          t.MaxIdleConns,
			IdleConnTimeout:       t.IdleConnTimeout,
			TLSHandshakeTimeout:   t.TLSHandshakeTimeout,
			ResponseHeaderTimeout: t.ResponseHeaderTimeout,
		}
	})
	return t.base
}
