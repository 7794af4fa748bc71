// package vocall is the client for the call-session REST API of the vocall server.
package vocall

import (
	"net/http"
	"time"

	"github.com/gregriff/vocall/cli/internal/services"
)

// Client creates, accepts, declines and ends call sessions on behalf of one user.
type Client struct {
	http *http.Client
}

// NewClient provides a Client for the vocall server at baseURL, acting as userID.
func NewClient(baseURL, userID string) *Client {
	vocallTransport := services.Transport{
		BaseURL:               baseURL,
		UserID:                userID,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}

	return &Client{
		http: &http.Client{
			Timeout:   5 * time.Second,
			Transport: &vocallTransport,
		},
	}
}
