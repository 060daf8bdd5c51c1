package httputil

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type ClientOptions struct {
	Timeout  time.Duration
	ProxyURL string
}

// NewClient builds the process-wide HTTP client. It is called once by the entry
// point; an explicit proxy wins over the HTTP(S)_PROXY environment.
func NewClient(opts ClientOptions) (*http.Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	proxy := http.ProxyFromEnvironment
	if opts.ProxyURL != "" {
		u, err := url.Parse(opts.ProxyURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", opts.ProxyURL)
		}
		proxy = http.ProxyURL(u)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxy

	return &http.Client{Timeout: timeout, Transport: transport}, nil
}
