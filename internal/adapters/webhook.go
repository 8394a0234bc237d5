package adapters

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// ErrSchemeNotAllowed and ErrAddressNotAllowed are the SSRF guard's
// rejection sentinels (§4.10).
var (
	ErrSchemeNotAllowed  = errors.New("adapters: webhook scheme not allowed")
	ErrAddressNotAllowed = errors.New("adapters: webhook target address not allowed")
)

// cloudMetadataAddr is the well-known cloud instance-metadata address
// that must never be reachable from a webhook target (§4.10).
const cloudMetadataAddr = "169.254.169.254"

// WebhookSender posts JSON payloads to caller-supplied URLs, refusing any
// target that does not resolve to a public address at send time (§4.10).
type WebhookSender struct {
	allowedSchemes map[string]struct{}
	httpClient     *http.Client
}

func NewWebhookSender() *WebhookSender {
	return &WebhookSender{
		allowedSchemes: map[string]struct{}{"https": {}},
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send validates rawURL's scheme and host, resolves it fresh, dials the
// resolved address directly (never a cached result), and POSTs payload.
func (w *WebhookSender) Send(ctx context.Context, rawURL string, payload []byte) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("adapters: parse webhook url: %w", err)
	}
	if _, ok := w.allowedSchemes[parsed.Scheme]; !ok {
		return ErrSchemeNotAllowed
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", parsed.Hostname())
	if err != nil {
		return fmt.Errorf("adapters: resolve webhook host: %w", err)
	}
	resolvedIP, err := firstAllowedIP(ips)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("adapters: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Dial exactly the IP we just validated — the DNS lookup above feeds
	// directly into the connection instead of a separately cached check,
	// closing the verify-then-use-stale-result gap named in §4.10.
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	client := &http.Client{
		Timeout: w.httpClient.Timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				_, port, err := net.SplitHostPort(addr)
				if err != nil {
					port = "443"
				}
				return dialer.DialContext(ctx, network, net.JoinHostPort(resolvedIP.String(), port))
			},
			TLSClientConfig: &tls.Config{ServerName: parsed.Hostname()},
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("adapters: send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("adapters: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// firstAllowedIP returns the first address in ips that is not private,
// loopback, link-local, or the cloud metadata address, rejecting the
// whole batch if none qualify.
func firstAllowedIP(ips []net.IP) (net.IP, error) {
	for _, ip := range ips {
		if isDisallowedAddress(ip) {
			continue
		}
		return ip, nil
	}
	return nil, ErrAddressNotAllowed
}

func isDisallowedAddress(ip net.IP) bool {
	if ip.String() == cloudMetadataAddr {
		return true
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
