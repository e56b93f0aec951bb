package utils

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"
)

// maxHostedScriptBytes bounds how much of a hosted script is read when
// computing its integrity hash.
const maxHostedScriptBytes = 4 << 20

var (
	// ErrInsecureLocation is returned for hosted script URLs that are not https.
	ErrInsecureLocation = errors.New("hosted script location must be an https url")
	// ErrNonPublicAddress is returned when a hosted script resolves to a
	// loopback, private, link-local or otherwise non-public address.
	ErrNonPublicAddress = errors.New("hosted script address is not public")
)

// IntegrityHash returns the sha384 subresource integrity value of body.
func IntegrityHash(body []byte) string {
	sum := sha512.Sum384(body)
	return "sha384-" + base64.StdEncoding.EncodeToString(sum[:])
}

// CheckHostedLocation accepts absolute https urls only.
func CheckHostedLocation(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Hostname() == "" {
		return ErrInsecureLocation
	}
	return nil
}

// NewPublicClient returns a client for fetching caller supplied urls.  It
// only connects to public addresses, checked after name resolution, and
// does not follow redirects away from https.
func NewPublicClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: publicOnly}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return CheckHostedLocation(req.URL.String())
		},
	}
}

func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !IsPublicAddr(ip) {
		return fmt.Errorf("%w: %s", ErrNonPublicAddress, ip)
	}
	return nil
}

// IsPublicAddr reports whether ip is globally routable unicast.
func IsPublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(), ip.IsUnspecified(), ip.IsLoopback(), ip.IsPrivate(),
		ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast(), ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast():
		return false
	}
	return !sharedAddressSpace.Contains(ip)
}

// 100.64.0.0/10 is carrier-grade NAT space, not covered by IsPrivate.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// FetchIntegrityHash downloads the script at rawURL and returns its sha384
// subresource integrity value.  Only https urls are fetched.
func FetchIntegrityHash(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	if err := CheckHostedLocation(rawURL); err != nil {
		return "", err
	}
	if client == nil {
		client = NewPublicClient(30 * time.Second)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch hosted script: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch hosted script: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHostedScriptBytes+1))
	if err != nil {
		return "", fmt.Errorf("read hosted script: %w", err)
	}
	if len(body) > maxHostedScriptBytes {
		return "", fmt.Errorf("hosted script exceeds %d bytes", maxHostedScriptBytes)
	}
	return IntegrityHash(body), nil
}
