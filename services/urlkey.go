package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrInvalidURL is returned for links that cannot be keyed.
var ErrInvalidURL = errors.New("invalid url")

// URLKey derives the storage identity of a link: lower-cased host and path,
// no query, no fragment, no trailing slash. http and https share a key.
func URLKey(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host = net.JoinHostPort(host, port)
	}
	path := strings.TrimRight(strings.ToLower(u.EscapedPath()), "/")
	return "https://" + host + path, nil
}

// ContentHash is the hex SHA-256 of title and final URL.
func ContentHash(title, finalURL string) string {
	sum := sha256.Sum256([]byte(title + "|" + finalURL))
	return hex.EncodeToString(sum[:])
}

// Hostname returns the lower-cased host of raw without port, or "" when unparseable.
func Hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// RootDomain reduces a host to its registrable domain (news.example.co.uk -> example.co.uk).
func RootDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil || host == "localhost" {
		return host
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return strings.TrimPrefix(host, "www.")
	}
	return root
}

// OnDomain reports whether host equals root or is a subdomain of it.
func OnDomain(host, root string) bool {
	host = strings.ToLower(host)
	root = strings.ToLower(root)
	if host == "" || root == "" {
		return false
	}
	return host == root || strings.HasSuffix(host, "."+root)
}
