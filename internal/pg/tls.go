package pg

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// TLSMode selects how the transport to the server is secured.
type TLSMode string

const (
	// TLSInsecure requires TLS but accepts any server certificate.
	TLSInsecure TLSMode = "insecure"
	// TLSVerifyFull requires TLS with a trusted certificate matching the host.
	TLSVerifyFull TLSMode = "verify-full"
	// TLSDisable connects in plaintext.
	TLSDisable TLSMode = "disable"
)

// ParseTLSMode parses a configured mode. An empty string is TLSInsecure.
func ParseTLSMode(s string) (TLSMode, error) {
	switch m := TLSMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return TLSInsecure, nil
	case TLSInsecure, TLSVerifyFull, TLSDisable:
		return m, nil
	default:
		return "", fmt.Errorf("unknown tls mode %q (want insecure, verify-full or disable)", s)
	}
}

// tlsConfig builds the client TLS configuration for host. A nil config means
// plaintext.
func tlsConfig(mode TLSMode, host, rootCert string) (*tls.Config, error) {
	switch mode {
	case TLSDisable:
		return nil, nil
	case "", TLSInsecure:
		return &tls.Config{
			InsecureSkipVerify: true,
			ServerName:         host,
		}, nil
	case TLSVerifyFull:
		cfg := &tls.Config{ServerName: host}
		if rootCert != "" {
			pem, err := os.ReadFile(rootCert)
			if err != nil {
				return nil, fmt.Errorf("failed to read root certificate: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", rootCert)
			}
			cfg.RootCAs = pool
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("unknown tls mode %q", mode)
	}
}
