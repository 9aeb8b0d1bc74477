// Package security holds the TLS settings used by outbound connections
package security

import (
	"fmt"

	"github.com/c360/streamkit/errors"
)

// ClientTLSConfig holds TLS configuration for clients such as the NATS
// connection. The system CA bundle is always trusted; CAFiles are added to it.
type ClientTLSConfig struct {
	Enabled            bool     `json:"enabled"`
	CAFiles            []string `json:"ca_files,omitempty"`
	CertFile           string   `json:"cert_file,omitempty"` // client certificate for mTLS
	KeyFile            string   `json:"key_file,omitempty"`
	ServerName         string   `json:"server_name,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"` // testing only
	MinVersion         string   `json:"min_version,omitempty"`          // "1.2" or "1.3"
}

// Validate checks that the settings are consistent
func (c ClientTLSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.WrapInvalid(fmt.Errorf("%w: cert_file and key_file must be set together", errors.ErrInvalidConfig),
			"ClientTLSConfig", "Validate", "client certificate check")
	}
	switch c.MinVersion {
	case "", "1.2", "1.3":
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: unsupported min_version %q", errors.ErrInvalidConfig, c.MinVersion),
			"ClientTLSConfig", "Validate", "min version check")
	}
	return nil
}
