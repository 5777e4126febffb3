package registry

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// clientTLSConfig builds a *tls.Config for the etcd mirror connection from
// cfg, loading the client certificate/key pair and trusting only the given
// CA. Returns (nil, nil) if cfg is nil or disabled.
func (cfg *TLSConfig) clientTLSConfig() (*tls.Config, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}

	caData, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read ca certificate: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caData) {
		return nil, fmt.Errorf("parse ca certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (cfg *TLSConfig) validate() error {
	if cfg.CertFile == "" {
		return fmt.Errorf("tls cert file is required when tls is enabled")
	}
	if cfg.KeyFile == "" {
		return fmt.Errorf("tls key file is required when tls is enabled")
	}
	if cfg.CAFile == "" {
		return fmt.Errorf("tls ca file is required when tls is enabled")
	}
	return nil
}
