package ldap

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// loadTLSMaterial returns a copy of config.TLSConfig with the configured CA
// bundle and client certificate loaded.
func loadTLSMaterial(config *ConnectionConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
	}

	if config.TLSCACertFile != "" && config.TLSCACert != "" {
		return nil, errors.New("TLS CA certificate file and content are mutually exclusive")
	}

	var caPEM []byte
	switch {
	case config.TLSCACertFile != "":
		data, err := os.ReadFile(config.TLSCACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		caPEM = data
	case config.TLSCACert != "":
		caPEM = []byte(config.TLSCACert)
	}

	if len(caPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.New("no valid PEM certificates found in CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if config.TLSClientCertFile != "" || config.TLSClientKeyFile != "" {
		if config.TLSClientCertFile == "" || config.TLSClientKeyFile == "" {
			return nil, errors.New("both TLS client certificate and key files must be specified")
		}
		cert, err := tls.LoadX509KeyPair(config.TLSClientCertFile, config.TLSClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// tlsConfigForServer sets ServerName to the server host unless one is
// already configured.
func tlsConfigForServer(base *tls.Config, server *ServerInfo) *tls.Config {
	if base == nil {
		base = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if base.ServerName != "" || server == nil {
		return base
	}
	tlsConfig := base.Clone()
	tlsConfig.ServerName = server.Host
	return tlsConfig
}
