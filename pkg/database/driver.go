// Package database provides shared relational-database plumbing — driver
// identifiers, TLS configuration and a GORM logger bridged onto the
// platform's structured logger — consumed by pkg/database/sql's adapters.
package database

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/openfactory/assetstream/pkg/errors"
)

// Driver identifies a relational database engine.
type Driver string

const (
	DriverPostgres   Driver = "postgres"
	DriverMySQL      Driver = "mysql"
	DriverSQLite     Driver = "sqlite"
	DriverSQLServer  Driver = "sqlserver"
	DriverClickHouse Driver = "clickhouse"
)

// LoadTLSConfig builds a *tls.Config from PEM file paths, or returns nil if
// all three paths are empty. sslMode is accepted but not consulted.
func LoadTLSConfig(sslMode, rootCertPath, certPath, keyPath string) (*tls.Config, error) {
	if rootCertPath == "" && certPath == "" && keyPath == "" {
		return nil, nil
	}

	cfg := &tls.Config{}

	if rootCertPath != "" {
		pem, err := os.ReadFile(rootCertPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read TLS root certificate")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.InvalidArgument("failed to parse TLS root certificate", nil)
		}
		cfg.RootCAs = pool
	}

	if certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load TLS client certificate")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
