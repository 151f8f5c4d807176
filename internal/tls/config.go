// Package tls builds the server-side TLS configuration for benchd. Benches
// usually live on a lab network without a public name, so a self-signed
// pair covering the bench's hostnames can be generated and kept on disk.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	selfSignedCert = "self-signed.crt"
	selfSignedKey  = "self-signed.key"

	selfSignedValidity = 365 * 24 * time.Hour
	// a cached pair is replaced this long before it expires
	renewBefore = 30 * 24 * time.Hour
)

// Config holds TLS configuration
type Config struct {
	CertFile   string
	KeyFile    string
	SelfSigned bool
	// CacheDir keeps a generated pair across restarts. Empty generates a
	// fresh pair on every start.
	CacheDir string
	// Hosts are extra DNS names or IPs for a generated certificate
	Hosts      []string
	MinVersion uint16
}

// Enabled reports whether the server should terminate TLS
func (c *Config) Enabled() bool {
	return c != nil && (c.CertFile != "" || c.KeyFile != "" || c.SelfSigned)
}

// Validate checks if the TLS configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}

	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("cert_file and key_file must be set together")
	}

	if c.CertFile != "" {
		if _, err := os.Stat(c.CertFile); err != nil {
			return fmt.Errorf("certificate file not found: %s", c.CertFile)
		}
		if _, err := os.Stat(c.KeyFile); err != nil {
			return fmt.Errorf("key file not found: %s", c.KeyFile)
		}
	}

	return nil
}

// ServerConfig creates a tls.Config for the listener. It returns nil when
// TLS is disabled. Configured files win over SelfSigned.
func (c *Config) ServerConfig() (*tls.Config, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	minVersion := c.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}
	tlsConfig := &tls.Config{
		MinVersion: minVersion,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}

	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
		slog.Info("Loaded TLS certificate", "cert", c.CertFile)
		return tlsConfig, nil
	}

	cert, err := c.selfSignedCert(time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare self-signed certificate: %w", err)
	}
	tlsConfig.Certificates = []tls.Certificate{cert}
	return tlsConfig, nil
}

// selfSignedCert loads the cached pair if it is still good for at least
// renewBefore, otherwise generates and caches a new one.
func (c *Config) selfSignedCert(now time.Time) (tls.Certificate, error) {
	if c.CacheDir != "" {
		certPath := filepath.Join(c.CacheDir, selfSignedCert)
		keyPath := filepath.Join(c.CacheDir, selfSignedKey)
		if cert, err := tls.LoadX509KeyPair(certPath, keyPath); err == nil {
			if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil && now.Add(renewBefore).Before(leaf.NotAfter) {
				slog.Info("Using cached self-signed certificate", "path", certPath, "expires", leaf.NotAfter)
				return cert, nil
			}
		}
	}

	certPEM, keyPEM, err := generateSelfSigned(c.hosts(), now)
	if err != nil {
		return tls.Certificate{}, err
	}

	if c.CacheDir != "" {
		if err := writePair(c.CacheDir, certPEM, keyPEM); err != nil {
			slog.Warn("Failed to cache self-signed certificate", "dir", c.CacheDir, "error", err)
		} else {
			slog.Info("Saved self-signed certificate", "dir", c.CacheDir)
		}
	}

	slog.Warn("Using a self-signed certificate; clients must skip verification or pin it")
	return tls.X509KeyPair(certPEM, keyPEM)
}

// hosts returns the SANs for a generated certificate: loopback, the
// machine's hostname and its mDNS name, then Hosts
func (c *Config) hosts() []string {
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if name, err := os.Hostname(); err == nil && name != "" {
		hosts = append(hosts, name, name+".local")
	}
	return append(hosts, c.Hosts...)
}

func generateSelfSigned(hosts []string, now time.Time) (certPEM, keyPEM []byte, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, err
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"benchd"},
			CommonName:   hosts[0],
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, err
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

func writePair(dir string, certPEM, keyPEM []byte) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, selfSignedCert), certPEM, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, selfSignedKey), keyPEM, 0o600)
}
