package tls

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "c.crt")
	keyPath := filepath.Join(dir, "c.key")
	require.NoError(t, os.WriteFile(certPath, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(keyPath, []byte("x"), 0o600))

	tests := []struct {
		name    string
		config  *Config
		enabled bool
		wantErr bool
	}{
		{name: "nil", config: nil},
		{name: "empty", config: &Config{}},
		{name: "self-signed", config: &Config{SelfSigned: true}, enabled: true},
		{name: "files", config: &Config{CertFile: certPath, KeyFile: keyPath}, enabled: true},
		{name: "cert without key", config: &Config{CertFile: certPath}, enabled: true, wantErr: true},
		{name: "missing cert", config: &Config{CertFile: filepath.Join(dir, "nope"), KeyFile: keyPath}, enabled: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.enabled, tt.config.Enabled())
			if tt.config == nil {
				return
			}
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServerConfigDisabled(t *testing.T) {
	cfg, err := (&Config{}).ServerConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestSelfSignedCoversHosts(t *testing.T) {
	c := &Config{SelfSigned: true, Hosts: []string{"bench-07.lab", "10.0.0.7"}}
	cfg, err := c.ServerConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, leaf.DNSNames, "localhost")
	assert.Contains(t, leaf.DNSNames, "bench-07.lab")
	assert.NoError(t, leaf.VerifyHostname("10.0.0.7"))
	assert.NoError(t, leaf.VerifyHostname("127.0.0.1"))
}

func TestSelfSignedCacheReused(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	c := &Config{SelfSigned: true, CacheDir: dir}

	first, err := c.selfSignedCert(time.Now())
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, selfSignedKey))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := c.selfSignedCert(time.Now())
	require.NoError(t, err)
	assert.Equal(t, first.Certificate[0], second.Certificate[0])

	// close to expiry the pair is regenerated
	third, err := c.selfSignedCert(time.Now().Add(selfSignedValidity - 24*time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, first.Certificate[0], third.Certificate[0])
}

func TestListenServesTLS(t *testing.T) {
	cfg, err := (&Config{SelfSigned: true}).ServerConfig()
	require.NoError(t, err)

	ln, err := Listen("127.0.0.1:0", cfg)
	require.NoError(t, err)
	defer ln.Close()

	srv := &http.Server{Handler: SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))}
	go srv.Serve(ln)
	defer srv.Close()

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
	resp, err := client.Get("https://" + ln.Addr().String())
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotNil(t, resp.TLS)
	assert.Contains(t, resp.Header.Get("Strict-Transport-Security"), "max-age=")
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
