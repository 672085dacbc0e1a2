package tlsconfig_test

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/nixpig/buildworker/internal/testutil"
	"github.com/nixpig/buildworker/internal/tlsconfig"
)

func TestSetupTLS(t *testing.T) {
	t.Parallel()

	certs := testutil.GenerateCerts(t)

	t.Run("Test server TLS config", func(t *testing.T) {
		t.Parallel()

		tlsConfig, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   certs.ServerCert,
			KeyPath:    certs.ServerKey,
			CACertPath: certs.CACert,
			Server:     true,
		})
		if err != nil {
			t.Fatalf("expected TLS setup not to return error: got '%v'", err)
		}

		if tlsConfig.MinVersion != tls.VersionTLS13 {
			t.Errorf(
				"expected min TLS version: got '%v', want '%v'",
				tlsConfig.MinVersion,
				tls.VersionTLS13,
			)
		}

		if tlsConfig.ClientAuth != tls.RequireAndVerifyClientCert {
			t.Errorf(
				"expected client auth: got '%v', want '%v'",
				tlsConfig.ClientAuth,
				tls.RequireAndVerifyClientCert,
			)
		}

		if tlsConfig.ClientCAs == nil {
			t.Errorf("expected client CAs to be set")
		}

		if tlsConfig.InsecureSkipVerify {
			t.Errorf("expected insecure skip verify to be false")
		}
	})

	t.Run("Test client TLS config", func(t *testing.T) {
		t.Parallel()

		tlsConfig, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   certs.OperatorCert,
			KeyPath:    certs.OperatorKey,
			CACertPath: certs.CACert,
			ServerName: "localhost",
		})
		if err != nil {
			t.Fatalf("expected TLS setup not to return error: got '%v'", err)
		}

		if tlsConfig.ServerName != "localhost" {
			t.Errorf(
				"expected server name: got '%s', want 'localhost'",
				tlsConfig.ServerName,
			)
		}

		if tlsConfig.RootCAs == nil {
			t.Errorf("expected root CAs to be set")
		}
	})

	t.Run("Test credentials", func(t *testing.T) {
		t.Parallel()

		creds, err := tlsconfig.Credentials(&tlsconfig.Config{
			CertPath:   certs.ViewerCert,
			KeyPath:    certs.ViewerKey,
			CACertPath: certs.CACert,
			ServerName: "localhost",
		})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if got := creds.Info().SecurityProtocol; got != "tls" {
			t.Errorf("expected security protocol: got '%s', want 'tls'", got)
		}
	})

	t.Run("Test error paths", func(t *testing.T) {
		t.Parallel()

		garbage := filepath.Join(t.TempDir(), "garbage.crt")
		if err := os.WriteFile(garbage, []byte("not a certificate"), 0644); err != nil {
			t.Fatalf("write garbage: '%v'", err)
		}

		scenarios := map[string]*tlsconfig.Config{
			"Missing key pair": {
				CertPath:   filepath.Join(t.TempDir(), "missing.crt"),
				KeyPath:    certs.ServerKey,
				CACertPath: certs.CACert,
			},
			"Mismatched key": {
				CertPath:   certs.ServerCert,
				KeyPath:    certs.OperatorKey,
				CACertPath: certs.CACert,
			},
			"Missing CA": {
				CertPath:   certs.ServerCert,
				KeyPath:    certs.ServerKey,
				CACertPath: filepath.Join(t.TempDir(), "missing.crt"),
			},
			"Unparseable CA": {
				CertPath:   certs.ServerCert,
				KeyPath:    certs.ServerKey,
				CACertPath: garbage,
			},
		}

		for scenario, config := range scenarios {
			t.Run(scenario, func(t *testing.T) {
				t.Parallel()

				if _, err := tlsconfig.SetupTLS(config); err == nil {
					t.Errorf("expected to receive error")
				}
			})
		}
	})
}
