package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Certs holds the paths of a throwaway PKI: a CA, a server certificate for
// localhost and client certificates for the operator and viewer roles.
type Certs struct {
	CACert       string
	ServerCert   string
	ServerKey    string
	OperatorCert string
	OperatorKey  string
	ViewerCert   string
	ViewerKey    string
}

// GenerateCerts writes a fresh PKI into a temporary directory.
func GenerateCerts(t testing.TB) Certs {
	t.Helper()

	dir := t.TempDir()

	caKey := newKey(t)

	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "buildworker test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create CA certificate: '%v'", err)
	}

	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parse CA certificate: '%v'", err)
	}

	certs := Certs{CACert: filepath.Join(dir, "ca.crt")}
	writePEM(t, certs.CACert, "CERTIFICATE", caDER)

	issue := func(serial int64, name pkix.Name, usage x509.ExtKeyUsage, server bool) (string, string) {
		key := newKey(t)

		tmpl := &x509.Certificate{
			SerialNumber: big.NewInt(serial),
			Subject:      name,
			NotBefore:    time.Now().Add(-time.Hour),
			NotAfter:     time.Now().Add(24 * time.Hour),
			KeyUsage:     x509.KeyUsageDigitalSignature,
			ExtKeyUsage:  []x509.ExtKeyUsage{usage},
		}

		if server {
			tmpl.DNSNames = []string{"localhost"}
			tmpl.IPAddresses = []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}
		}

		der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &key.PublicKey, caKey)
		if err != nil {
			t.Fatalf("create certificate for '%s': '%v'", name.CommonName, err)
		}

		keyDER, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			t.Fatalf("marshal key for '%s': '%v'", name.CommonName, err)
		}

		certPath := filepath.Join(dir, name.CommonName+".crt")
		keyPath := filepath.Join(dir, name.CommonName+".key")

		writePEM(t, certPath, "CERTIFICATE", der)
		writePEM(t, keyPath, "PRIVATE KEY", keyDER)

		return certPath, keyPath
	}

	certs.ServerCert, certs.ServerKey = issue(
		2,
		pkix.Name{CommonName: "server"},
		x509.ExtKeyUsageServerAuth,
		true,
	)

	certs.OperatorCert, certs.OperatorKey = issue(
		3,
		pkix.Name{CommonName: "client-operator", OrganizationalUnit: []string{"operator"}},
		x509.ExtKeyUsageClientAuth,
		false,
	)

	certs.ViewerCert, certs.ViewerKey = issue(
		4,
		pkix.Name{CommonName: "client-viewer", OrganizationalUnit: []string{"viewer"}},
		x509.ExtKeyUsageClientAuth,
		false,
	)

	return certs
}

func newKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: '%v'", err)
	}

	return key
}

func writePEM(t testing.TB, path, blockType string, der []byte) {
	t.Helper()

	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})

	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write '%s': '%v'", path, err)
	}
}
