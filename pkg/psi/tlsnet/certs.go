package tlsnet

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/coinbase/cb-psi-go/pkg/psi"
)

// PKI is a demo certificate authority with one certificate per party, held as
// PEM. Certificates support both server and client authentication and carry
// localhost SANs for local runs.
type PKI struct {
	CACert  []byte
	CAKey   []byte
	Parties map[string]KeyPair
}

// KeyPair is a PEM certificate and its PEM private key.
type KeyPair struct {
	Cert []byte
	Key  []byte
}

// GenerateCertificates creates a CA and certificates for names, valid for
// the given duration.
func GenerateCertificates(names []string, validity time.Duration) (*PKI, error) {
	if len(names) < 2 {
		return nil, fmt.Errorf("tlsnet: provide at least two party names (got %v)", names)
	}
	now := time.Now()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "cb-psi-go-demo-ca"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		return nil, fmt.Errorf("parse CA certificate: %w", err)
	}
	caKeyPEM, err := encodeKey(caKey)
	if err != nil {
		return nil, err
	}
	pki := &PKI{
		CACert:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER}),
		CAKey:   caKeyPEM,
		Parties: make(map[string]KeyPair, len(names)),
	}

	for i, name := range names {
		if _, dup := pki.Parties[name]; dup || name == "" {
			return nil, fmt.Errorf("tlsnet: invalid or duplicate party name %q", name)
		}
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate key for %s: %w", name, err)
		}
		tmpl := &x509.Certificate{
			SerialNumber: big.NewInt(int64(i + 2)),
			Subject:      pkix.Name{CommonName: name},
			NotBefore:    now.Add(-time.Hour),
			NotAfter:     now.Add(validity),
			KeyUsage:     x509.KeyUsageDigitalSignature,
			ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
			DNSNames:     []string{name, "localhost"},
			IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		}
		der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &key.PublicKey, caKey)
		if err != nil {
			return nil, fmt.Errorf("create cert for %s: %w", name, err)
		}
		keyPEM, err := encodeKey(key)
		if err != nil {
			return nil, err
		}
		pki.Parties[name] = KeyPair{
			Cert: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
			Key:  keyPEM,
		}
	}
	return pki, nil
}

func encodeKey(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// Pool returns the CA as a certificate pool.
func (p *PKI) Pool() (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(p.CACert) {
		return nil, fmt.Errorf("tlsnet: failed to parse CA certificate")
	}
	return pool, nil
}

// Certificate returns the TLS certificate of party name.
func (p *PKI) Certificate(name string) (tls.Certificate, error) {
	kp, ok := p.Parties[name]
	if !ok {
		return tls.Certificate{}, fmt.Errorf("tlsnet: no certificate for %q", name)
	}
	return tls.X509KeyPair(kp.Cert, kp.Key)
}

// Write stores the PKI under dir as rootCA.pem, rootCA-key.pem and
// <name>-cert.pem / <name>-key.pem. dir must stay inside the working
// directory.
func (p *PKI) Write(dir string) error {
	abs, err := psi.SecurePath(dir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	files := map[string][]byte{
		"rootCA.pem":     p.CACert,
		"rootCA-key.pem": p.CAKey,
	}
	for name, kp := range p.Parties {
		files[name+"-cert.pem"] = kp.Cert
		files[name+"-key.pem"] = kp.Key
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(abs, name), data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// LoadCertPool reads a PEM CA certificate from path.
func LoadCertPool(path string) (*x509.CertPool, error) {
	abs, err := psi.SecurePath(path)
	if err != nil {
		return nil, fmt.Errorf("secure path: %w", err)
	}
	data, err := os.ReadFile(abs) // #nosec G304 -- abs validated by SecurePath
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("tlsnet: failed to parse CA certificate %s", path)
	}
	return pool, nil
}

// LoadKeyPair reads a PEM certificate and key.
func LoadKeyPair(certPath, keyPath string) (tls.Certificate, error) {
	certAbs, err := psi.SecurePath(certPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("secure cert path: %w", err)
	}
	keyAbs, err := psi.SecurePath(keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("secure key path: %w", err)
	}
	cert, err := tls.LoadX509KeyPair(certAbs, keyAbs)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load key pair: %w", err)
	}
	return cert, nil
}
