package security_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/flyvercity/c2ng/internal/security"
)

const testPassphrase = "test-uas-secret"

// generateRoot writes a self-signed root certificate and an encrypted root
// key into dir and returns their paths.
func generateRoot(t *testing.T, dir, passphrase string) (certPath, keyPath string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate root key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Flyvercity LTD"},
			CommonName:   "C2NG Root CA",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create root certificate: %v", err)
	}

	certPath = filepath.Join(dir, "root.crt")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("write root certificate: %v", err)
	}

	keyDER := x509.MarshalPKCS1PrivateKey(key)
	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY", keyDER, []byte(passphrase), x509.PEMCipherAES256) //nolint:staticcheck
	if err != nil {
		t.Fatalf("encrypt root key: %v", err)
	}
	keyPath = filepath.Join(dir, "root.key")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write root key: %v", err)
	}
	return certPath, keyPath
}

// newTestIssuer builds an Issuer over a freshly generated root.
func newTestIssuer(t *testing.T, ttl time.Duration) *security.Issuer {
	t.Helper()
	certPath, keyPath := generateRoot(t, t.TempDir(), testPassphrase)
	issuer, err := security.NewIssuer(certPath, keyPath, testPassphrase, ttl)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return issuer
}

// parseCert decodes a PEM certificate.
func parseCert(t *testing.T, pemStr string) *x509.Certificate {
	t.Helper()
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		t.Fatal("no PEM block in certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert
}

func TestIssue_CertificateSignedByRoot(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := generateRoot(t, dir, testPassphrase)
	issuer, err := security.NewIssuer(certPath, keyPath, testPassphrase, time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	cred, err := issuer.Issue("drone-1::UA")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cert := parseCert(t, cred.Certificate)
	if got, want := cert.Subject.CommonName, "drone-1::UA.c2ng"; got != want {
		t.Errorf("Subject.CommonName = %q, want %q", got, want)
	}

	rootPEM, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatalf("read root certificate: %v", err)
	}
	root := parseCert(t, string(rootPEM))
	if err := cert.CheckSignatureFrom(root); err != nil {
		t.Errorf("certificate is not signed by the root: %v", err)
	}
	if cert.Issuer.CommonName != root.Subject.CommonName {
		t.Errorf("Issuer.CommonName = %q, want %q", cert.Issuer.CommonName, root.Subject.CommonName)
	}
}

func TestIssue_EncryptedKeyMatchesCertificate(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)

	cred, err := issuer.Issue("drone-1::ADX")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	block, _ := pem.Decode([]byte(cred.EncryptedPrivateKey))
	if block == nil {
		t.Fatal("no PEM block in encrypted private key")
	}
	if !x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck
		t.Fatal("private key block is not encrypted")
	}
	der, err := x509.DecryptPEMBlock(block, []byte(testPassphrase)) //nolint:staticcheck
	if err != nil {
		t.Fatalf("decrypt private key: %v", err)
	}
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		t.Fatalf("parse decrypted key: %v", err)
	}

	cert := parseCert(t, cred.Certificate)
	certPub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("certificate public key is %T, want RSA", cert.PublicKey)
	}
	if !key.PublicKey.Equal(certPub) {
		t.Error("decrypted key does not match the certificate public key")
	}
}

func TestIssue_KeyRejectsWrongPassphrase(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)

	cred, err := issuer.Issue("drone-2::UA")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	block, _ := pem.Decode([]byte(cred.EncryptedPrivateKey))
	if block == nil {
		t.Fatal("no PEM block in encrypted private key")
	}
	if _, err := x509.DecryptPEMBlock(block, []byte("not-the-secret")); err == nil { //nolint:staticcheck
		t.Error("expected decryption error with wrong passphrase, got nil")
	}
}

func TestIssue_FreshKIDPerIssuance(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)

	first, err := issuer.Issue("drone-3::UA")
	if err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	second, err := issuer.Issue("drone-3::UA")
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}

	if first.KID == second.KID {
		t.Errorf("KID repeated across issuances: %q", first.KID)
	}
	for _, kid := range []string{first.KID, second.KID} {
		if _, err := uuid.Parse(kid); err != nil {
			t.Errorf("KID %q is not a UUID: %v", kid, err)
		}
	}
}

func TestIssue_ValidityMatchesTTL(t *testing.T) {
	ttl := 30 * time.Minute
	issuer := newTestIssuer(t, ttl)

	cred, err := issuer.Issue("drone-4::UA")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cert := parseCert(t, cred.Certificate)
	if got := cert.NotAfter.Sub(cert.NotBefore); got != ttl {
		t.Errorf("validity = %v, want %v", got, ttl)
	}
	if now := time.Now(); cert.NotBefore.After(now) {
		t.Errorf("NotBefore %v is in the future", cert.NotBefore)
	}
}

func TestNewIssuer_WrongPassphrase(t *testing.T) {
	certPath, keyPath := generateRoot(t, t.TempDir(), testPassphrase)
	if _, err := security.NewIssuer(certPath, keyPath, "not-the-secret", time.Hour); err == nil {
		t.Fatal("expected error for wrong root passphrase, got nil")
	}
}

func TestNewIssuer_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope.pem")
	if _, err := security.NewIssuer(missing, missing, testPassphrase, time.Hour); err == nil {
		t.Fatal("expected error for missing root material, got nil")
	}
}
