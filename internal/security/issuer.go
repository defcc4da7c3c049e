// Package security mints short-lived client credentials for C2 endpoints.
//
// The Issuer holds the service root certificate and its passphrase-protected
// private key. Every issued credential is a fresh RSA-2048 key pair plus an
// X.509 certificate signed by the root, bound together by a random KID. The
// client private key leaves the service only in passphrase-encrypted PEM
// form; the plaintext key is never persisted.
package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/google/uuid"
)

// serialLimit bounds certificate serial numbers to 128 bits.
var serialLimit = new(big.Int).Lsh(big.NewInt(1), 128)

// Credential is one issued client credential.
type Credential struct {
	// KID is the random UUID identifying this issuance.
	KID string

	// Certificate is the client certificate in PEM form.
	Certificate string

	// EncryptedPrivateKey is the client private key in PEM form, encrypted
	// with the UAS client secret (RFC 1423, AES-256-CBC).
	EncryptedPrivateKey string
}

// Issuer signs client certificates with the service root key.
type Issuer struct {
	rootCert   *x509.Certificate
	rootKey    *rsa.PrivateKey
	passphrase []byte
	ttl        time.Duration
}

// NewIssuer loads the root certificate and private key PEM files and returns
// an Issuer minting certificates valid for ttl. passphrase decrypts the root
// key and encrypts issued client keys.
func NewIssuer(certPath, keyPath, passphrase string, ttl time.Duration) (*Issuer, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("security: cannot read root certificate %q: %w", certPath, err)
	}
	rootCert, err := parseCertificate(certPEM)
	if err != nil {
		return nil, fmt.Errorf("security: parse root certificate %q: %w", certPath, err)
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("security: cannot read root key %q: %w", keyPath, err)
	}
	rootKey, err := parsePrivateKey(keyPEM, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("security: parse root key %q: %w", keyPath, err)
	}

	return &Issuer{
		rootCert:   rootCert,
		rootKey:    rootKey,
		passphrase: []byte(passphrase),
		ttl:        ttl,
	}, nil
}

// Issue mints a credential for clientID (e.g. "drone-1::UA"). The
// certificate subject is CN=<clientID>.c2ng and the issuer is the root
// certificate's subject.
func (i *Issuer) Issue(clientID string) (*Credential, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate client key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, serialLimit)
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	notBefore := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Country:      []string{"IL"},
			Province:     []string{"HaSharon"},
			Locality:     []string{"Netanya"},
			Organization: []string{"Flyvercity LTD"},
			CommonName:   clientID + ".c2ng",
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(i.ttl),
		SignatureAlgorithm:    x509.SHA256WithRSA,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, i.rootCert, &key.PublicKey, i.rootKey)
	if err != nil {
		return nil, fmt.Errorf("sign client certificate: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	// UAS clients consume RFC 1423 encrypted keys, not encrypted PKCS#8.
	keyDER := x509.MarshalPKCS1PrivateKey(key)
	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY", keyDER, i.passphrase, x509.PEMCipherAES256) //nolint:staticcheck
	if err != nil {
		return nil, fmt.Errorf("encrypt client key: %w", err)
	}

	return &Credential{
		KID:                 uuid.NewString(),
		Certificate:         string(certPEM),
		EncryptedPrivateKey: string(pem.EncodeToMemory(block)),
	}, nil
}

// parseCertificate decodes the first CERTIFICATE block in pemBytes.
func parseCertificate(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("no certificate PEM block found")
	}
	return x509.ParseCertificate(block.Bytes)
}

// parsePrivateKey decodes an RSA private key PEM block, decrypting it with
// passphrase when the block carries RFC 1423 headers. Both PKCS#1 and PKCS#8
// encodings are accepted.
func parsePrivateKey(pemBytes, passphrase []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no private key PEM block found")
	}

	der := block.Bytes
	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck
		var err error
		der, err = x509.DecryptPEMBlock(block, passphrase) //nolint:staticcheck
		if err != nil {
			return nil, fmt.Errorf("decrypt private key: %w", err)
		}
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", keyAny)
	}
	return key, nil
}
