package net

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// generateTransportCertificate creates a self-signed TLS certificate on an
// ephemeral P-256 key, used only to carry the QUIC handshake.
//
// The node's real identity is a hybrid secp256k1/Dilithium3 keypair
// (src/crypto), and crypto/x509's certificate-signing path only accepts the
// NIST curves (P224/P256/P384/P521); it rejects secp256k1 outright. So,
// unlike a plain ed25519- or P256-identified peer, this transport layer
// cannot embed the real identity in the certificate the way a TLS session
// normally would. Instead the certificate is throwaway and per-node, and the
// real identity is bound to the session afterwards by the handshake in
// identity.go, which signs over this certificate's raw bytes so a relayed
// or MITM'd session cannot be rebound to a different identity.
func generateTransportCertificate() (tls.Certificate, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("generate transport key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "rope-transport"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("create certificate: %w", err)
	}

	tlsCert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}
	return tlsCert, der, nil
}

// peerCertificateFingerprint returns the raw DER bytes of the first
// certificate a TLS peer presented, the channel-binding material the hybrid
// handshake signs over.
func peerCertificateFingerprint(state tls.ConnectionState) ([]byte, error) {
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("no peer certificate")
	}
	return state.PeerCertificates[0].Raw, nil
}
