package engine

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// DerivePublicKey returns the authorized_keys line for a PEM private key.
func DerivePublicKey(privateKey string) (string, error) {
	signer, err := ssh.ParsePrivateKey([]byte(privateKey))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))), nil
}

// Fingerprint returns the SHA256 fingerprint of an authorized_keys line.
func Fingerprint(publicKey string) (string, error) {
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	return ssh.FingerprintSHA256(key), nil
}

// keyMaterial fills in the key type and public key of a spec.
func keyMaterial(spec KeySpec) (KeySpec, error) {
	if spec.Type == "" {
		spec.Type = "ssh"
	}
	if spec.Type != "ssh" || spec.PrivateKey == "" || spec.PublicKey != "" {
		return spec, nil
	}
	pub, err := DerivePublicKey(spec.PrivateKey)
	if err != nil {
		return spec, err
	}
	spec.PublicKey = pub
	return spec, nil
}
