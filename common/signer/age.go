package signer

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/btcsuite/btcutil/bech32"

	"github.com/ceramicnetwork/go-fanout"
	"github.com/ceramicnetwork/go-fanout/models"
)

var _ models.Signer = &AgeSigner{}

// AgeSigner signs with an Ed25519 key derived from an age secret key seed and encrypts for counterparties using their
// age X25519 recipients.
type AgeSigner struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	identity   *age.X25519Identity
	recipients map[string]age.Recipient
}

// NewAgeSignerFromEnv reads the secret key from AGE_SECRET_KEY and counterparty recipients from AGE_RECIPIENTS, a
// comma-separated list of id=recipient pairs.
func NewAgeSignerFromEnv() (*AgeSigner, error) {
	secret := strings.TrimSpace(os.Getenv(fanout.Env_AgeSecretKey))
	if len(secret) == 0 {
		return nil, fmt.Errorf("%s must be set", fanout.Env_AgeSecretKey)
	}
	recipients := make(map[string]string)
	for _, pair := range strings.Split(os.Getenv(fanout.Env_AgeRecipients), ",") {
		if pair = strings.TrimSpace(pair); len(pair) == 0 {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid recipient %q in %s", pair, fanout.Env_AgeRecipients)
		}
		recipients[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return NewAgeSigner(secret, recipients)
}

func NewAgeSigner(secret string, recipients map[string]string) (*AgeSigner, error) {
	seed, err := decodeAgeSecretKey(secret)
	if err != nil {
		return nil, fmt.Errorf("parse secret key: %w", err)
	}
	identity, err := age.ParseX25519Identity(secret)
	if err != nil {
		return nil, fmt.Errorf("parse secret key: %w", err)
	}
	privateKey := ed25519.NewKeyFromSeed(seed)
	s := &AgeSigner{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
		identity:   identity,
		recipients: make(map[string]age.Recipient, len(recipients)),
	}
	for recipientId, recipientStr := range recipients {
		if recipient, err := age.ParseX25519Recipient(recipientStr); err != nil {
			return nil, fmt.Errorf("parse recipient for %s: %w", recipientId, err)
		} else {
			s.recipients[recipientId] = recipient
		}
	}
	return s, nil
}

func (s *AgeSigner) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(s.privateKey, data), nil
}

func (s *AgeSigner) Verify(data, signature []byte) error {
	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature length %d", len(signature))
	}
	if !ed25519.Verify(s.publicKey, data, signature) {
		return errors.New("signature verification failed")
	}
	return nil
}

func (s *AgeSigner) Encrypt(recipientId string, data []byte) ([]byte, error) {
	recipient, found := s.recipients[recipientId]
	if !found {
		return nil, fmt.Errorf("no recipient configured for %s", recipientId)
	}
	buf := new(bytes.Buffer)
	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(data); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decrypt opens a message encrypted for this signer's own recipient.
func (s *AgeSigner) Decrypt(ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func (s *AgeSigner) PublicKey() ed25519.PublicKey {
	return s.publicKey
}

// Recipient returns the age recipient that counterparties use to encrypt for this signer.
func (s *AgeSigner) Recipient() string {
	return s.identity.Recipient().String()
}

func decodeAgeSecretKey(raw string) ([]byte, error) {
	hrp, data, err := bech32.Decode(raw)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(hrp, "age-secret-key-") {
		return nil, fmt.Errorf("unexpected hrp %q", hrp)
	}
	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(decoded) != ed25519.SeedSize {
		return nil, fmt.Errorf("unexpected seed length %d", len(decoded))
	}
	return decoded, nil
}
