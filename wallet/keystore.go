// Package wallet provides key management and transaction signing helpers.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tolelom/kombat/crypto"
)

const (
	keystoreVersion   = 1
	defaultIterations = 210_000
	saltSize          = 16
)

// ErrWrongPassword is returned by LoadKey when the keystore cannot be opened
// with the given password.
var ErrWrongPassword = errors.New("wrong password or corrupted keystore")

// keystoreFile is the on-disk layout. The KDF parameters travel with the
// ciphertext so they can be raised without breaking older files.
type keystoreFile struct {
	Version    int    `json:"version"`
	PubKey     string `json:"pub_key"`
	KDF        kdf    `json:"kdf"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipher_text"`
}

type kdf struct {
	Name       string `json:"name"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
}

// SaveKey seals priv with password (AES-256-GCM under a PBKDF2-SHA256 key)
// and writes it to path with owner-only permissions.
func SaveKey(path, password string, priv crypto.PrivateKey) error {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	gcm, err := sealer(password, salt, defaultIterations)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}

	pub := priv.Public().Hex()
	ks := keystoreFile{
		Version: keystoreVersion,
		PubKey:  pub,
		KDF: kdf{
			Name:       "pbkdf2-sha256",
			Iterations: defaultIterations,
			Salt:       hex.EncodeToString(salt),
		},
		Nonce: hex.EncodeToString(nonce),
		// The public key is bound as associated data so a swapped pub_key
		// field fails to open.
		CipherText: hex.EncodeToString(gcm.Seal(nil, nonce, priv, []byte(pub))),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKey opens the keystore at path. It fails with ErrWrongPassword when
// the password is wrong or the file was tampered with.
func LoadKey(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("keystore %s: %w", path, err)
	}
	if ks.Version != keystoreVersion {
		return nil, fmt.Errorf("keystore %s: unsupported version %d", path, ks.Version)
	}
	if ks.KDF.Iterations <= 0 {
		return nil, fmt.Errorf("keystore %s: invalid kdf iterations", path)
	}

	salt, err := hex.DecodeString(ks.KDF.Salt)
	if err != nil {
		return nil, fmt.Errorf("keystore salt: %w", err)
	}
	nonce, err := hex.DecodeString(ks.Nonce)
	if err != nil {
		return nil, fmt.Errorf("keystore nonce: %w", err)
	}
	cipherText, err := hex.DecodeString(ks.CipherText)
	if err != nil {
		return nil, fmt.Errorf("keystore ciphertext: %w", err)
	}

	gcm, err := sealer(password, salt, ks.KDF.Iterations)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, ErrWrongPassword
	}
	privBytes, err := gcm.Open(nil, nonce, cipherText, []byte(ks.PubKey))
	if err != nil {
		return nil, ErrWrongPassword
	}
	if len(privBytes) != ed25519.PrivateKeySize {
		return nil, ErrWrongPassword
	}
	priv := crypto.PrivateKey(privBytes)
	if priv.Public().Hex() != ks.PubKey {
		return nil, ErrWrongPassword
	}
	return priv, nil
}

func sealer(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
