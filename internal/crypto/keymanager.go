// Package crypto holds the deployer key: encrypted storage at rest,
// transaction signing, and HMAC request signing for the market API.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

// Key file parameters. Iterations are stored per file so they can be raised
// without breaking existing files.
const (
	keyFileVersion    = 2
	defaultIterations = 480_000
	saltSize          = 16
	derivedKeySize    = 32
)

var (
	// ErrKeyPassword is returned when a key file cannot be opened with the
	// given password.
	ErrKeyPassword = errors.New("crypto: wrong key password or corrupted key file")
	// ErrDeployerMismatch is returned when the decrypted key does not belong
	// to the deployer recorded in the key file.
	ErrDeployerMismatch = errors.New("crypto: key does not match recorded deployer")
)

// KeyFile is the JSON document written by WriteKeyFile. The deployer address
// is stored in clear so operators can tell key files apart, and it is bound
// to the ciphertext as GCM additional data.
type KeyFile struct {
	Version    int            `json:"version"`
	Deployer   common.Address `json:"deployer"`
	Iterations int            `json:"iterations"`
	Salt       []byte         `json:"salt"`
	Nonce      []byte         `json:"nonce"`
	Ciphertext []byte         `json:"ciphertext"`
}

// KeyConfig lists the deployer key sources LoadKey may use. A raw key wins
// over a key file.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// SealKey encrypts key under password.
func SealKey(key *ecdsa.PrivateKey, password string) (KeyFile, error) {
	if password == "" {
		return KeyFile{}, errors.New("crypto: empty key password")
	}
	kf := KeyFile{
		Version:    keyFileVersion,
		Deployer:   ethcrypto.PubkeyToAddress(key.PublicKey),
		Iterations: defaultIterations,
		Salt:       make([]byte, saltSize),
	}
	if _, err := rand.Read(kf.Salt); err != nil {
		return KeyFile{}, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := kf.aead(password)
	if err != nil {
		return KeyFile{}, err
	}
	kf.Nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(kf.Nonce); err != nil {
		return KeyFile{}, fmt.Errorf("crypto: nonce: %w", err)
	}
	kf.Ciphertext = gcm.Seal(nil, kf.Nonce, ethcrypto.FromECDSA(key), kf.Deployer.Bytes())
	return kf, nil
}

// Open decrypts the key and checks that it derives the recorded deployer.
func (kf KeyFile) Open(password string) (*ecdsa.PrivateKey, error) {
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("crypto: key file version %d not supported", kf.Version)
	}
	if password == "" {
		return nil, errors.New("crypto: empty key password")
	}
	gcm, err := kf.aead(password)
	if err != nil {
		return nil, err
	}
	if len(kf.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: deployer %s: bad nonce length %d", kf.Deployer.Hex(), len(kf.Nonce))
	}
	raw, err := gcm.Open(nil, kf.Nonce, kf.Ciphertext, kf.Deployer.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w (deployer %s)", ErrKeyPassword, kf.Deployer.Hex())
	}
	key, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto: deployer %s: %w", kf.Deployer.Hex(), err)
	}
	if got := ethcrypto.PubkeyToAddress(key.PublicKey); got != kf.Deployer {
		return nil, fmt.Errorf("%w: expected %s, key is %s", ErrDeployerMismatch, kf.Deployer.Hex(), got.Hex())
	}
	return key, nil
}

func (kf KeyFile) aead(password string) (cipher.AEAD, error) {
	if kf.Iterations <= 0 || len(kf.Salt) == 0 {
		return nil, errors.New("crypto: key file has no KDF parameters")
	}
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), kf.Salt, kf.Iterations, derivedKeySize, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// WriteKeyFile seals the hex key and writes it to path with mode 0600. It
// refuses to replace an existing file and returns the deployer address.
func WriteKeyFile(path, privateKeyHex, password string) (common.Address, error) {
	key, err := parseHexKey(privateKeyHex)
	if err != nil {
		return common.Address{}, err
	}
	kf, err := SealKey(key, password)
	if err != nil {
		return common.Address{}, err
	}
	blob, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: encode key file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: create key file: %w", err)
	}
	if _, err := f.Write(blob); err != nil {
		f.Close()
		return common.Address{}, fmt.Errorf("crypto: write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return common.Address{}, fmt.Errorf("crypto: write key file: %w", err)
	}
	return kf.Deployer, nil
}

// ReadKeyFile loads a key file without decrypting it.
func ReadKeyFile(path string) (KeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeyFile{}, fmt.Errorf("crypto: read key file: %w", err)
	}
	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return KeyFile{}, fmt.Errorf("crypto: parse key file %s: %w", path, err)
	}
	return kf, nil
}

// LoadKey returns the deployer key as hex without a 0x prefix.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		key, err := parseHexKey(cfg.RawPrivateKey)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(ethcrypto.FromECDSA(key)), nil
	}
	if cfg.EncryptedKeyPath == "" {
		return "", errors.New("crypto: no deployer key configured")
	}

	kf, err := ReadKeyFile(cfg.EncryptedKeyPath)
	if err != nil {
		return "", err
	}
	key, err := kf.Open(cfg.KeyPassword)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ethcrypto.FromECDSA(key)), nil
}

func parseHexKey(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: deployer key is not hex: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("crypto: deployer key is %d bytes, want 32", len(b))
	}
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("crypto: deployer key: %w", err)
	}
	return key, nil
}
