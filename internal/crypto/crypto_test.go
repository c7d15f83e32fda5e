package crypto

import (
	"crypto/ecdsa"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeyHex  = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func TestKeyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployer.json")
	deployer, err := WriteKeyFile(path, "0x"+testKeyHex, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), deployer)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	kf, err := ReadKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, deployer, kf.Deployer)
	assert.Equal(t, defaultIterations, kf.Iterations)

	key, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, key)

	_, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"})
	require.ErrorIs(t, err, ErrKeyPassword)
	assert.Contains(t, err.Error(), testAddress)

	// Never clobber an existing key file.
	_, err = WriteKeyFile(path, testKeyHex, "other")
	require.Error(t, err)
}

func TestKeyFileDeployerTampering(t *testing.T) {
	other, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	kf, err := SealKey(key, "hunter2")
	require.NoError(t, err)

	// The recorded deployer is authenticated with the ciphertext.
	swapped := kf
	swapped.Deployer = ethcrypto.PubkeyToAddress(other.PublicKey)
	_, err = swapped.Open("hunter2")
	require.ErrorIs(t, err, ErrKeyPassword)
	assert.Contains(t, err.Error(), swapped.Deployer.Hex())

	// A file sealed for another deployer but relabelled with a matching tag
	// still fails the address check.
	forged, err := SealKey(other, "hunter2")
	require.NoError(t, err)
	forged.Deployer = kf.Deployer
	forged.Ciphertext = sealWithTag(t, forged, other, "hunter2", kf.Deployer)
	_, err = forged.Open("hunter2")
	require.ErrorIs(t, err, ErrDeployerMismatch)
	assert.Contains(t, err.Error(), testAddress)

	_, err = KeyFile{Version: 1}.Open("hunter2")
	require.Error(t, err)
}

// sealWithTag re-encrypts key binding an arbitrary deployer address.
func sealWithTag(t *testing.T, kf KeyFile, key *ecdsa.PrivateKey, password string, tag common.Address) []byte {
	t.Helper()
	gcm, err := kf.aead(password)
	require.NoError(t, err)
	return gcm.Seal(nil, kf.Nonce, ethcrypto.FromECDSA(key), tag.Bytes())
}

func TestLoadKeyRaw(t *testing.T) {
	key, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, key)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "abcd"})
	require.Error(t, err)

	_, err = LoadKey(KeyConfig{})
	require.Error(t, err)
}

func TestSignerAddressAndTx(t *testing.T) {
	s, err := NewSigner(testKeyHex, 1337)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	tx := types.NewContractCreation(0, big.NewInt(0), 100_000, big.NewInt(1), []byte{0x60, 0x00})
	signed, err := s.SignTx(tx)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1337)), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)

	_, err = NewSigner(testKeyHex, 0)
	require.Error(t, err)
}

func TestSignMessageRecover(t *testing.T) {
	s, err := NewSigner(testKeyHex, 1)
	require.NoError(t, err)

	msg := []byte(`{"address":"0xabc"}`)
	sig, err := s.SignMessage(msg)
	require.NoError(t, err)

	got, err := RecoverMessageSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	other, err := RecoverMessageSigner([]byte("tampered"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other)
}

func TestHMACHeaders(t *testing.T) {
	h := &HMACAuth{Key: "key-1", Secret: "c2VjcmV0", Passphrase: "pp"}
	require.True(t, h.Enabled())

	headers := h.HeadersAt("GET", "/orders/0xabc", "", 1700000000)
	assert.Equal(t, "key-1", headers[HeaderAPIKey])
	assert.Equal(t, "1700000000", headers[HeaderTimestamp])
	assert.Equal(t, "pp", headers[HeaderPassphrase])
	assert.True(t, h.Verify("1700000000GET/orders/0xabc", headers[HeaderSignature]))
	assert.False(t, h.Verify("1700000001GET/orders/0xabc", headers[HeaderSignature]))

	assert.False(t, (&HMACAuth{}).Enabled())
	assert.NotContains(t, h.String(), "c2VjcmV0")
}
