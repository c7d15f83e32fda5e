package chain

import (
	"bytes"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/*.json
var abiFS embed.FS

var (
	collateralPoolABI = mustEmbeddedABI("abi/collateral_pool.json")
	erc20ABI          = mustEmbeddedABI("abi/erc20.json")
)

func mustEmbeddedABI(name string) abi.ABI {
	raw, err := abiFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("chain: embedded abi %s: %v", name, err))
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chain: parse abi %s: %v", name, err))
	}
	return parsed
}

// LoadMarketABI returns the market contract ABI from path, or the embedded
// one when path is empty.
func LoadMarketABI(path string) (abi.ABI, error) {
	var (
		raw []byte
		err error
	)
	if path == "" {
		raw, err = abiFS.ReadFile("abi/market_contract.json")
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return abi.ABI{}, fmt.Errorf("chain: read market abi: %w", err)
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("chain: parse market abi: %w", err)
	}
	return parsed, nil
}

// LoadBytecode reads hex-encoded creation bytecode from path. A 0x prefix
// and surrounding whitespace are accepted.
func LoadBytecode(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chain: read bytecode: %w", err)
	}
	return DecodeBytecode(string(raw))
}

// DecodeBytecode decodes hex-encoded creation bytecode.
func DecodeBytecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, fmt.Errorf("chain: empty bytecode")
	}
	code, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("chain: decode bytecode: %w", err)
	}
	return code, nil
}
