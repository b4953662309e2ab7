// Package wallet 签名账户加载
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// DefaultDerivationPath 助记词派生路径（MetaMask 默认账户）
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// Load 加载签名私钥
// 私钥（hex，可带 0x 前缀）优先；否则从助记词按派生路径派生。
// 返回私钥与对应的账户地址。
func Load(privateKeyHex, mnemonic, derivationPath string) (*ecdsa.PrivateKey, string, error) {
	privateKeyHex = strings.TrimSpace(privateKeyHex)
	mnemonic = strings.TrimSpace(mnemonic)

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, "", fmt.Errorf("解析私钥失败: %w", err)
		}
		return key, crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
	}

	if mnemonic == "" {
		return nil, "", fmt.Errorf("需要私钥或助记词")
	}
	if derivationPath == "" {
		derivationPath = DefaultDerivationPath
	}

	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, "", fmt.Errorf("无效的助记词: %w", err)
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, "", fmt.Errorf("无效的派生路径 %q: %w", derivationPath, err)
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, "", fmt.Errorf("派生账户失败: %w", err)
	}
	key, err := w.PrivateKey(acct)
	if err != nil {
		return nil, "", fmt.Errorf("获取派生私钥失败: %w", err)
	}

	return key, acct.Address.Hex(), nil
}
