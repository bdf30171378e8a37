package client

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/perpdemo/exchange/types"
)

// ContractConfig 合约配置
type ContractConfig struct {
	USDC           string // 抵押品代币地址
	Trading        string // 交易合约（开仓/平仓/撤单/改 TP SL）
	TradingStorage string // 保证金托管合约，USDC 需要授权给它
}

// Validate checks that every address is a well-formed hex address.
func (c ContractConfig) Validate() error {
	for name, addr := range map[string]string{
		"usdc":            c.USDC,
		"trading":         c.Trading,
		"trading_storage": c.TradingStorage,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s contract address %q", name, addr)
		}
	}
	return nil
}

// ArbitrumMainnetContracts Arbitrum One 主网合约地址
var ArbitrumMainnetContracts = ContractConfig{
	USDC:           "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
	Trading:        "0x6D0bA1f9996DBD8885827e1b2e8f6593e7702411",
	TradingStorage: "0xcCd5891083A8acD2074690F65d3024E7D13d66E7",
}

// ArbitrumSepoliaContracts Arbitrum Sepolia 测试网合约地址
var ArbitrumSepoliaContracts = ContractConfig{
	USDC:           "0xe73B11Fb1e3eeEe8AF2a23079A4410Fe1B370548",
	Trading:        "0x2A9B9c988393f46a2537B0ff11E98c2C15a95afe",
	TradingStorage: "0x0b9F5243B29938668c9Cfbd7557A389EC7Ef88b8",
}

// GetContractConfig 根据链 ID 获取合约配置
func GetContractConfig(chainID types.Chain) (*ContractConfig, error) {
	switch chainID {
	case types.ChainArbitrum:
		cfg := ArbitrumMainnetContracts
		return &cfg, nil
	case types.ChainArbitrumSepolia:
		cfg := ArbitrumSepoliaContracts
		return &cfg, nil
	default:
		return nil, fmt.Errorf("unsupported chain id: %d", chainID)
	}
}
