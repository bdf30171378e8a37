package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/betbot/perpdemo/exchange/client"
	"github.com/betbot/perpdemo/exchange/types"
	"github.com/betbot/perpdemo/pkg/sdk/api"
)

// ErrMissingRPCURL 未配置 RPC_URL
var ErrMissingRPCURL = errors.New("RPC_URL not found in environment or config file")

const (
	NetworkTestnet = "testnet"
	NetworkMainnet = "mainnet"
)

// NetworkConfig 网络配置（链、subgraph、价格源、合约地址）
type NetworkConfig struct {
	Name        string
	ChainID     types.Chain
	SubgraphURL string
	PriceURL    string
	Contracts   client.ContractConfig
}

// Testnet Arbitrum Sepolia
func Testnet() NetworkConfig {
	return NetworkConfig{
		Name:        NetworkTestnet,
		ChainID:     types.ChainArbitrumSepolia,
		SubgraphURL: api.TestnetSubgraphURL,
		PriceURL:    api.DefaultPriceURL,
		Contracts:   client.ArbitrumSepoliaContracts,
	}
}

// Mainnet Arbitrum One
func Mainnet() NetworkConfig {
	return NetworkConfig{
		Name:        NetworkMainnet,
		ChainID:     types.ChainArbitrum,
		SubgraphURL: api.MainnetSubgraphURL,
		PriceURL:    api.DefaultPriceURL,
		Contracts:   client.ArbitrumMainnetContracts,
	}
}

// NetworkByName 根据名称获取网络预设
func NetworkByName(name string) (NetworkConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NetworkTestnet, "sepolia":
		return Testnet(), nil
	case NetworkMainnet, "arbitrum":
		return Mainnet(), nil
	default:
		return NetworkConfig{}, fmt.Errorf("unknown network %q (expected testnet or mainnet)", name)
	}
}

// WalletConfig 钱包配置；PrivateKey 优先于 Mnemonic，都为空时只读
type WalletConfig struct {
	PrivateKey     string
	Mnemonic       string
	DerivationPath string
}

// HasKey reports whether a signing key source is configured.
func (w WalletConfig) HasKey() bool {
	return w.PrivateKey != "" || w.Mnemonic != ""
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string
	File       string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// OrderConfig 演示订单参数
type OrderConfig struct {
	Collateral      float64 `yaml:"collateral" json:"collateral"`
	Leverage        float64 `yaml:"leverage" json:"leverage"`
	Direction       string  `yaml:"direction" json:"direction"`
	PriceMultiplier float64 `yaml:"price_multiplier" json:"price_multiplier"` // 下单价 = 参考价 × multiplier
}

// DemoConfig 演示流程参数
type DemoConfig struct {
	SlippagePercent      float64
	LimitOrder           OrderConfig
	MarketOrder          OrderConfig
	TakeProfitMultiplier float64
	StopLossMultiplier   float64
	SettleDelay          time.Duration
	MonitorIterations    int
	MonitorInterval      time.Duration
}

// DefaultDemoConfig 默认演示参数
func DefaultDemoConfig() DemoConfig {
	return DemoConfig{
		SlippagePercent: 1,
		LimitOrder: OrderConfig{
			Collateral:      20,
			Leverage:        50,
			Direction:       string(types.DirectionShort),
			PriceMultiplier: 1.1,
		},
		MarketOrder: OrderConfig{
			Collateral:      100,
			Leverage:        10,
			Direction:       string(types.DirectionLong),
			PriceMultiplier: 1,
		},
		TakeProfitMultiplier: 1.05,
		StopLossMultiplier:   0.95,
		SettleDelay:          10 * time.Second,
		MonitorIterations:    10,
		MonitorInterval:      60 * time.Second,
	}
}

const (
	JournalBackendBadger = "badger"
	JournalBackendJSON   = "json"
)

// JournalConfig 交易记录存储；Dir 为空时不记录
type JournalConfig struct {
	Dir     string
	Backend string // badger | json
}

// Enabled reports whether transactions should be journaled.
func (j JournalConfig) Enabled() bool {
	return j.Dir != ""
}

// Config 应用配置
type Config struct {
	RPCURL                string
	Network               NetworkConfig
	Wallet                WalletConfig
	Log                   LogConfig
	Demo                  DemoConfig
	Journal               JournalConfig
	SubgraphRatePerSecond float64
	ReceiptPollInterval   time.Duration
}

// ConfigFile 配置文件结构（YAML/JSON）
type ConfigFile struct {
	Network     string `yaml:"network" json:"network"`
	RPCURL      string `yaml:"rpc_url" json:"rpc_url"`
	SubgraphURL string `yaml:"subgraph_url" json:"subgraph_url"`
	PriceURL    string `yaml:"price_url" json:"price_url"`
	Contracts   struct {
		USDC           string `yaml:"usdc" json:"usdc"`
		Trading        string `yaml:"trading" json:"trading"`
		TradingStorage string `yaml:"trading_storage" json:"trading_storage"`
	} `yaml:"contracts" json:"contracts"`
	Wallet struct {
		PrivateKey     string `yaml:"private_key" json:"private_key"`
		Mnemonic       string `yaml:"mnemonic" json:"mnemonic"`
		DerivationPath string `yaml:"derivation_path" json:"derivation_path"`
	} `yaml:"wallet" json:"wallet"`
	SubgraphRatePerSecond float64  `yaml:"subgraph_rate_per_second" json:"subgraph_rate_per_second"`
	ReceiptPollInterval   Duration `yaml:"receipt_poll_interval" json:"receipt_poll_interval"`
	Log                   struct {
		Level      string `yaml:"level" json:"level"`
		File       string `yaml:"file" json:"file"`
		MaxSize    int    `yaml:"max_size" json:"max_size"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAge     int    `yaml:"max_age" json:"max_age"`
		Compress   *bool  `yaml:"compress" json:"compress"`
	} `yaml:"log" json:"log"`
	Journal struct {
		Dir     string `yaml:"dir" json:"dir"`
		Backend string `yaml:"backend" json:"backend"`
	} `yaml:"journal" json:"journal"`
	Demo struct {
		SlippagePercent      float64      `yaml:"slippage_percent" json:"slippage_percent"`
		LimitOrder           *OrderConfig `yaml:"limit_order" json:"limit_order"`
		MarketOrder          *OrderConfig `yaml:"market_order" json:"market_order"`
		TakeProfitMultiplier float64      `yaml:"take_profit_multiplier" json:"take_profit_multiplier"`
		StopLossMultiplier   float64      `yaml:"stop_loss_multiplier" json:"stop_loss_multiplier"`
		SettleDelay          Duration     `yaml:"settle_delay" json:"settle_delay"`
		MonitorIterations    int          `yaml:"monitor_iterations" json:"monitor_iterations"`
		MonitorInterval      Duration     `yaml:"monitor_interval" json:"monitor_interval"`
	} `yaml:"demo" json:"demo"`
}

// Load 加载配置
// 优先级：环境变量 > 配置文件 > 默认值（演示参数只来自配置文件或默认值）
func Load(filePath string) (*Config, error) {
	var cf *ConfigFile
	if filePath != "" {
		var err error
		cf, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", filePath, err)
		}
	} else {
		cf = &ConfigFile{}
	}

	rpcURL := getEnv("RPC_URL", cf.RPCURL)
	if strings.TrimSpace(rpcURL) == "" {
		return nil, ErrMissingRPCURL
	}

	network, err := NetworkByName(getEnv("OSTIUM_NETWORK", cf.Network))
	if err != nil {
		return nil, err
	}
	if cf.SubgraphURL != "" {
		network.SubgraphURL = cf.SubgraphURL
	}
	if cf.PriceURL != "" {
		network.PriceURL = cf.PriceURL
	}
	if cf.Contracts.USDC != "" {
		network.Contracts.USDC = cf.Contracts.USDC
	}
	if cf.Contracts.Trading != "" {
		network.Contracts.Trading = cf.Contracts.Trading
	}
	if cf.Contracts.TradingStorage != "" {
		network.Contracts.TradingStorage = cf.Contracts.TradingStorage
	}

	cfg := &Config{
		RPCURL:  strings.TrimSpace(rpcURL),
		Network: network,
		Wallet: WalletConfig{
			PrivateKey:     strings.TrimSpace(getEnv("PRIVATE_KEY", cf.Wallet.PrivateKey)),
			Mnemonic:       strings.TrimSpace(getEnv("MNEMONIC", cf.Wallet.Mnemonic)),
			DerivationPath: strings.TrimSpace(getEnv("DERIVATION_PATH", cf.Wallet.DerivationPath)),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", firstNonEmpty(cf.Log.Level, "info")),
			File:       getEnv("LOG_FILE", cf.Log.File),
			MaxSize:    intOr(cf.Log.MaxSize, 100),
			MaxBackups: intOr(cf.Log.MaxBackups, 3),
			MaxAge:     intOr(cf.Log.MaxAge, 7),
			Compress:   cf.Log.Compress == nil || *cf.Log.Compress,
		},
		Demo: mergeDemo(DefaultDemoConfig(), cf),
		Journal: JournalConfig{
			Dir:     strings.TrimSpace(getEnv("JOURNAL_DIR", cf.Journal.Dir)),
			Backend: strings.ToLower(getEnv("JOURNAL_BACKEND", firstNonEmpty(cf.Journal.Backend, JournalBackendBadger))),
		},
		SubgraphRatePerSecond: parseFloatEnv("SUBGRAPH_RATE_PER_SECOND", floatOr(cf.SubgraphRatePerSecond, api.DefaultSubgraphRatePerSecond)),
		ReceiptPollInterval:   durationOr(cf.ReceiptPollInterval.Duration, 2*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeDemo(d DemoConfig, cf *ConfigFile) DemoConfig {
	fd := cf.Demo
	d.SlippagePercent = floatOr(fd.SlippagePercent, d.SlippagePercent)
	if fd.LimitOrder != nil {
		d.LimitOrder = mergeOrder(d.LimitOrder, *fd.LimitOrder)
	}
	if fd.MarketOrder != nil {
		d.MarketOrder = mergeOrder(d.MarketOrder, *fd.MarketOrder)
	}
	d.TakeProfitMultiplier = floatOr(fd.TakeProfitMultiplier, d.TakeProfitMultiplier)
	d.StopLossMultiplier = floatOr(fd.StopLossMultiplier, d.StopLossMultiplier)
	d.SettleDelay = durationOr(fd.SettleDelay.Duration, d.SettleDelay)
	d.MonitorIterations = intOr(fd.MonitorIterations, d.MonitorIterations)
	d.MonitorInterval = durationOr(fd.MonitorInterval.Duration, d.MonitorInterval)
	return d
}

func mergeOrder(base, override OrderConfig) OrderConfig {
	base.Collateral = floatOr(override.Collateral, base.Collateral)
	base.Leverage = floatOr(override.Leverage, base.Leverage)
	base.Direction = firstNonEmpty(override.Direction, base.Direction)
	base.PriceMultiplier = floatOr(override.PriceMultiplier, base.PriceMultiplier)
	return base
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return ErrMissingRPCURL
	}
	if err := c.Network.Contracts.Validate(); err != nil {
		return err
	}
	if c.Network.SubgraphURL == "" {
		return fmt.Errorf("subgraph url is empty")
	}
	if c.Network.PriceURL == "" {
		return fmt.Errorf("price url is empty")
	}

	switch c.Journal.Backend {
	case JournalBackendBadger, JournalBackendJSON:
	default:
		return fmt.Errorf("journal.backend %q not supported (use badger or json)", c.Journal.Backend)
	}

	d := c.Demo
	for name, o := range map[string]OrderConfig{"limit_order": d.LimitOrder, "market_order": d.MarketOrder} {
		if o.Collateral <= 0 || o.Leverage <= 0 || o.PriceMultiplier <= 0 {
			return fmt.Errorf("demo.%s: collateral, leverage and price_multiplier must be positive", name)
		}
		if _, err := types.ParseDirection(o.Direction); err != nil {
			return fmt.Errorf("demo.%s: %w", name, err)
		}
	}
	if d.SlippagePercent <= 0 {
		return fmt.Errorf("demo.slippage_percent must be positive")
	}
	if d.MonitorIterations < 0 {
		return fmt.Errorf("demo.monitor_iterations must not be negative")
	}
	return nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cf ConfigFile
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (use .yaml, .yml or .json)", ext)
	}
	return &cf, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func intOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func floatOr(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func durationOr(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
