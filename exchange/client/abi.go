package client

// TradingABI covers the trading contract entry points used by the client.
const TradingABI = `[
	{
		"inputs": [
			{
				"components": [
					{"name": "collateral", "type": "uint256"},
					{"name": "openPrice", "type": "uint192"},
					{"name": "tp", "type": "uint192"},
					{"name": "sl", "type": "uint192"},
					{"name": "trader", "type": "address"},
					{"name": "leverage", "type": "uint32"},
					{"name": "pairIndex", "type": "uint16"},
					{"name": "index", "type": "uint8"},
					{"name": "buy", "type": "bool"}
				],
				"name": "t",
				"type": "tuple"
			},
			{"name": "orderType", "type": "uint8"},
			{"name": "slippageP", "type": "uint256"}
		],
		"name": "openTrade",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "pairIndex", "type": "uint16"},
			{"name": "index", "type": "uint8"}
		],
		"name": "cancelOpenLimitOrder",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "pairIndex", "type": "uint16"},
			{"name": "index", "type": "uint8"},
			{"name": "newTp", "type": "uint192"}
		],
		"name": "updateTp",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "pairIndex", "type": "uint16"},
			{"name": "index", "type": "uint8"},
			{"name": "newSl", "type": "uint192"}
		],
		"name": "updateSl",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "pairIndex", "type": "uint16"},
			{"name": "index", "type": "uint8"},
			{"name": "closePercentage", "type": "uint16"}
		],
		"name": "closeTradeMarket",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// ERC20ABI ERC20 标准 ABI（授权检查与授权）
const ERC20ABI = `[
	{
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`
