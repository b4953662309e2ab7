package chain

// 合约 ABI 定义
// 只声明客户端实际调用的函数，与链上部署的合约签名保持一致。

// PerpsABI 永续仓位合约 ABI
const PerpsABI = `[
	{
		"inputs": [
			{"name": "asset", "type": "string"},
			{"name": "leverage", "type": "uint256"},
			{"name": "isLong", "type": "bool"},
			{"name": "collateral", "type": "uint256"},
			{"name": "entryPrice", "type": "uint256"}
		],
		"name": "openPosition",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "positionId", "type": "uint256"},
			{"name": "closePrice", "type": "uint256"}
		],
		"name": "closePosition",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "user", "type": "address"}],
		"name": "getUserPositions",
		"outputs": [{"name": "", "type": "uint256[]"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "", "type": "uint256"}],
		"name": "positions",
		"outputs": [
			{"name": "trader", "type": "address"},
			{"name": "asset", "type": "string"},
			{"name": "collateral", "type": "uint256"},
			{"name": "entryPrice", "type": "uint256"},
			{"name": "leverage", "type": "uint256"},
			{"name": "size", "type": "uint256"},
			{"name": "isLong", "type": "bool"},
			{"name": "timestamp", "type": "uint256"},
			{"name": "isActive", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// PoolABI 流动性池合约 ABI
const PoolABI = `[
	{
		"inputs": [{"name": "amount", "type": "uint256"}],
		"name": "deposit",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getPoolStats",
		"outputs": [
			{"name": "totalLiquidity", "type": "uint256"},
			{"name": "availableLiquidity", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "user", "type": "address"}],
		"name": "getUserPoolShare",
		"outputs": [
			{"name": "shares", "type": "uint256"},
			{"name": "value", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// TokenABI 测试 USDT 合约 ABI（ERC20 + faucet）
const TokenABI = `[
	{
		"inputs": [],
		"name": "faucet",
		"outputs": [],
		"stateMutability": "nonpayable",
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
	},
	{
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`
