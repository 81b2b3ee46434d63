package staking

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const contractABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "stakingId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "totalPool", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "interestRate", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "stakingDays", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "minStaking", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "maxStaking", "type": "uint256"}
    ],
    "name": "StakingPoolCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "stakingId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "staker", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "interestRate", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "timeStamp", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "referrer", "type": "address"}
    ],
    "name": "Staked",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "stakingId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "staker", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "stakedAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "interest", "type": "uint256"}
    ],
    "name": "Withdrawn",
    "type": "event"
  },
  {
    "inputs": [],
    "name": "owner",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "stakingPoolCounter",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "spender", "type": "address"},
      {"internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "approve",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "_totalPool", "type": "uint256"},
      {"internalType": "uint256", "name": "_interestRate", "type": "uint256"},
      {"internalType": "uint256", "name": "_stakingDays", "type": "uint256"},
      {"internalType": "uint256", "name": "_minStaking", "type": "uint256"},
      {"internalType": "uint256", "name": "_maxStaking", "type": "uint256"}
    ],
    "name": "createStakingPool",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "_stakingId", "type": "uint256"},
      {"internalType": "uint256", "name": "_amount", "type": "uint256"},
      {"internalType": "address", "name": "_referrer", "type": "address"}
    ],
    "name": "enterStaking",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "_stakingId", "type": "uint256"}],
    "name": "withdrawAmount",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "_stakingId", "type": "uint256"}],
    "name": "getStakingPoolData",
    "outputs": [
      {"internalType": "uint256", "name": "id", "type": "uint256"},
      {"internalType": "uint256", "name": "interestRate", "type": "uint256"},
      {"internalType": "uint256", "name": "totalPool", "type": "uint256"},
      {"internalType": "uint256", "name": "totalCollection", "type": "uint256"},
      {"internalType": "uint256", "name": "stakingDays", "type": "uint256"},
      {"internalType": "uint256", "name": "minStaking", "type": "uint256"},
      {"internalType": "uint256", "name": "maxStaking", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	contractABI     abi.ABI
	contractABIOnce sync.Once
	contractABIErr  error
)

// ContractABI returns the parsed staking contract ABI.
func ContractABI() (abi.ABI, error) {
	contractABIOnce.Do(func() {
		contractABI, contractABIErr = abi.JSON(strings.NewReader(contractABIJSON))
	})
	return contractABI, contractABIErr
}
