// Package contract provides the ABI binding for the PromotionManager contract.
// The contract is treated as a black-box ledger: reads go through eth_call,
// writes are simulated first and then sent as legacy EIP-155 transactions.
package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/blockchain"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
)

// PromotionManager contract errors
var (
	ErrSimulationFailed = errors.New("contract simulation failed")
	ErrEmptyBatch       = errors.New("empty intent batch")
	ErrInvalidCastHash  = errors.New("invalid cast hash")
)

// gasBufferPercent is added on top of the node's gas estimate.
const gasBufferPercent = 20

// PromotionManagerABI is the external interface of the PromotionManager contract:
//
//	function getPromotion(uint256 promotionId) external view returns (Promotion);
//	function getPromoterDetails(uint256 promotionId, address wallet) external view returns (PromoterDetails);
//	function getPromotionPromoters(uint256 promotionId) external view returns (address[]);
//	function getNextPromotionId() external view returns (uint256);
//	function getIsIntentProcessed(uint256 promotionId, bytes32 intentHash) external view returns (bool);
//	function batchProcessIntents(ProcessIntent[] calldata intents) external;
//	function endPromotion(uint256 promotionId) external;
//	function addPromotionBudget(uint256 promotionId, uint256 amount) external;
const PromotionManagerABI = `[
	{
		"type": "function",
		"name": "getPromotion",
		"inputs": [{"name": "promotionId", "type": "uint256"}],
		"outputs": [
			{
				"name": "promotion",
				"type": "tuple",
				"components": [
					{"name": "id", "type": "uint256"},
					{"name": "creator", "type": "address"},
					{"name": "creatorFid", "type": "uint256"},
					{"name": "castUrl", "type": "string"},
					{"name": "totalBudget", "type": "uint256"},
					{"name": "remainingBudget", "type": "uint256"},
					{"name": "committedBudget", "type": "uint256"},
					{"name": "baseRate", "type": "uint256"},
					{"name": "state", "type": "uint8"},
					{"name": "minNeynarScore", "type": "uint256"},
					{"name": "proUserOnly", "type": "bool"},
					{"name": "createdTime", "type": "uint256"}
				]
			}
		],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "getPromoterDetails",
		"inputs": [
			{"name": "promotionId", "type": "uint256"},
			{"name": "wallet", "type": "address"}
		],
		"outputs": [
			{
				"name": "details",
				"type": "tuple",
				"components": [
					{"name": "fid", "type": "uint256"},
					{"name": "state", "type": "uint8"},
					{"name": "castHash", "type": "bytes32"}
				]
			}
		],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "getPromotionPromoters",
		"inputs": [{"name": "promotionId", "type": "uint256"}],
		"outputs": [{"name": "promoters", "type": "address[]"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "getNextPromotionId",
		"inputs": [],
		"outputs": [{"name": "nextId", "type": "uint256"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "getIsIntentProcessed",
		"inputs": [
			{"name": "promotionId", "type": "uint256"},
			{"name": "intentHash", "type": "bytes32"}
		],
		"outputs": [{"name": "processed", "type": "bool"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "batchProcessIntents",
		"inputs": [
			{
				"name": "intents",
				"type": "tuple[]",
				"components": [
					{"name": "promotionId", "type": "uint256"},
					{"name": "intentHash", "type": "bytes32"},
					{"name": "wallet", "type": "address"},
					{"name": "castHash", "type": "bytes32"},
					{"name": "postTime", "type": "uint256"}
				]
			}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "endPromotion",
		"inputs": [{"name": "promotionId", "type": "uint256"}],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "addPromotionBudget",
		"inputs": [
			{"name": "promotionId", "type": "uint256"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "event",
		"name": "PromotionCreated",
		"inputs": [
			{"name": "promotionId", "type": "uint256", "indexed": true},
			{"name": "creator", "type": "address", "indexed": true},
			{"name": "totalBudget", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "PromotionEnded",
		"inputs": [
			{"name": "promotionId", "type": "uint256", "indexed": true}
		]
	},
	{
		"type": "event",
		"name": "IntentSubmitted",
		"inputs": [
			{"name": "promotionId", "type": "uint256", "indexed": true},
			{"name": "intentHash", "type": "bytes32", "indexed": true},
			{"name": "wallet", "type": "address", "indexed": true},
			{"name": "fid", "type": "uint256", "indexed": false},
			{"name": "fee", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "IntentProcessed",
		"inputs": [
			{"name": "promotionId", "type": "uint256", "indexed": true},
			{"name": "intentHash", "type": "bytes32", "indexed": true},
			{"name": "wallet", "type": "address", "indexed": true},
			{"name": "castHash", "type": "bytes32", "indexed": false}
		]
	}
]`

// Promotion is the on-chain promotion tuple. Field order and names follow the ABI.
type Promotion struct {
	Id              *big.Int
	Creator         common.Address
	CreatorFid      *big.Int
	CastUrl         string
	TotalBudget     *big.Int
	RemainingBudget *big.Int
	CommittedBudget *big.Int
	BaseRate        *big.Int
	State           uint8
	MinNeynarScore  *big.Int
	ProUserOnly     bool
	CreatedTime     *big.Int
}

// ToModel converts the tuple into the cached snapshot shape.
// minNeynarScore is stored on-chain in hundredths.
func (p *Promotion) ToModel() *model.Promotion {
	minScore := 0.0
	if p.MinNeynarScore != nil {
		minScore = float64(p.MinNeynarScore.Int64()) / 100
	}
	return &model.Promotion{
		ID:              bigToUint64(p.Id),
		Creator:         p.Creator.Hex(),
		CreatorFID:      bigToUint64(p.CreatorFid),
		CastURL:         p.CastUrl,
		TotalBudget:     model.NewUint256(p.TotalBudget),
		RemainingBudget: model.NewUint256(p.RemainingBudget),
		CommittedBudget: model.NewUint256(p.CommittedBudget),
		BaseRate:        model.NewUint256(p.BaseRate),
		State:           model.PromotionState(p.State),
		MinScore:        minScore,
		ProUserOnly:     p.ProUserOnly,
		CreatedTime:     int64(bigToUint64(p.CreatedTime)),
	}
}

// PromoterDetails is the per (promotion, wallet) registration record.
type PromoterDetails struct {
	Fid      *big.Int
	State    uint8
	CastHash [32]byte
}

// IsRegistered reports whether the record carries a nonzero fid.
func (d *PromoterDetails) IsRegistered() bool {
	return d != nil && d.Fid != nil && d.Fid.Sign() > 0
}

// ProcessIntent is one element of the batchProcessIntents argument.
// A zero CastHash with PostTime 0 rejects the intent.
type ProcessIntent struct {
	PromotionId *big.Int
	IntentHash  [32]byte
	Wallet      common.Address
	CastHash    [32]byte
	PostTime    *big.Int
}

// PromoterQuery identifies one getPromoterDetails call in a multicall.
type PromoterQuery struct {
	PromotionID *big.Int
	Wallet      common.Address
}

// Ledger is the read/write surface the rest of the service consumes.
type Ledger interface {
	GetPromotion(ctx context.Context, promotionID *big.Int) (*Promotion, error)
	GetPromoterDetails(ctx context.Context, promotionID *big.Int, wallet common.Address) (*PromoterDetails, error)
	GetPromoterDetailsMulti(ctx context.Context, queries []PromoterQuery) ([]*PromoterDetails, error)
	GetNextPromotionID(ctx context.Context) (*big.Int, error)
	GetIsIntentProcessed(ctx context.Context, promotionID *big.Int, intentHash [32]byte) (bool, error)
	SimulateBatchProcessIntents(ctx context.Context, intents []ProcessIntent) error
	BatchProcessIntents(ctx context.Context, intents []ProcessIntent) (common.Hash, error)
	WaitForTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Backend is the chain client surface used by the binding.
type Backend interface {
	Address() common.Address
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BatchCall(ctx context.Context, calls []blockchain.CallRequest) ([]blockchain.CallResult, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	SignTransaction(tx *types.Transaction) (*types.Transaction, error)
	WaitForReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error)
}

// PromotionManager provides methods to interact with the PromotionManager contract.
type PromotionManager struct {
	address        common.Address
	abi            abi.ABI
	backend        Backend
	receiptTimeout time.Duration
}

var _ Ledger = (*PromotionManager)(nil)

// ParseABI parses PromotionManagerABI.
func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(PromotionManagerABI))
}

// NewPromotionManager creates a new PromotionManager binding.
func NewPromotionManager(address common.Address, backend Backend, receiptTimeout time.Duration) (*PromotionManager, error) {
	parsed, err := ParseABI()
	if err != nil {
		return nil, err
	}
	if receiptTimeout <= 0 {
		receiptTimeout = 2 * time.Minute
	}
	return &PromotionManager{
		address:        address,
		abi:            parsed,
		backend:        backend,
		receiptTimeout: receiptTimeout,
	}, nil
}

// Address returns the contract address.
func (c *PromotionManager) Address() common.Address {
	return c.address
}

// ABI returns the contract ABI.
func (c *PromotionManager) ABI() abi.ABI {
	return c.abi
}

// Read packs method(args), performs an eth_call and unpacks the outputs.
func (c *PromotionManager) Read(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return c.abi.Unpack(method, result)
}

// Simulate runs method(args) as an eth_call from the admin account.
func (c *PromotionManager) Simulate(ctx context.Context, method string, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return err
	}

	msg := ethereum.CallMsg{From: c.backend.Address(), To: &c.address, Data: data}
	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSimulationFailed, method, err)
	}
	return nil
}

// Write estimates gas, signs and sends method(args). It does not wait for inclusion.
func (c *PromotionManager) Write(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, err
	}

	from := c.backend.Address()
	msg := ethereum.CallMsg{From: from, To: &c.address, Data: data}

	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas %s: %w", method, err)
	}
	gas += gas * gasBufferPercent / 100

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, c.address, big.NewInt(0), gas, gasPrice, data)
	signed, err := c.backend.SignTransaction(tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign %s: %w", method, err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", method, err)
	}
	return signed.Hash(), nil
}

// GetPromotion queries a promotion tuple.
func (c *PromotionManager) GetPromotion(ctx context.Context, promotionID *big.Int) (*Promotion, error) {
	out, err := c.Read(ctx, "getPromotion", promotionID)
	if err != nil {
		return nil, err
	}
	p := *abi.ConvertType(out[0], new(Promotion)).(*Promotion)
	return &p, nil
}

// GetPromoterDetails queries the promoter registration record.
func (c *PromotionManager) GetPromoterDetails(ctx context.Context, promotionID *big.Int, wallet common.Address) (*PromoterDetails, error) {
	out, err := c.Read(ctx, "getPromoterDetails", promotionID, wallet)
	if err != nil {
		return nil, err
	}
	d := *abi.ConvertType(out[0], new(PromoterDetails)).(*PromoterDetails)
	return &d, nil
}

// GetPromoterDetailsMulti reads many promoter records in one batched request.
// Any failed item fails the whole call.
func (c *PromotionManager) GetPromoterDetailsMulti(ctx context.Context, queries []PromoterQuery) ([]*PromoterDetails, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	calls := make([]blockchain.CallRequest, len(queries))
	for i, q := range queries {
		data, err := c.abi.Pack("getPromoterDetails", q.PromotionID, q.Wallet)
		if err != nil {
			return nil, err
		}
		calls[i] = blockchain.CallRequest{To: c.address, Data: data}
	}

	results, err := c.backend.BatchCall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("multicall getPromoterDetails: %w", err)
	}

	details := make([]*PromoterDetails, len(results))
	for i, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("getPromoterDetails(%s, %s): %w", queries[i].PromotionID, queries[i].Wallet.Hex(), r.Err)
		}
		out, err := c.abi.Unpack("getPromoterDetails", r.Data)
		if err != nil {
			return nil, err
		}
		d := *abi.ConvertType(out[0], new(PromoterDetails)).(*PromoterDetails)
		details[i] = &d
	}
	return details, nil
}

// GetNextPromotionID returns the id the next created promotion will get.
// Valid ids are [1, next).
func (c *PromotionManager) GetNextPromotionID(ctx context.Context) (*big.Int, error) {
	out, err := c.Read(ctx, "getNextPromotionId")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// GetIsIntentProcessed reports whether the ledger already settled the intent.
func (c *PromotionManager) GetIsIntentProcessed(ctx context.Context, promotionID *big.Int, intentHash [32]byte) (bool, error) {
	out, err := c.Read(ctx, "getIsIntentProcessed", promotionID, intentHash)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// SimulateBatchProcessIntents dry-runs batchProcessIntents.
func (c *PromotionManager) SimulateBatchProcessIntents(ctx context.Context, intents []ProcessIntent) error {
	if len(intents) == 0 {
		return ErrEmptyBatch
	}
	return c.Simulate(ctx, "batchProcessIntents", intents)
}

// BatchProcessIntents sends batchProcessIntents.
func (c *PromotionManager) BatchProcessIntents(ctx context.Context, intents []ProcessIntent) (common.Hash, error) {
	if len(intents) == 0 {
		return common.Hash{}, ErrEmptyBatch
	}
	return c.Write(ctx, "batchProcessIntents", intents)
}

// WaitForTransactionReceipt blocks until the tx is mined or the receipt timeout elapses.
func (c *PromotionManager) WaitForTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.backend.WaitForReceipt(ctx, txHash, c.receiptTimeout)
}

// PadCastHash left-pads a hex cast hash (20 bytes on Farcaster) to bytes32.
func PadCastHash(castHash string) ([32]byte, error) {
	raw, err := hexutil.Decode(castHash)
	if err != nil || len(raw) == 0 || len(raw) > 32 {
		return [32]byte{}, fmt.Errorf("%w: %q", ErrInvalidCastHash, castHash)
	}
	return common.BytesToHash(raw), nil
}

func bigToUint64(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
