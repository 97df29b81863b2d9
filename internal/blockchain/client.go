// Package blockchain 多 RPC 故障切换的链客户端
package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

var (
	ErrNoHealthyRPC     = errors.New("no healthy RPC endpoint available")
	ErrNoPrivateKey     = errors.New("private key not configured")
	ErrTxNotFound       = errors.New("transaction not found")
	ErrTxFailed         = errors.New("transaction failed")
	ErrReceiptTimeout   = errors.New("timed out waiting for receipt")
	ErrCallTimeout      = errors.New("rpc call timed out")
	errEndpointRequired = errors.New("at least one RPC URL is required")
)

// RPCEndpoint RPC 端点信息
type RPCEndpoint struct {
	URL        string
	IsHealthy  bool
	ErrorCount int
	LastCheck  time.Time
}

// CallRequest 批量 eth_call 单项
type CallRequest struct {
	To   common.Address
	Data []byte
}

// CallResult 批量 eth_call 结果，单项失败不影响其他项
type CallResult struct {
	Data []byte
	Err  error
}

// Client 区块链客户端
type Client struct {
	chainID    int64
	privateKey *ecdsa.PrivateKey
	address    common.Address

	endpoints  []*RPCEndpoint
	currentIdx int
	mu         sync.RWMutex

	client *ethclient.Client

	maxRetries      int
	retryInterval   time.Duration
	callTimeout     time.Duration
	healthCheckFreq time.Duration
	pollInterval    time.Duration
}

// ClientConfig 客户端配置
type ClientConfig struct {
	ChainID         int64
	PrivateKey      string
	RPCURLs         []string
	MaxRetries      int
	RetryInterval   time.Duration
	CallTimeout     time.Duration // 单次 RPC 尝试的超时
	HealthCheckFreq time.Duration
	PollInterval    time.Duration
}

// NewClient 创建区块链客户端
func NewClient(ctx context.Context, cfg *ClientConfig) (*Client, error) {
	if len(cfg.RPCURLs) == 0 {
		return nil, errEndpointRequired
	}

	c := &Client{
		chainID:         cfg.ChainID,
		maxRetries:      cfg.MaxRetries,
		retryInterval:   cfg.RetryInterval,
		callTimeout:     cfg.CallTimeout,
		healthCheckFreq: cfg.HealthCheckFreq,
		pollInterval:    cfg.PollInterval,
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, err
		}
		c.privateKey = key
		c.address = crypto.PubkeyToAddress(key.PublicKey)
	}

	c.endpoints = make([]*RPCEndpoint, len(cfg.RPCURLs))
	for i, url := range cfg.RPCURLs {
		c.endpoints[i] = &RPCEndpoint{URL: url, IsHealthy: true}
	}

	if c.maxRetries == 0 {
		c.maxRetries = 3
	}
	if c.retryInterval == 0 {
		c.retryInterval = time.Second
	}
	if c.callTimeout == 0 {
		c.callTimeout = 10 * time.Second
	}
	if c.healthCheckFreq == 0 {
		c.healthCheckFreq = 30 * time.Second
	}
	if c.pollInterval == 0 {
		c.pollInterval = 2 * time.Second
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// connect 连接到可用的 RPC
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.endpoints {
		idx := (c.currentIdx + i) % len(c.endpoints)
		ep := c.endpoints[idx]

		if !ep.IsHealthy && time.Since(ep.LastCheck) < c.healthCheckFreq {
			continue
		}

		client, err := ethclient.DialContext(ctx, ep.URL)
		if err == nil {
			_, err = client.ChainID(ctx)
			if err != nil {
				client.Close()
			}
		}
		if err != nil {
			ep.IsHealthy = false
			ep.ErrorCount++
			ep.LastCheck = time.Now()
			logger.Warn("rpc endpoint unavailable", "url", ep.URL, "error", err)
			continue
		}

		if c.client != nil {
			c.client.Close()
		}
		c.client = client
		c.currentIdx = idx
		ep.IsHealthy = true
		ep.ErrorCount = 0
		ep.LastCheck = time.Now()
		return nil
	}

	return ErrNoHealthyRPC
}

func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client != nil {
		return client, nil
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client, nil
}

// isRetryable 节点返回的 JSON-RPC 错误 (如 revert) 换节点也不会成功
func isRetryable(err error) bool {
	if errors.Is(err, ErrTxNotFound) {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// withRetry 带重试与端点切换的操作
// 每次尝试使用独立的 callTimeout，超时视为端点故障并切换
func (c *Client) withRetry(ctx context.Context, fn func(context.Context, *ethclient.Client) error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		lastErr = c.attempt(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if !errors.Is(lastErr, ErrCallTimeout) && !isRetryable(lastErr) {
			return lastErr
		}

		// 标记当前端点为不健康并切换
		c.mu.Lock()
		c.endpoints[c.currentIdx].IsHealthy = false
		c.endpoints[c.currentIdx].ErrorCount++
		c.endpoints[c.currentIdx].LastCheck = time.Now()
		c.mu.Unlock()
		reconnectCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		_ = c.connect(reconnectCtx)
		cancel()

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryInterval):
			}
		}
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, fn func(context.Context, *ethclient.Client) error) error {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	client, err := c.getClient(callCtx)
	if err == nil {
		err = fn(callCtx, client)
	}
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrCallTimeout, c.callTimeout, err)
	}
	return err
}

// Address 管理员地址
func (c *Client) Address() common.Address {
	return c.address
}

// ChainID 链 ID
func (c *Client) ChainID() int64 {
	return c.chainID
}

// BlockNumber 最新区块号
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.withRetry(ctx, func(ctx context.Context, client *ethclient.Client) error {
		var err error
		n, err = client.BlockNumber(ctx)
		return err
	})
	return n, err
}

// TransactionReceipt 交易回执
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.withRetry(ctx, func(ctx context.Context, client *ethclient.Client) error {
		var err error
		receipt, err = client.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			return ErrTxNotFound
		}
		return err
	})
	return receipt, err
}

// PendingNonceAt 待处理 nonce
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.withRetry(ctx, func(ctx context.Context, client *ethclient.Client) error {
		var err error
		nonce, err = client.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

// SuggestGasPrice 建议 gas 价格
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.withRetry(ctx, func(ctx context.Context, client *ethclient.Client) error {
		var err error
		price, err = client.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

// EstimateGas 估算 gas
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.withRetry(ctx, func(ctx context.Context, client *ethclient.Client) error {
		var err error
		gas, err = client.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// SendTransaction 发送交易
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.withRetry(ctx, func(ctx context.Context, client *ethclient.Client) error {
		return client.SendTransaction(ctx, tx)
	})
}

// CallContract 调用合约
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var result []byte
	err := c.withRetry(ctx, func(ctx context.Context, client *ethclient.Client) error {
		var err error
		result, err = client.CallContract(ctx, msg, blockNumber)
		return err
	})
	return result, err
}

// BatchCall 一次 JSON-RPC 批量请求多个 eth_call (multicall)
func (c *Client) BatchCall(ctx context.Context, calls []CallRequest) ([]CallResult, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]hexutil.Bytes, len(calls))
	elems := make([]rpc.BatchElem, len(calls))
	for i, call := range calls {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				map[string]interface{}{
					"to":   call.To,
					"data": hexutil.Bytes(call.Data),
				},
				"latest",
			},
			Result: &results[i],
		}
	}

	err := c.withRetry(ctx, func(ctx context.Context, client *ethclient.Client) error {
		return client.Client().BatchCallContext(ctx, elems)
	})
	if err != nil {
		return nil, err
	}

	out := make([]CallResult, len(calls))
	for i := range elems {
		out[i] = CallResult{Data: results[i], Err: elems[i].Error}
	}
	return out, nil
}

// WaitForReceipt 轮询回执直到上链，status=0 返回 ErrTxFailed
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, ErrTxFailed
			}
			return receipt, nil
		}
		if !errors.Is(err, ErrTxNotFound) {
			logger.Warn("receipt poll failed", "tx_hash", txHash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrReceiptTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SignTransaction EIP-155 签名
func (c *Client) SignTransaction(tx *types.Transaction) (*types.Transaction, error) {
	if c.privateKey == nil {
		return nil, ErrNoPrivateKey
	}
	signer := types.NewEIP155Signer(big.NewInt(c.chainID))
	return types.SignTx(tx, signer, c.privateKey)
}

// Close 关闭客户端
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.BlockNumber(ctx)
	return err
}

// GetHealthyEndpoints 健康的端点
func (c *Client) GetHealthyEndpoints() []*RPCEndpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var healthy []*RPCEndpoint
	for _, ep := range c.endpoints {
		if ep.IsHealthy {
			healthy = append(healthy, ep)
		}
	}
	return healthy
}
