package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/cache"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/codec"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/contract"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/social"
)

const (
	testAdminKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testWallet   = "0x00000000000000000000000000000000000000aa"
)

// fakeUsers 社交接口用户数据
type fakeUsers struct {
	mu    sync.Mutex
	users map[uint64]*social.User
	casts []social.Cast
	calls int
	err   error
}

func (f *fakeUsers) GetUser(_ context.Context, fid uint64) (*social.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[fid]; ok {
		return u, nil
	}
	return &social.User{FID: fid}, nil
}

func (f *fakeUsers) GetUserCasts(context.Context, uint64, int) ([]social.Cast, error) {
	return f.casts, nil
}

// fakeCasts 按 hash 返回内容
type fakeCasts struct {
	mu    sync.Mutex
	casts map[string]*social.Cast
	err   error
	calls int
}

func (f *fakeCasts) GetCastByHash(_ context.Context, hash string) (*social.Cast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.casts[hash]; ok {
		return c, nil
	}
	return nil, social.ErrCastNotFound
}

func newCast(hash, text string, fid uint64) *social.Cast {
	c := &social.Cast{Hash: hash, Text: text, Timestamp: time.Unix(1700000500, 0)}
	c.Author.FID = fid
	return c
}

type testDeps struct {
	mr         *miniredis.Miniredis
	client     *cache.Client
	promotions *cache.PromotionStore
	intents    *cache.IntentStore
	drafts     *cache.DraftStore
	scores     *cache.ScoreStore
	signer     *codec.Signer
	users      *fakeUsers
	casts      *fakeCasts
}

// setupDeps miniredis 与内存外部依赖
func setupDeps(t *testing.T) *testDeps {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cipher, err := cache.NewXORCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	c := cache.NewClient(rdb, cipher)

	signer, err := codec.NewSigner(testAdminKey)
	require.NoError(t, err)

	return &testDeps{
		mr:         mr,
		client:     c,
		promotions: cache.NewPromotionStore(c),
		intents:    cache.NewIntentStore(c),
		drafts:     cache.NewDraftStore(c),
		scores:     cache.NewScoreStore(c, 0),
		signer:     signer,
		users:      &fakeUsers{users: map[uint64]*social.User{}},
		casts:      &fakeCasts{casts: map[string]*social.Cast{}},
	}
}

func (d *testDeps) savePromotion(t *testing.T, p *model.Promotion) {
	require.NoError(t, d.promotions.Save(context.Background(), p))
}

func activePromotion(id uint64) *model.Promotion {
	return &model.Promotion{
		ID:              id,
		Creator:         "0x00000000000000000000000000000000000000bb",
		CreatorFID:      99,
		CastURL:         "https://warpcast.com/creator/0xcafe",
		TotalBudget:     model.Uint256FromUint64(100_000_000),
		RemainingBudget: model.Uint256FromUint64(100_000_000),
		BaseRate:        model.Uint256FromUint64(1_000_000),
		State:           model.PromotionStateActive,
	}
}

// fakeLedger 结算链上状态
type fakeLedger struct {
	mu          sync.Mutex
	next        int64
	promoters   map[common.Address]*contract.PromoterDetails
	processed   map[common.Hash]bool
	simulateErr error
	sendErr     error
	receiptErr  error
	reverted    bool
	submitted   [][]contract.ProcessIntent
	readErr     error
	multiCalls  int
}

func newFakeLedger(next int64) *fakeLedger {
	return &fakeLedger{
		next:      next,
		promoters: map[common.Address]*contract.PromoterDetails{},
		processed: map[common.Hash]bool{},
	}
}

func (f *fakeLedger) GetNextPromotionID(context.Context) (*big.Int, error) {
	return big.NewInt(f.next), nil
}

func (f *fakeLedger) GetPromoterDetailsMulti(_ context.Context, queries []contract.PromoterQuery) ([]*contract.PromoterDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	f.multiCalls++
	out := make([]*contract.PromoterDetails, len(queries))
	for i, q := range queries {
		if d, ok := f.promoters[q.Wallet]; ok {
			out[i] = d
			continue
		}
		out[i] = &contract.PromoterDetails{Fid: big.NewInt(42)}
	}
	return out, nil
}

func (f *fakeLedger) GetIsIntentProcessed(_ context.Context, _ *big.Int, intentHash [32]byte) (bool, error) {
	return f.processed[common.Hash(intentHash)], nil
}

func (f *fakeLedger) SimulateBatchProcessIntents(_ context.Context, intents []contract.ProcessIntent) error {
	return f.simulateErr
}

func (f *fakeLedger) BatchProcessIntents(_ context.Context, intents []contract.ProcessIntent) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.submitted = append(f.submitted, intents)
	return common.HexToHash("0xbeef"), nil
}

func (f *fakeLedger) WaitForTransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	status := types.ReceiptStatusSuccessful
	if f.reverted {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{TxHash: txHash, Status: status, BlockNumber: big.NewInt(123)}, nil
}

var errBoom = errors.New("boom")
