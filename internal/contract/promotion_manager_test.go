package contract

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/blockchain"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
)

var testContract = common.HexToAddress("0x00000000000000000000000000000000000000c0")

// fakeBackend 按方法选择器返回预置结果
type fakeBackend struct {
	t       *testing.T
	abi     abi.ABI
	outputs map[string][]interface{}
	revert  map[string]bool
	sent    []*types.Transaction
	key     []byte
}

func newFakeBackend(t *testing.T) *fakeBackend {
	parsed, err := ParseABI()
	require.NoError(t, err)
	return &fakeBackend{
		t:       t,
		abi:     parsed,
		outputs: map[string][]interface{}{},
		revert:  map[string]bool{},
	}
}

func (f *fakeBackend) Address() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000ad")
}

func (f *fakeBackend) answer(data []byte) ([]byte, error) {
	method, err := f.abi.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	if f.revert[method.Name] {
		return nil, errors.New("execution reverted")
	}
	return method.Outputs.Pack(f.outputs[method.Name]...)
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return f.answer(msg.Data)
}

func (f *fakeBackend) BatchCall(_ context.Context, calls []blockchain.CallRequest) ([]blockchain.CallResult, error) {
	out := make([]blockchain.CallResult, len(calls))
	for i, c := range calls {
		data, err := f.answer(c.Data)
		out[i] = blockchain.CallResult{Data: data, Err: err}
	}
	return out, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 9, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) SignTransaction(tx *types.Transaction) (*types.Transaction, error) {
	key, err := crypto.GenerateKey()
	require.NoError(f.t, err)
	return types.SignTx(tx, types.NewEIP155Signer(big.NewInt(8453)), key)
}

func (f *fakeBackend) WaitForReceipt(context.Context, common.Hash, time.Duration) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

type promotionOutput struct {
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

func TestPromotionManager_GetPromotion(t *testing.T) {
	backend := newFakeBackend(t)
	backend.outputs["getPromotion"] = []interface{}{promotionOutput{
		Id:              big.NewInt(3),
		Creator:         common.HexToAddress("0x00000000000000000000000000000000000000cc"),
		CreatorFid:      big.NewInt(42),
		CastUrl:         "https://warpcast.com/alice/0x1234",
		TotalBudget:     big.NewInt(1000),
		RemainingBudget: big.NewInt(800),
		CommittedBudget: big.NewInt(50),
		BaseRate:        big.NewInt(10),
		State:           1,
		MinNeynarScore:  big.NewInt(55),
		ProUserOnly:     true,
		CreatedTime:     big.NewInt(1_700_000_000),
	}}

	pm, err := NewPromotionManager(testContract, backend, 0)
	require.NoError(t, err)

	p, err := pm.GetPromotion(context.Background(), big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "https://warpcast.com/alice/0x1234", p.CastUrl)

	m := p.ToModel()
	assert.Equal(t, uint64(3), m.ID)
	assert.Equal(t, uint64(42), m.CreatorFID)
	assert.Equal(t, "800", m.RemainingBudget.String())
	assert.Equal(t, model.PromotionStateCompleted, m.State)
	assert.InDelta(t, 0.55, m.MinScore, 1e-9)
	assert.True(t, m.ProUserOnly)
}

func TestPromotionManager_Reads(t *testing.T) {
	backend := newFakeBackend(t)
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	backend.outputs["getNextPromotionId"] = []interface{}{big.NewInt(5)}
	backend.outputs["getIsIntentProcessed"] = []interface{}{true}
	backend.outputs["getPromoterDetails"] = []interface{}{PromoterDetails{
		Fid:      big.NewInt(77),
		State:    0,
		CastHash: [32]byte{31: 0x01},
	}}

	pm, err := NewPromotionManager(testContract, backend, 0)
	require.NoError(t, err)
	ctx := context.Background()

	next, err := pm.GetNextPromotionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), next.Int64())

	processed, err := pm.GetIsIntentProcessed(ctx, big.NewInt(1), [32]byte{1})
	require.NoError(t, err)
	assert.True(t, processed)

	details, err := pm.GetPromoterDetails(ctx, big.NewInt(1), wallet)
	require.NoError(t, err)
	assert.True(t, details.IsRegistered())
	assert.Equal(t, int64(77), details.Fid.Int64())

	multi, err := pm.GetPromoterDetailsMulti(ctx, []PromoterQuery{
		{PromotionID: big.NewInt(1), Wallet: wallet},
		{PromotionID: big.NewInt(2), Wallet: wallet},
	})
	require.NoError(t, err)
	require.Len(t, multi, 2)
	assert.Equal(t, int64(77), multi[1].Fid.Int64())
}

func TestPromotionManager_BatchProcessIntents(t *testing.T) {
	backend := newFakeBackend(t)
	pm, err := NewPromotionManager(testContract, backend, 0)
	require.NoError(t, err)
	ctx := context.Background()

	intents := []ProcessIntent{{
		PromotionId: big.NewInt(1),
		IntentHash:  [32]byte{1},
		Wallet:      common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		PostTime:    big.NewInt(0),
	}}

	require.NoError(t, pm.SimulateBatchProcessIntents(ctx, intents))

	txHash, err := pm.BatchProcessIntents(ctx, intents)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, txHash, tx.Hash())
	assert.Equal(t, uint64(9), tx.Nonce())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, testContract, *tx.To())

	// calldata 可按 ABI 还原
	contractABI := pm.ABI()
	method, err := contractABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "batchProcessIntents", method.Name)

	_, err = pm.BatchProcessIntents(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestPromotionManager_SimulateFailure(t *testing.T) {
	backend := newFakeBackend(t)
	backend.revert["batchProcessIntents"] = true

	pm, err := NewPromotionManager(testContract, backend, 0)
	require.NoError(t, err)

	err = pm.SimulateBatchProcessIntents(context.Background(), []ProcessIntent{{
		PromotionId: big.NewInt(1),
		PostTime:    big.NewInt(0),
	}})
	assert.ErrorIs(t, err, ErrSimulationFailed)
	assert.Empty(t, backend.sent)
}

func TestPadCastHash(t *testing.T) {
	padded, err := PadCastHash("0x0102030405060708090a0b0c0d0e0f1011121314")
	require.NoError(t, err)
	assert.Equal(t, byte(0), padded[0])
	assert.Equal(t, byte(0x01), padded[12])
	assert.Equal(t, byte(0x14), padded[31])

	_, err = PadCastHash("nothex")
	assert.ErrorIs(t, err, ErrInvalidCastHash)
	_, err = PadCastHash("0x")
	assert.ErrorIs(t, err, ErrInvalidCastHash)
}
