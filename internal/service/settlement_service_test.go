package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/contract"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/social"
)

// stubVerifier 按预期文案决定结果
type stubVerifier struct {
	matches map[string]bool
}

func (s *stubVerifier) Verify(_ context.Context, expected, _ string) bool {
	return s.matches[expected]
}

// recordingNotifier 记录通知
type recordingNotifier struct {
	calls [][]uint64
}

func (r *recordingNotifier) SendNotification(_ context.Context, fids []uint64, _ social.Notification) error {
	r.calls = append(r.calls, fids)
	return nil
}

// recordingPublisher 记录发布的批次
type recordingPublisher struct {
	events []*model.SettlementEvent
}

func (r *recordingPublisher) PublishSettlement(_ context.Context, e *model.SettlementEvent) error {
	r.events = append(r.events, e)
	return nil
}

type settlementEnv struct {
	*testDeps
	ledger    *fakeLedger
	verifier  *stubVerifier
	notifier  *recordingNotifier
	publisher *recordingPublisher
	svc       *SettlementService
}

const settleNow = 1700000000

func setupSettlement(t *testing.T) *settlementEnv {
	d := setupDeps(t)
	env := &settlementEnv{
		testDeps:  d,
		ledger:    newFakeLedger(2),
		verifier:  &stubVerifier{matches: map[string]bool{}},
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}
	env.svc = NewSettlementService(env.ledger, d.intents, d.drafts, d.casts, env.verifier,
		env.notifier, env.publisher, &SettlementConfig{AppURL: "https://app.example"})
	env.svc.now = func() time.Time { return time.Unix(settleNow, 0) }
	return env
}

// seed 写入一条意图，castHash 为空表示未提交内容
func (env *settlementEnv) seed(t *testing.T, hash string, fid uint64, expiry int64, castHash string) model.IntentKey {
	e := &model.IntentEntry{
		IntentHash:  common.HexToHash(hash).Hex(),
		PromotionID: 1,
		Wallet:      testWallet,
		FID:         fid,
		Fee:         model.Uint256FromUint64(1_000_000),
		Expiry:      expiry,
		CastHash:    castHash,
		SubmittedAt: settleNow - 100,
	}
	if castHash != "" {
		e.PostTime = settleNow - 50
	}
	_, err := env.intents.Upsert(context.Background(), e)
	require.NoError(t, err)
	return e.Key()
}

func (env *settlementEnv) list(t *testing.T) []*model.IntentEntry {
	entries, err := env.intents.List(context.Background(), 1)
	require.NoError(t, err)
	return entries
}

func TestSettlementService_ExpiredWithoutCastIsRejected(t *testing.T) {
	env := setupSettlement(t)
	env.seed(t, "0x01", 42, settleNow-1, "")

	res, err := env.svc.RunBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Rejected, 1)

	require.Len(t, env.ledger.submitted, 1)
	item := env.ledger.submitted[0][0]
	assert.Equal(t, [32]byte{}, item.CastHash)
	assert.Equal(t, int64(0), item.PostTime.Int64())

	assert.Empty(t, env.list(t))
	assert.Empty(t, env.notifier.calls)
}

func TestSettlementService_PendingLeftAlone(t *testing.T) {
	env := setupSettlement(t)
	env.seed(t, "0x01", 42, settleNow+3600, "")

	res, err := env.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pending)
	assert.Empty(t, env.ledger.submitted)
	assert.Len(t, env.list(t), 1)
	assert.Empty(t, env.publisher.events)
}

func TestSettlementService_AcceptAndReject(t *testing.T) {
	env := setupSettlement(t)
	ctx := context.Background()

	accepted := env.seed(t, "0x01", 42, settleNow+3600, "0xfeed")
	mismatched := env.seed(t, "0x02", 43, settleNow+3600, "0xf00d")
	unreachable := env.seed(t, "0x03", 44, settleNow+3600, "0xdead")

	require.NoError(t, env.drafts.Save(ctx, 1, 42, "launch day", 0))
	require.NoError(t, env.drafts.Save(ctx, 1, 43, "other text", 0))
	require.NoError(t, env.drafts.Save(ctx, 1, 44, "launch day", 0))
	env.verifier.matches["launch day"] = true
	env.casts.casts["0xfeed"] = newCast("0xfeed", "Launch day!", 42)
	env.casts.casts["0xf00d"] = newCast("0xf00d", "unrelated", 43)
	// 0xdead 抓取失败

	res, err := env.svc.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.IntentKey{accepted}, res.Accepted)
	assert.ElementsMatch(t, []model.IntentKey{mismatched, unreachable}, res.Rejected)
	assert.Equal(t, common.HexToHash("0xbeef").Hex(), res.TxHash)
	assert.NotEmpty(t, res.BatchID)

	require.Len(t, env.ledger.submitted, 1)
	batch := env.ledger.submitted[0]
	require.Len(t, batch, 3)
	for _, item := range batch {
		if common.Hash(item.IntentHash).Hex() == accepted.IntentHash {
			padded, _ := contract.PadCastHash("0xfeed")
			assert.Equal(t, padded, item.CastHash)
			assert.Equal(t, int64(settleNow-50), item.PostTime.Int64())
		} else {
			assert.Equal(t, [32]byte{}, item.CastHash)
		}
	}

	entries := env.list(t)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Processed)
	assert.Equal(t, res.TxHash, entries[0].TxHash)

	assert.Equal(t, [][]uint64{{42}}, env.notifier.calls)
	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, res.BatchID, env.publisher.events[0].BatchID)
	assert.Equal(t, uint64(123), env.publisher.events[0].BlockNumber)
}

func TestSettlementService_MissingDraftRejects(t *testing.T) {
	env := setupSettlement(t)
	env.seed(t, "0x01", 42, settleNow+3600, "0xfeed")
	env.casts.casts["0xfeed"] = newCast("0xfeed", "anything", 42)

	res, err := env.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Rejected, 1)
}

func TestSettlementService_ExitedPromoterMarkedDirectly(t *testing.T) {
	env := setupSettlement(t)
	env.ledger.promoters[common.HexToAddress(testWallet)] = &contract.PromoterDetails{
		Fid:   common.Big1,
		State: 1,
	}
	env.seed(t, "0x01", 42, settleNow-1, "")

	res, err := env.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Exited, 1)
	assert.Empty(t, env.ledger.submitted)

	entries := env.list(t)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Processed)
}

func TestSettlementService_AlreadyProcessedOnChain(t *testing.T) {
	t.Run("accepted on chain", func(t *testing.T) {
		env := setupSettlement(t)
		key := env.seed(t, "0x01", 42, settleNow-1, "")
		env.ledger.processed[common.HexToHash(key.IntentHash)] = true
		env.ledger.promoters[common.HexToAddress(testWallet)] = &contract.PromoterDetails{
			Fid:      big.NewInt(42),
			CastHash: common.HexToHash("0xfeed"),
		}

		res, err := env.svc.RunBatch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []model.IntentKey{key}, res.Reconciled)
		assert.Empty(t, res.Exited)
		assert.Empty(t, env.ledger.submitted)

		entries := env.list(t)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Processed)
		assert.Equal(t, common.HexToHash("0xfeed").Hex(), entries[0].CastHash)
		assert.Equal(t, [][]uint64{{42}}, env.notifier.calls)
	})

	t.Run("rejected on chain", func(t *testing.T) {
		env := setupSettlement(t)
		key := env.seed(t, "0x01", 42, settleNow+3600, "0xfeed")
		env.ledger.processed[common.HexToHash(key.IntentHash)] = true

		res, err := env.svc.RunBatch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []model.IntentKey{key}, res.Reconciled)
		assert.Empty(t, env.ledger.submitted)

		// 拒绝的意图不得显示为已支付
		assert.Empty(t, env.list(t))
		assert.Empty(t, env.notifier.calls)
	})
}

func TestSettlementService_PromoterDetailsReadOncePerPromotion(t *testing.T) {
	env := setupSettlement(t)
	env.seed(t, "0x01", 42, settleNow+3600, "")
	env.seed(t, "0x02", 43, settleNow+3600, "")
	env.seed(t, "0x03", 44, settleNow-1, "")

	res, err := env.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, env.ledger.multiCalls)
	assert.Equal(t, 2, res.Pending)
	assert.Len(t, res.Rejected, 1)
}

func TestSettlementService_BatchAtomicity(t *testing.T) {
	tests := []struct {
		name  string
		setup func(l *fakeLedger)
	}{
		{"simulate fails", func(l *fakeLedger) { l.simulateErr = errBoom }},
		{"send fails", func(l *fakeLedger) { l.sendErr = errBoom }},
		{"receipt fails", func(l *fakeLedger) { l.receiptErr = errBoom }},
		{"tx reverted", func(l *fakeLedger) { l.reverted = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupSettlement(t)
			ctx := context.Background()

			env.seed(t, "0x01", 42, settleNow+3600, "0xfeed")
			env.seed(t, "0x02", 43, settleNow-1, "")
			// 链上已处理的意图在失败批次中也不修改
			done := env.seed(t, "0x03", 44, settleNow+3600, "")
			env.ledger.processed[common.HexToHash(done.IntentHash)] = true
			require.NoError(t, env.drafts.Save(ctx, 1, 42, "launch day", 0))
			env.verifier.matches["launch day"] = true
			env.casts.casts["0xfeed"] = newCast("0xfeed", "launch day", 42)
			tt.setup(env.ledger)

			before := env.list(t)

			_, err := env.svc.RunBatch(ctx)
			require.Error(t, err)

			after := env.list(t)
			assert.Equal(t, before, after)
			for _, e := range after {
				assert.False(t, e.Processed)
			}
			assert.Empty(t, env.notifier.calls)
			assert.Empty(t, env.publisher.events)
		})
	}
}

func TestSettlementService_LedgerReadFailureLeavesPending(t *testing.T) {
	env := setupSettlement(t)
	env.ledger.readErr = errBoom
	env.seed(t, "0x01", 42, settleNow-1, "")

	res, err := env.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pending)
	assert.Len(t, env.list(t), 1)
}
