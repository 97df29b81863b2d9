package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/contract"
)

var (
	ErrUnknownEvent    = errors.New("ingest: unknown event topic")
	ErrForeignContract = errors.New("ingest: log from foreign contract")
	ErrMalformedLog    = errors.New("ingest: malformed log")
)

// Kind 事件类型
type Kind string

const (
	KindPromotionCreated Kind = "PromotionCreated"
	KindPromotionEnded   Kind = "PromotionEnded"
	KindIntentSubmitted  Kind = "IntentSubmitted"
	KindIntentProcessed  Kind = "IntentProcessed"
)

// Quantity 兼容十六进制字符串、十进制字符串与数字
type Quantity uint64

// UnmarshalJSON 解析
func (q *Quantity) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*q = 0
		return nil
	}
	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	*q = Quantity(v)
	return nil
}

// MarshalJSON 以十六进制输出
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.EncodeUint64(uint64(q)))
}

// RawLog webhook 推送的日志
type RawLog struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     Quantity `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        Quantity `json:"logIndex"`
}

// ToLog 转换为 go-ethereum 日志
func (r *RawLog) ToLog() (types.Log, error) {
	if !common.IsHexAddress(r.Address) {
		return types.Log{}, fmt.Errorf("%w: address %q", ErrMalformedLog, r.Address)
	}
	topics := make([]common.Hash, 0, len(r.Topics))
	for _, t := range r.Topics {
		raw, err := hexutil.Decode(t)
		if err != nil || len(raw) != common.HashLength {
			return types.Log{}, fmt.Errorf("%w: topic %q", ErrMalformedLog, t)
		}
		topics = append(topics, common.BytesToHash(raw))
	}
	var data []byte
	if r.Data != "" && r.Data != "0x" {
		d, err := hexutil.Decode(r.Data)
		if err != nil {
			return types.Log{}, fmt.Errorf("%w: data: %v", ErrMalformedLog, err)
		}
		data = d
	}
	return types.Log{
		Address:     common.HexToAddress(r.Address),
		Topics:      topics,
		Data:        data,
		BlockNumber: uint64(r.BlockNumber),
		TxHash:      common.HexToHash(r.TransactionHash),
		Index:       uint(r.LogIndex),
	}, nil
}

// LogMeta 日志位置
type LogMeta struct {
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// Event 解码后的合约事件
type Event interface {
	Kind() Kind
	PromotionID() uint64
	Meta() LogMeta
}

// PromotionCreated 推广创建
type PromotionCreated struct {
	LogMeta
	ID          uint64
	Creator     common.Address
	TotalBudget *big.Int
}

// PromotionEnded 推广结束
type PromotionEnded struct {
	LogMeta
	ID uint64
}

// IntentSubmitted 推广者提交意图
type IntentSubmitted struct {
	LogMeta
	ID         uint64
	IntentHash common.Hash
	Wallet     common.Address
	FID        uint64
	Fee        *big.Int
}

// IntentProcessed 意图已结算，CastHash 为零表示被拒绝
type IntentProcessed struct {
	LogMeta
	ID         uint64
	IntentHash common.Hash
	Wallet     common.Address
	CastHash   common.Hash
}

func (e *PromotionCreated) Kind() Kind          { return KindPromotionCreated }
func (e *PromotionCreated) PromotionID() uint64 { return e.ID }
func (e *PromotionCreated) Meta() LogMeta       { return e.LogMeta }

func (e *PromotionEnded) Kind() Kind          { return KindPromotionEnded }
func (e *PromotionEnded) PromotionID() uint64 { return e.ID }
func (e *PromotionEnded) Meta() LogMeta       { return e.LogMeta }

func (e *IntentSubmitted) Kind() Kind          { return KindIntentSubmitted }
func (e *IntentSubmitted) PromotionID() uint64 { return e.ID }
func (e *IntentSubmitted) Meta() LogMeta       { return e.LogMeta }

func (e *IntentProcessed) Kind() Kind          { return KindIntentProcessed }
func (e *IntentProcessed) PromotionID() uint64 { return e.ID }
func (e *IntentProcessed) Meta() LogMeta       { return e.LogMeta }

// Rejected 是否为拒绝结算
func (e *IntentProcessed) Rejected() bool {
	return e.CastHash == (common.Hash{})
}

// Decoder 按合约 ABI 解码日志
type Decoder struct {
	abi     abi.ABI
	address common.Address
}

// NewDecoder 创建解码器，address 为零时不校验来源合约
func NewDecoder(address common.Address) (*Decoder, error) {
	parsed, err := contract.ParseABI()
	if err != nil {
		return nil, err
	}
	return &Decoder{abi: parsed, address: address}, nil
}

// Decode 解码一条日志
func (d *Decoder) Decode(log types.Log) (Event, error) {
	if d.address != (common.Address{}) && log.Address != d.address {
		return nil, fmt.Errorf("%w: %s", ErrForeignContract, log.Address.Hex())
	}
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("%w: no topics", ErrMalformedLog)
	}
	ev, err := d.abi.EventByID(log.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, log.Topics[0].Hex())
	}

	// 非 indexed 字段在 data 中
	values := make(map[string]interface{})
	if err := ev.Inputs.UnpackIntoMap(values, log.Data); err != nil {
		return nil, fmt.Errorf("%w: %s data: %v", ErrMalformedLog, ev.Name, err)
	}

	// indexed 字段在 topics[1:] 中
	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("%w: %s expects %d indexed topics, got %d",
			ErrMalformedLog, ev.Name, len(indexed), len(log.Topics)-1)
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("%w: %s topics: %v", ErrMalformedLog, ev.Name, err)
	}

	meta := LogMeta{BlockNumber: log.BlockNumber, TxHash: log.TxHash, LogIndex: log.Index}
	f := fields(values)

	var event Event
	switch Kind(ev.Name) {
	case KindPromotionCreated:
		event = &PromotionCreated{
			LogMeta:     meta,
			ID:          f.u64("promotionId"),
			Creator:     f.addr("creator"),
			TotalBudget: f.bigInt("totalBudget"),
		}
	case KindPromotionEnded:
		event = &PromotionEnded{LogMeta: meta, ID: f.u64("promotionId")}
	case KindIntentSubmitted:
		event = &IntentSubmitted{
			LogMeta:    meta,
			ID:         f.u64("promotionId"),
			IntentHash: f.hash32("intentHash"),
			Wallet:     f.addr("wallet"),
			FID:        f.u64("fid"),
			Fee:        f.bigInt("fee"),
		}
	case KindIntentProcessed:
		event = &IntentProcessed{
			LogMeta:    meta,
			ID:         f.u64("promotionId"),
			IntentHash: f.hash32("intentHash"),
			Wallet:     f.addr("wallet"),
			CastHash:   f.hash32("castHash"),
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Name)
	}
	if f.err != nil {
		return nil, f.err
	}
	return event, nil
}

// DecodeRaw 解码 webhook 日志
func (d *Decoder) DecodeRaw(raw RawLog) (Event, error) {
	log, err := raw.ToLog()
	if err != nil {
		return nil, err
	}
	return d.Decode(log)
}

// fieldReader 记录第一个类型错误
type fieldReader struct {
	values map[string]interface{}
	err    error
}

func fields(values map[string]interface{}) *fieldReader {
	return &fieldReader{values: values}
}

func (f *fieldReader) fail(name string, v interface{}) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: field %s has type %T", ErrMalformedLog, name, v)
	}
}

func (f *fieldReader) bigInt(name string) *big.Int {
	v, ok := f.values[name].(*big.Int)
	if !ok {
		f.fail(name, f.values[name])
		return new(big.Int)
	}
	return v
}

func (f *fieldReader) u64(name string) uint64 {
	v := f.bigInt(name)
	if !v.IsUint64() {
		f.fail(name, v)
		return 0
	}
	return v.Uint64()
}

func (f *fieldReader) addr(name string) common.Address {
	v, ok := f.values[name].(common.Address)
	if !ok {
		f.fail(name, f.values[name])
	}
	return v
}

func (f *fieldReader) hash32(name string) common.Hash {
	v, ok := f.values[name].([32]byte)
	if !ok {
		f.fail(name, f.values[name])
	}
	return common.Hash(v)
}
