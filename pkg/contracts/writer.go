package contracts

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"presale/pkg/models"
	"presale/pkg/rpc"
)

// MaxApproval is the unbounded allowance value.
var MaxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Sender signs and broadcasts a transaction request.
type Sender interface {
	SendTransaction(ctx context.Context, req models.TxRequest) (common.Hash, error)
}

// Submission is a broadcast transaction awaiting confirmation.
type Submission struct {
	Hash common.Hash
	wait func(context.Context) (*types.Receipt, error)
}

// NewSubmission wraps a broadcast hash with its confirmation wait.
func NewSubmission(hash common.Hash, wait func(context.Context) (*types.Receipt, error)) *Submission {
	return &Submission{Hash: hash, wait: wait}
}

// Wait blocks until the transaction is mined.
func (s *Submission) Wait(ctx context.Context) (*types.Receipt, error) {
	return s.wait(ctx)
}

// Writer submits the four state-changing calls on behalf of one account.
type Writer struct {
	sender   Sender
	receipts ethereum.TransactionReader
	from     common.Address
	Interval time.Duration
}

func NewWriter(sender Sender, receipts ethereum.TransactionReader, from common.Address) *Writer {
	return &Writer{sender: sender, receipts: receipts, from: from, Interval: rpc.ReceiptInterval}
}

func (w *Writer) submit(ctx context.Context, op string, to common.Address, data []byte) (*Submission, error) {
	hash, err := w.sender.SendTransaction(ctx, models.TxRequest{From: w.from, To: to, Data: data, Value: new(big.Int)})
	if err != nil {
		return nil, DecodeError(op, err)
	}
	return NewSubmission(hash, func(ctx context.Context) (*types.Receipt, error) {
		receipt, err := rpc.WaitMined(ctx, w.receipts, hash, w.Interval)
		if err != nil {
			return receipt, DecodeError(op, err)
		}
		return receipt, nil
	}), nil
}

// Approve submits token.approve(spender, value).
func (w *Writer) Approve(ctx context.Context, token, spender common.Address, value *big.Int) (*Submission, error) {
	data, err := ERC20ABI.Pack("approve", spender, value)
	if err != nil {
		return nil, err
	}
	return w.submit(ctx, "approve", token, data)
}

// Buy submits sale.buy(amount).
func (w *Writer) Buy(ctx context.Context, sale common.Address, amount *big.Int) (*Submission, error) {
	data, err := SaleABI.Pack("buy", amount)
	if err != nil {
		return nil, err
	}
	return w.submit(ctx, "buy", sale, data)
}

func (w *Writer) Claim(ctx context.Context, sale common.Address) (*Submission, error) {
	data, err := SaleABI.Pack("claim")
	if err != nil {
		return nil, err
	}
	return w.submit(ctx, "claim", sale, data)
}

func (w *Writer) Finalize(ctx context.Context, sale common.Address) (*Submission, error) {
	data, err := SaleABI.Pack("finalize")
	if err != nil {
		return nil, err
	}
	return w.submit(ctx, "finalize", sale, data)
}
