// Package txn serializes the four user actions against the sale contract.
package txn

import (
	"context"
	"fmt"
	"math/big"
	"runtime/debug"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"presale/pkg/amount"
	"presale/pkg/config"
	"presale/pkg/connection"
	"presale/pkg/contracts"
	"presale/pkg/models"
	"presale/pkg/watcher"
)

// Authorizer yields the signing handle for the current session.
type Authorizer interface {
	Authorized() (connection.Handle, error)
}

// Reader is the read-only chain access used for local pre-checks.
type Reader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	CanFinalizeNow(ctx context.Context, sale common.Address) (bool, error)
}

// Refresher is told to reload data after a confirmed transaction.
type Refresher interface {
	RefreshPersonal(ctx context.Context)
	RefreshStats(ctx context.Context)
}

// Writer submits the state-changing calls.
type Writer interface {
	Approve(ctx context.Context, token, spender common.Address, value *big.Int) (*contracts.Submission, error)
	Buy(ctx context.Context, sale common.Address, amount *big.Int) (*contracts.Submission, error)
	Claim(ctx context.Context, sale common.Address) (*contracts.Submission, error)
	Finalize(ctx context.Context, sale common.Address) (*contracts.Submission, error)
}

// WriterFactory builds a Writer bound to an authorized session.
type WriterFactory func(h connection.Handle) Writer

const (
	msgAllowanceSufficient = "Allowance already sufficient."
	msgAllowanceLow        = "Allowance too low. Approve first."
	msgCannotFinalize      = "Cannot finalize yet (time not ended / not sold out)."
)

// Coordinator runs at most one operation at a time.
type Coordinator struct {
	cfg       *config.SaleConfig
	auth      Authorizer
	reader    Reader
	refresher Refresher
	writers   WriterFactory
	pub       watcher.Publisher
	log       *zap.Logger

	busy atomic.Bool
}

// NewCoordinator wires a coordinator. receipts is used by the default
// writer factory to await confirmations.
func NewCoordinator(cfg *config.SaleConfig, auth Authorizer, reader Reader, receipts ethereum.TransactionReader, refresher Refresher, pub watcher.Publisher, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = watcher.PublisherFunc(func(watcher.Event) {})
	}
	return &Coordinator{
		cfg:       cfg,
		auth:      auth,
		reader:    reader,
		refresher: refresher,
		pub:       pub,
		log:       log,
		writers: func(h connection.Handle) Writer {
			return contracts.NewWriter(h.Provider, receipts, h.Account)
		},
	}
}

// SetWriterFactory overrides how writers are built (useful for testing).
func (c *Coordinator) SetWriterFactory(f WriterFactory) {
	c.writers = f
}

// Busy reports whether an operation is in flight.
func (c *Coordinator) Busy() bool {
	return c.busy.Load()
}

type opFunc func(ctx context.Context, h connection.Handle, w Writer) (*contracts.Submission, error)

func (c *Coordinator) run(ctx context.Context, kind models.OperationKind, fn opFunc) (err error) {
	if !c.busy.CompareAndSwap(false, true) {
		c.log.Info(models.ErrBusy.Short, zap.String("op", string(kind)))
		return models.ErrBusy
	}
	defer c.busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error(fmt.Sprintf("Unexpected error in %s: %v", kind, r), zap.ByteString("stack", debug.Stack()))
			err = models.NewError(models.KindChainCall, string(kind), fmt.Sprintf("%v", r), nil)
			c.publish(kind, models.StageFailed, "", models.Message(err))
		}
	}()

	err = c.execute(ctx, kind, fn)
	if err != nil && !models.IsKind(err, models.KindBusy) {
		msg := models.Message(err)
		c.log.Error(fmt.Sprintf("%s error: %s", kind, msg), zap.Error(err))
		c.publish(kind, models.StageFailed, "", msg)
	}
	return err
}

func (c *Coordinator) execute(ctx context.Context, kind models.OperationKind, fn opFunc) error {
	h, err := c.auth.Authorized()
	if err != nil {
		return err
	}
	sub, err := fn(ctx, h, c.writers(h))
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	hash := sub.Hash.Hex()
	c.log.Info(fmt.Sprintf("%s tx: %s", kind, hash), zap.String("url", c.cfg.TxURL(hash)))
	c.publish(kind, models.StageSubmitted, hash, "")

	if _, err := sub.Wait(ctx); err != nil {
		return err
	}
	c.log.Info(fmt.Sprintf("%s confirmed.", kind))
	c.publish(kind, models.StageConfirmed, hash, "")

	if c.refresher != nil {
		c.refresher.RefreshPersonal(ctx)
		c.refresher.RefreshStats(ctx)
	}
	return nil
}

func (c *Coordinator) publish(kind models.OperationKind, stage models.OperationStage, hash, msg string) {
	c.pub.Publish(watcher.Event{Type: watcher.EventOperation, Data: models.PendingOperation{
		Kind:    kind,
		Stage:   stage,
		TxHash:  hash,
		Message: msg,
	}})
}

func (c *Coordinator) allowance(ctx context.Context, op string, owner common.Address) (*big.Int, error) {
	allowance, err := c.reader.Allowance(ctx, c.cfg.PaymentAddr(), owner, c.cfg.SaleAddr())
	if err != nil {
		return nil, contracts.DecodeError(op, err)
	}
	return allowance, nil
}

// Approve authorizes the sale contract to spend the entered amount, or an
// unlimited amount when configured. A sufficient allowance is a no-op.
func (c *Coordinator) Approve(ctx context.Context, text string) error {
	return c.run(ctx, models.OpApprove, func(ctx context.Context, h connection.Handle, w Writer) (*contracts.Submission, error) {
		units, _, err := amount.ParseUnits(text, c.cfg.PaymentToken.Decimals)
		if err != nil {
			return nil, err
		}
		allowance, err := c.allowance(ctx, "approve", h.Account)
		if err != nil {
			return nil, err
		}
		if allowance.Cmp(units) >= 0 {
			c.log.Info(msgAllowanceSufficient)
			c.publish(models.OpApprove, models.StageSkipped, "", msgAllowanceSufficient)
			return nil, nil
		}
		value := units
		if c.cfg.UnlimitedApproval {
			value = contracts.MaxApproval
		}
		return w.Approve(ctx, c.cfg.PaymentAddr(), c.cfg.SaleAddr(), value)
	})
}

// Buy purchases with the entered payment amount. It refuses to submit when
// the current allowance does not cover the amount.
func (c *Coordinator) Buy(ctx context.Context, text string) error {
	return c.run(ctx, models.OpBuy, func(ctx context.Context, h connection.Handle, w Writer) (*contracts.Submission, error) {
		units, _, err := amount.ParseUnits(text, c.cfg.PaymentToken.Decimals)
		if err != nil {
			return nil, err
		}
		allowance, err := c.allowance(ctx, "buy", h.Account)
		if err != nil {
			return nil, err
		}
		if allowance.Cmp(units) < 0 {
			return nil, models.NewError(models.KindAllowance, "buy", msgAllowanceLow, nil)
		}
		return w.Buy(ctx, c.cfg.SaleAddr(), units)
	})
}

func (c *Coordinator) Claim(ctx context.Context) error {
	return c.run(ctx, models.OpClaim, func(ctx context.Context, h connection.Handle, w Writer) (*contracts.Submission, error) {
		return w.Claim(ctx, c.cfg.SaleAddr())
	})
}

// Finalize closes the sale once the contract reports it can be closed.
func (c *Coordinator) Finalize(ctx context.Context) error {
	return c.run(ctx, models.OpFinalize, func(ctx context.Context, h connection.Handle, w Writer) (*contracts.Submission, error) {
		ok, err := c.reader.CanFinalizeNow(ctx, c.cfg.SaleAddr())
		if err != nil {
			return nil, contracts.DecodeError("finalize", err)
		}
		if !ok {
			return nil, models.ValidationError("finalize", msgCannotFinalize)
		}
		return w.Finalize(ctx, c.cfg.SaleAddr())
	})
}
