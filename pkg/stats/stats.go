// Package stats computes the global sale figures and the connected
// account's position from read-only contract calls.
package stats

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"presale/pkg/amount"
	"presale/pkg/config"
	"presale/pkg/contracts"
	"presale/pkg/models"
)

// Reader is the subset of contracts.Client used for global stats.
type Reader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	SoldBy(ctx context.Context, sale common.Address, accessor string) (*big.Int, error)
}

// PositionReader is the subset of contracts.Client used for a position.
type PositionReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Claimable(ctx context.Context, sale, user common.Address) (*big.Int, error)
	EndTime(ctx context.Context, sale common.Address) (*big.Int, error)
}

var hundred = decimal.NewFromInt(100)

// Refresher computes StatsSnapshots.
type Refresher struct {
	cfg    *config.SaleConfig
	reader Reader
	log    *zap.Logger
	now    func() time.Time
}

func NewRefresher(cfg *config.SaleConfig, reader Reader, log *zap.Logger) *Refresher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Refresher{cfg: cfg, reader: reader, log: log, now: time.Now}
}

// Compute reads raised and derives sold. A failed raised read fails the
// whole snapshot; sold falls through its strategies and may end unknown.
func (r *Refresher) Compute(ctx context.Context) (models.StatsSnapshot, error) {
	raisedUnits, err := r.reader.BalanceOf(ctx, r.cfg.PaymentAddr(), r.cfg.SaleAddr())
	if err != nil {
		return models.StatsSnapshot{}, contracts.DecodeError("stats", err)
	}
	snap := models.StatsSnapshot{
		Raised:     amount.FromUnits(raisedUnits, r.cfg.PaymentToken.Decimals),
		Capacity:   decimal.NewFromFloat(r.cfg.Capacity),
		SoldSource: models.SoldUnknown,
		UpdatedAt:  r.now(),
	}

	r.resolveSold(ctx, &snap)

	if snap.Sold.Valid && snap.Capacity.IsPositive() {
		pct := snap.Sold.Decimal.Div(snap.Capacity).Mul(hundred)
		if pct.GreaterThan(hundred) {
			pct = hundred
		}
		snap.Percent = pct.InexactFloat64()
	}
	return snap, nil
}

func (r *Refresher) resolveSold(ctx context.Context, snap *models.StatsSnapshot) {
	for _, accessor := range contracts.SoldAccessors {
		v, err := r.reader.SoldBy(ctx, r.cfg.SaleAddr(), accessor)
		if err != nil {
			r.log.Debug("sold accessor unavailable", zap.String("accessor", accessor), zap.Error(err))
			continue
		}
		snap.Sold = decimal.NewNullDecimal(amount.FromUnits(v, r.cfg.SaleToken.Decimals))
		snap.SoldSource = models.SoldFromAccessor
		snap.Accessor = accessor
		return
	}

	if r.cfg.SaleToken.Address != "" && snap.Capacity.IsPositive() {
		bal, err := r.reader.BalanceOf(ctx, common.HexToAddress(r.cfg.SaleToken.Address), r.cfg.SaleAddr())
		if err == nil {
			sold := snap.Capacity.Sub(amount.FromUnits(bal, r.cfg.SaleToken.Decimals))
			if sold.IsNegative() {
				sold = decimal.Zero
			}
			snap.Sold = decimal.NewNullDecimal(sold)
			snap.SoldSource = models.SoldFromInventory
			return
		}
		r.log.Debug("sale inventory unavailable", zap.Error(err))
	}

	if r.cfg.BaseRate > 0 {
		snap.Sold = decimal.NewNullDecimal(snap.Raised.Mul(decimal.NewFromFloat(r.cfg.BaseRate)))
		snap.SoldSource = models.SoldFromRaisedRate
	}
}

// Positions reads the connected account's figures.
type Positions struct {
	cfg    *config.SaleConfig
	reader PositionReader
	now    func() time.Time
}

func NewPositions(cfg *config.SaleConfig, reader PositionReader) *Positions {
	return &Positions{cfg: cfg, reader: reader, now: time.Now}
}

// Fetch reads balance, claimable and end time concurrently. Any failure
// fails the position.
func (p *Positions) Fetch(ctx context.Context, account common.Address) (models.Position, error) {
	var balance, claimable, endTime *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		balance, err = p.reader.BalanceOf(gctx, p.cfg.PaymentAddr(), account)
		return err
	})
	g.Go(func() (err error) {
		claimable, err = p.reader.Claimable(gctx, p.cfg.SaleAddr(), account)
		return err
	})
	g.Go(func() (err error) {
		endTime, err = p.reader.EndTime(gctx, p.cfg.SaleAddr())
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Position{}, contracts.DecodeError("position", err)
	}
	return models.Position{
		Account:        account.Hex(),
		PaymentBalance: amount.FromUnits(balance, p.cfg.PaymentToken.Decimals),
		Claimable:      amount.FromUnits(claimable, p.cfg.SaleToken.Decimals),
		EndTime:        endTime.Int64(),
		UpdatedAt:      p.now(),
	}, nil
}
