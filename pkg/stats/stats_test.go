package stats

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale/pkg/config"
	"presale/pkg/contracts"
	"presale/pkg/models"
	"presale/pkg/rpctest"
)

var (
	usdt      = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	saleToken = common.HexToAddress("0x3333333333333333333333333333333333333333")
	sale      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	user      = common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func testConfig() *config.SaleConfig {
	return &config.SaleConfig{
		ChainID:      56,
		PaymentToken: config.TokenConfig{Symbol: "USDT", Address: usdt.Hex(), Decimals: 18},
		SaleToken:    config.TokenConfig{Symbol: "GOBG", Decimals: 18},
		SaleAddress:  sale.Hex(),
		Capacity:     10_000,
		BaseRate:     15,
	}
}

// node serves balanceOf for both tokens; a nil balance leaves the token
// unhandled so its calls revert.
func node(t *testing.T, raised, inventory *big.Int) (*rpctest.Server, *contracts.Client) {
	t.Helper()
	srv := rpctest.NewServer(t, 56)
	if raised != nil {
		srv.HandleCall(usdt, contracts.Selector(contracts.ERC20ABI, "balanceOf"), func([]byte) ([]byte, error) {
			return rpctest.Word(raised), nil
		})
	}
	if inventory != nil {
		srv.HandleCall(saleToken, contracts.Selector(contracts.ERC20ABI, "balanceOf"), func([]byte) ([]byte, error) {
			return rpctest.Word(inventory), nil
		})
	}
	client, err := ethclient.Dial(srv.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return srv, contracts.NewClient(client)
}

func TestCompute_Accessor(t *testing.T) {
	srv, client := node(t, ether(500), nil)
	srv.HandleCall(sale, contracts.Selector(contracts.SaleABI, "tokensSold"), func([]byte) ([]byte, error) {
		return rpctest.Word(ether(2_500)), nil
	})

	snap, err := NewRefresher(testConfig(), client, nil).Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "500", snap.Raised.String())
	require.True(t, snap.Sold.Valid)
	assert.Equal(t, "2500", snap.Sold.Decimal.String())
	assert.Equal(t, models.SoldFromAccessor, snap.SoldSource)
	assert.Equal(t, "tokensSold", snap.Accessor)
	assert.InDelta(t, 25.0, snap.Percent, 1e-9)
}

func TestCompute_Inventory(t *testing.T) {
	cfg := testConfig()
	cfg.SaleToken.Address = saleToken.Hex()
	_, client := node(t, ether(500), ether(6_000))

	snap, err := NewRefresher(cfg, client, nil).Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SoldFromInventory, snap.SoldSource)
	assert.Equal(t, "4000", snap.Sold.Decimal.String())
	assert.InDelta(t, 40.0, snap.Percent, 1e-9)
}

func TestCompute_InventoryClampedAtZero(t *testing.T) {
	cfg := testConfig()
	cfg.SaleToken.Address = saleToken.Hex()
	_, client := node(t, ether(0), ether(12_000))

	snap, err := NewRefresher(cfg, client, nil).Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SoldFromInventory, snap.SoldSource)
	assert.True(t, snap.Sold.Decimal.IsZero())
	assert.Equal(t, 0.0, snap.Percent)
}

func TestCompute_RaisedTimesRate(t *testing.T) {
	_, client := node(t, ether(1_000), nil)

	snap, err := NewRefresher(testConfig(), client, nil).Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SoldFromRaisedRate, snap.SoldSource)
	assert.Equal(t, "15000", snap.Sold.Decimal.String())
	assert.Equal(t, 100.0, snap.Percent)
}

func TestCompute_Unknown(t *testing.T) {
	cfg := testConfig()
	cfg.BaseRate = 0
	cfg.Capacity = 0
	_, client := node(t, ether(1), nil)

	snap, err := NewRefresher(cfg, client, nil).Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SoldUnknown, snap.SoldSource)
	assert.False(t, snap.Sold.Valid)
	assert.Equal(t, 0.0, snap.Percent)
}

func TestCompute_UnsetBaseRateFromFile(t *testing.T) {
	cfg, err := config.LoadConfig(strings.NewReader(`{"rpc_urls": ["http://x"], "capacity": 1000}`))
	require.NoError(t, err)
	cfg.SaleAddress = sale.Hex()
	cfg.PaymentToken.Address = usdt.Hex()
	_, client := node(t, ether(1), nil)

	snap, err := NewRefresher(cfg, client, nil).Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SoldUnknown, snap.SoldSource)
	assert.False(t, snap.Sold.Valid)
}

func TestCompute_RaisedFailureFailsSnapshot(t *testing.T) {
	srv, client := node(t, nil, nil)
	srv.HandleCall(sale, contracts.Selector(contracts.SaleABI, "totalSold"), func([]byte) ([]byte, error) {
		return rpctest.Word(ether(1)), nil
	})

	_, err := NewRefresher(testConfig(), client, nil).Compute(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindChainCall))
}

func TestPositions_Fetch(t *testing.T) {
	srv, client := node(t, ether(42), nil)
	srv.HandleCall(sale, contracts.Selector(contracts.SaleABI, "claimable"), func([]byte) ([]byte, error) {
		return rpctest.Word(ether(630)), nil
	})
	srv.HandleCall(sale, contracts.Selector(contracts.SaleABI, "endTime"), func([]byte) ([]byte, error) {
		return rpctest.Word(big.NewInt(1_700_000_000)), nil
	})

	pos, err := NewPositions(testConfig(), client).Fetch(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, user.Hex(), pos.Account)
	assert.Equal(t, "42", pos.PaymentBalance.String())
	assert.Equal(t, "630", pos.Claimable.String())
	assert.Equal(t, int64(1_700_000_000), pos.EndTime)
}

func TestPositions_FetchFails(t *testing.T) {
	_, client := node(t, ether(42), nil)

	_, err := NewPositions(testConfig(), client).Fetch(context.Background(), user)
	require.Error(t, err)
}
