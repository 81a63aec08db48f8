package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "base", cfg.Engine.Variant)
	assert.Equal(t, 64, cfg.Engine.MaxMatchesPerCall)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, "static", cfg.Oracle.Mode)
	assert.True(t, cfg.Ledger.Faucet)
	assert.Empty(t, cfg.Ledger.Seed)
}

func TestLedgerSeeds(t *testing.T) {
	asset := "0x00000000000000000000000000000000000000aa"
	holder := "0x1000000000000000000000000000000000000001"
	t.Setenv("ESCROWBOOK_LEDGER_SEED", asset+":"+holder+":500,"+asset+":"+holder+":7")

	cfg, err := Load("")
	require.NoError(t, err)
	seeds, err := cfg.Ledger.Seeds()
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, common.HexToAddress(asset), seeds[0].Asset)
	assert.Equal(t, common.HexToAddress(holder), seeds[0].Holder)
	assert.Equal(t, "500", seeds[0].Amount.String())
	assert.Equal(t, "7", seeds[1].Amount.String())

	t.Setenv("ESCROWBOOK_LEDGER_SEED", asset+":500")
	_, err = Load("")
	require.ErrorContains(t, err, "ledger.seed")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ESCROWBOOK_ENGINE_VARIANT", "extended")
	t.Setenv("ESCROWBOOK_ENGINE_MAX_PRICE_AGE", "90s")
	t.Setenv("ESCROWBOOK_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "extended", cfg.Engine.Variant)
	assert.Equal(t, 90*time.Second, cfg.Engine.MaxPriceAge)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
oracle:
  mode: static
  static_decimals: 0
  static_prices:
    "0x00000000000000000000000000000000000f00da": "2"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	prices, err := cfg.Oracle.Prices()
	require.NoError(t, err)
	assert.Equal(t, int64(2), prices[common.HexToAddress("0x00000000000000000000000000000000000f00da")])
	assert.Equal(t, uint8(0), cfg.Oracle.StaticDecimals)
}

func TestValidate(t *testing.T) {
	t.Setenv("ESCROWBOOK_ENGINE_VARIANT", "turbo")
	_, err := Load("")
	require.ErrorContains(t, err, "engine.variant")

	t.Setenv("ESCROWBOOK_ENGINE_VARIANT", "base")
	t.Setenv("ESCROWBOOK_ORACLE_MODE", "chainlink")
	_, err = Load("")
	require.ErrorContains(t, err, "oracle.rpc_url")
}
