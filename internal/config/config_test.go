package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"

	"orderScope/internal/model"
)

func TestLoadMergesFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
rpc: http://localhost:8545
batch-size: 500
currencies:
  "0x0000000000000000000000000000000000000000": "18"
  "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2": "18"
fee-wallets:
  seaport-v1.5:
    - "0x0000a26b00c1F0DF003000390027140000fAa719"
    - "0x8De9C5A032463C561423387a9648c5C7BCC5BC90"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Uint64("batch-size", 2000, "")
	if err := flags.Parse([]string{"--batch-size=10"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "http://localhost:8545" {
		t.Fatalf("unexpected rpc %q", cfg.RPCURL)
	}
	if cfg.BatchSize != 10 {
		t.Fatalf("expected flag to win, got %d", cfg.BatchSize)
	}
	if cfg.Concurrency != 20 || cfg.CandidateThresholdBps != 1000 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.Protocols.Currencies) != 2 {
		t.Fatalf("expected two currencies, got %v", cfg.Protocols.Currencies)
	}

	wallets, err := cfg.Protocols.Wallets()
	if err != nil {
		t.Fatalf("wallets: %v", err)
	}
	got := wallets[model.KindSeaport]
	if len(got) != 2 || got[0] != common.HexToAddress("0x0000a26b00c1F0DF003000390027140000fAa719") {
		t.Fatalf("unexpected wallets %v", got)
	}
}

func TestEnvPairs(t *testing.T) {
	t.Setenv("INDEXER_CURRENCIES", "0x0000000000000000000000000000000000000000=18, 0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48=6")
	t.Setenv("INDEXER_FEE_WALLETS", "zeroex-v4-erc721=0x0000000000000000000000000000000000000001|0x0000000000000000000000000000000000000002")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Protocols.Currencies["0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"] != "6" {
		t.Fatalf("unexpected currencies %v", cfg.Protocols.Currencies)
	}
	wallets, err := cfg.Protocols.Wallets()
	if err != nil {
		t.Fatalf("wallets: %v", err)
	}
	if len(wallets[model.KindZeroExV4]) != 2 {
		t.Fatalf("unexpected wallets %v", wallets)
	}
}

func TestConduitsRejectShortKey(t *testing.T) {
	p := Protocols{SeaportConduits: map[string]string{"0x01": "0x1E0049783F008A0085193E00003D00cd54003c71"}}
	if _, err := p.Conduits(); err == nil {
		t.Fatalf("expected error for short conduit key")
	}
}
