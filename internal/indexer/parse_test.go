package indexer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseAddresses(t *testing.T) {
	seaport := common.HexToAddress("0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC")
	named := map[string]common.Address{"seaport-v1.5": seaport}

	got, err := ParseAddresses([]string{" Seaport-v1.5 ", "0x00000000000000adc04c56bf30ac9d3c0aaf14dc", "", "0x00000000000000000000000000000000000000a1"}, named)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != seaport || got[1] != common.HexToAddress("0xa1") {
		t.Fatalf("unexpected addresses %v", got)
	}

	for _, bad := range []string{"blur", "0x0000000000000000000000000000000000000000", "0x1234"} {
		if _, err := ParseAddresses([]string{bad}, named); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseTopics(t *testing.T) {
	known := []common.Hash{
		common.HexToHash("0x9d9af8e38d66c62e2c12f0225249fd9d721c54b83f48d9352c97c6cacdcb6f31"),
		common.HexToHash("0x6bb7ff708619ba0610cba295a58592e0451dee2622938c8755667688daf3529b"),
	}

	got, err := ParseTopics([]string{known[1].Hex(), known[1].Hex(), " "}, known)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != known[1] {
		t.Fatalf("unexpected topics %v", got)
	}

	tests := []string{
		"nothex",
		"0x1234",
		"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
	}
	for _, bad := range tests {
		if _, err := ParseTopics([]string{bad}, known); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
