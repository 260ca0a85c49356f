package tx

import (
	"testing"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/pkg/crypto"
)

func testParams() *config.Params {
	return config.DefaultParams()
}

func generateTestKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("crypto.GenerateKey: %v", err)
	}
	return key
}
