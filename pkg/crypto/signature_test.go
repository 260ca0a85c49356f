package crypto

import (
	"testing"

	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

func TestSignAndRecover_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	msg := BuildSignedMessage("0xRecipient", types.Coins(10), "medium", key.PublicKeyHex())
	sig, err := key.SignMessage(msg)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}

	recovered, err := RecoverAddress(msg, sig)
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}

	if !recovered.Equal(key.Address()) {
		t.Errorf("recovered address %s != signer address %s", recovered, key.Address())
	}
}

func TestRecoverAddress_WrongMessageFailsMatch(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	msg := BuildSignedMessage("0xRecipient", types.Coins(10), "medium", key.PublicKeyHex())
	sig, err := key.SignMessage(msg)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}

	tampered := BuildSignedMessage("0xOther", types.Coins(10), "medium", key.PublicKeyHex())
	recovered, err := RecoverAddress(tampered, sig)
	if err == nil && recovered.Equal(key.Address()) {
		t.Errorf("recovering a tampered message should not match the signer's address")
	}
}
