package tx

import "testing"

import "github.com/klingnet-chain/klingnet-core/config"

func TestFeeFor_FloorsAtMinFee(t *testing.T) {
	params := config.DefaultParams()
	fee := FeeFor(params, 1, "low")
	if fee != params.MinFee {
		t.Errorf("FeeFor(1 byte) = %s, want MinFee %s", fee, params.MinFee)
	}
}

func TestFeeFor_ScalesWithSizeAndPriority(t *testing.T) {
	params := config.DefaultParams()
	low := FeeFor(params, params.BaseTxSize*1000, "low")
	high := FeeFor(params, params.BaseTxSize*1000, "high")
	if !(low < high) {
		t.Errorf("expected low-priority fee %s < high-priority fee %s", low, high)
	}
}

func TestPriorityForRate_RoundTrips(t *testing.T) {
	params := config.DefaultParams()
	for _, want := range []string{"low", "medium", "high"} {
		rate := params.FeeRateFor(want)
		got := PriorityForRate(params, rate)
		if got != want {
			t.Errorf("PriorityForRate(FeeRateFor(%s)) = %s, want %s", want, got, want)
		}
	}
}
