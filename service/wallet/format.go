package wallet

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BalanceDecimals is the number of fractional digits shown for balances.
const BalanceDecimals = 4

// FormatUnits renders an integer amount of base units as a decimal with
// four fractional digits. Negative amounts are clamped to zero.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil || amount.Sign() < 0 {
		amount = new(big.Int)
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(amount, denom).FloatString(BalanceDecimals)
}

// FormatWei decodes a hex-encoded wei quantity, as returned by
// eth_getBalance, into a 4-decimal ether string.
func FormatWei(hexWei string) (string, error) {
	wei, err := hexutil.DecodeBig(hexWei)
	if err != nil {
		return "", fmt.Errorf("invalid balance quantity %q: %w", hexWei, err)
	}
	return FormatUnits(wei, 18), nil
}

func formatAmount(v float64) string {
	if v < 0 {
		v = 0
	}
	return fmt.Sprintf("%.*f", BalanceDecimals, v)
}
