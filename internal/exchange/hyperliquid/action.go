package hyperliquid

import (
	"encoding/binary"
	"fmt"
	"strconv"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// actionHash computes the connection id signed for an L1 action:
// keccak256(msgpack(action) || nonce (8 bytes BE) || 0x00). The trailing
// zero byte marks the absence of a vault address.
func actionHash(action orderAction, nonce int64) ([32]byte, error) {
	var out [32]byte
	packed, err := msgpack.Marshal(action)
	if err != nil {
		return out, fmt.Errorf("hyperliquid: msgpack action: %w", err)
	}
	buf := make([]byte, 0, len(packed)+9)
	buf = append(buf, packed...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(nonce))
	buf = append(buf, 0x00)
	copy(out[:], ethcrypto.Keccak256(buf))
	return out, nil
}

// formatPrice rounds px to five significant figures and then to the
// number of decimals the venue accepts for the asset. Integer prices are
// always accepted.
func formatPrice(px float64, a asset) string {
	maxDecimals := 6
	if a.Spot {
		maxDecimals = 8
	}
	places := int32(maxDecimals - a.SzDecimals)
	if places < 0 {
		places = 0
	}
	sig, err := strconv.ParseFloat(strconv.FormatFloat(px, 'g', 5, 64), 64)
	if err != nil {
		sig = px
	}
	return wire(decimal.NewFromFloat(sig).Round(places))
}

// formatSize truncates sz to the asset's size decimals.
func formatSize(sz float64, a asset) string {
	return wire(decimal.NewFromFloat(sz).Truncate(int32(a.SzDecimals)))
}

// wire renders a decimal the way the API hashes it: no trailing zeros,
// no negative zero.
func wire(d decimal.Decimal) string {
	if d.IsZero() {
		return "0"
	}
	return d.String()
}
