package hyperliquid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// actionHash is keccak256(msgpack(action) || nonce || vault flag).
func actionHash(action any, nonce uint64) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(action); err != nil {
		return nil, fmt.Errorf("hyperliquid: msgpack action: %w", err)
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	buf.Write(n[:])
	buf.WriteByte(0) // no vault address
	return ethcrypto.Keccak256(buf.Bytes()), nil
}

// maxPriceDecimals is the decimal budget for perp prices.
const maxPriceDecimals = 6

// formatPrice rounds px to five significant figures and to the decimals
// allowed for an asset with szDecimals size precision.
func formatPrice(px float64, szDecimals int32) string {
	sig, _ := strconv.ParseFloat(strconv.FormatFloat(px, 'g', 5, 64), 64)
	places := maxPriceDecimals - szDecimals
	if places < 0 {
		places = 0
	}
	return decimal.NewFromFloat(sig).Round(places).String()
}

// formatSize renders the order size at the asset's size precision. A size
// that needs more decimals is refused, never rounded, so both legs of a
// hedge always carry the same amount.
func formatSize(sz decimal.Decimal, szDecimals int32) (string, error) {
	rounded := sz.Round(szDecimals)
	if !rounded.Equal(sz) {
		return "", fmt.Errorf("size %s has more than %d decimals", sz, szDecimals)
	}
	if !rounded.IsPositive() {
		return "", fmt.Errorf("size %s is not positive", sz)
	}
	return rounded.String(), nil
}
