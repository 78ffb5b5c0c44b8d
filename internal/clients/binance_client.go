package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient creates a spot client. Testnet switches the package-level endpoint.
func NewBinanceClient(apiKey, apiSecret string, testnet bool) *binance.Client {
	binance.UseTestnet = testnet
	client := binance.NewClient(apiKey, apiSecret)
	return client
}
