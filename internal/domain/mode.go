package domain

// Mode execution mode of the bot.
type Mode string

const (
	// ModePaper routes orders to the simulated wallet.
	ModePaper Mode = "paper"
	// ModeLive routes orders to the exchange.
	ModeLive Mode = "live"
)

// ResolveMode picks live only when credentials exist and testnet is off.
func ResolveMode(apiKey string, testnet bool) Mode {
	if apiKey != "" && !testnet {
		return ModeLive
	}
	return ModePaper
}
