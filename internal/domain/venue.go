package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Venue identifies a trading venue. The set is closed at compile time; new
// venues are added here together with a VenueSpec entry and an adapter.
type Venue string

const (
	VenueNobitex Venue = "nobitex"
	VenueWallex  Venue = "wallex"
	VenueTabdeal Venue = "tabdeal"
	VenueInvex   Venue = "invex"
	VenueKucoin  Venue = "kucoin"
)

// AllVenues lists every known venue in lexicographic order.
func AllVenues() []Venue {
	return []Venue{VenueInvex, VenueKucoin, VenueNobitex, VenueTabdeal, VenueWallex}
}

// ParseVenue converts a case-insensitive venue name to a Venue.
func ParseVenue(text string) (Venue, error) {
	v := Venue(strings.ToLower(strings.TrimSpace(text)))
	switch v {
	case VenueNobitex, VenueWallex, VenueTabdeal, VenueInvex, VenueKucoin:
		return v, nil
	}
	return "", fmt.Errorf("unknown venue %q", text)
}

// AuthScheme enumerates the request-signing behaviours an adapter can apply.
type AuthScheme string

const (
	AuthBearerToken    AuthScheme = "bearer-token"
	AuthHMACSHA256     AuthScheme = "hmac-sha256"
	AuthRSAPSSSHA256   AuthScheme = "rsa-pss-sha256"
	AuthPassphraseHMAC AuthScheme = "passphrase-hmac"
)

// SymbolStyle selects how a venue spells a pair on the wire.
type SymbolStyle int

const (
	SymbolCompact    SymbolStyle = iota // BTCUSDT
	SymbolHyphen                        // BTC-USDT
	SymbolUnderscore                    // BTC_USDT
)

// VenueSpec is the static description of a venue: endpoints, fee schedule,
// rendering rule and auth scheme. Specs are immutable after startup; the
// config layer may override fees and the base URL.
type VenueSpec struct {
	Venue       Venue
	DisplayName string
	BaseURL     string
	Auth        AuthScheme
	Style       SymbolStyle
	// IRTAlias is the member of the IRT family this venue trades, e.g.
	// Wallex quotes Toman pairs as TMN. Empty means the venue lists no
	// IRT-family market.
	IRTAlias string
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal
	// DepthCap bounds order-book depth requests; adapters clamp to it.
	DepthCap int
	// SupportsPostOnly reports whether the venue honours a post-only flag.
	// When false the executor downgrades maker requests to taker.
	SupportsPostOnly bool
}

// venueSpecs carries the built-in registry. Fee rates follow the venues'
// published spot schedules and may be overridden per deployment.
var venueSpecs = map[Venue]VenueSpec{
	VenueNobitex: {
		Venue:            VenueNobitex,
		DisplayName:      "Nobitex",
		BaseURL:          "https://apiv2.nobitex.ir",
		Auth:             AuthBearerToken,
		Style:            SymbolCompact,
		IRTAlias:         "IRT",
		MakerFee:         decimal.RequireFromString("0.0005"),
		TakerFee:         decimal.RequireFromString("0.001"),
		DepthCap:         50,
		SupportsPostOnly: true,
	},
	VenueWallex: {
		Venue:       VenueWallex,
		DisplayName: "Wallex",
		BaseURL:     "https://api.wallex.ir",
		Auth:        AuthBearerToken,
		Style:       SymbolCompact,
		IRTAlias:    "TMN",
		MakerFee:    decimal.RequireFromString("0.0005"),
		TakerFee:    decimal.RequireFromString("0.001"),
		DepthCap:    20,
	},
	VenueTabdeal: {
		Venue:            VenueTabdeal,
		DisplayName:      "Tabdeal",
		BaseURL:          "https://api.tabdeal.org",
		Auth:             AuthHMACSHA256,
		Style:            SymbolCompact,
		IRTAlias:         "IRT",
		MakerFee:         decimal.RequireFromString("0.0005"),
		TakerFee:         decimal.RequireFromString("0.001"),
		DepthCap:         100,
		SupportsPostOnly: true,
	},
	VenueInvex: {
		Venue:       VenueInvex,
		DisplayName: "Invex",
		BaseURL:     "https://api.invex.ir/trading/v1",
		Auth:        AuthRSAPSSSHA256,
		Style:       SymbolUnderscore,
		IRTAlias:    "IRR",
		MakerFee:    decimal.RequireFromString("0.0005"),
		TakerFee:    decimal.RequireFromString("0.001"),
		DepthCap:    20,
	},
	VenueKucoin: {
		Venue:       VenueKucoin,
		DisplayName: "KuCoin",
		BaseURL:     "https://api.kucoin.com",
		Auth:        AuthPassphraseHMAC,
		Style:       SymbolHyphen,
		IRTAlias:    "",
		MakerFee:    decimal.RequireFromString("0.001"),
		TakerFee:    decimal.RequireFromString("0.001"),
		DepthCap:    100,
	},
}

// Spec returns the static description of v.
func (v Venue) Spec() VenueSpec { return venueSpecs[v] }

// RenderSymbol spells a canonical symbol the way venue v expects it,
// substituting the venue's IRT-family alias for IRT quotes. It returns an
// error when the venue lists no market in the symbol's quote family.
func RenderSymbol(s Symbol, v Venue) (string, error) {
	spec := venueSpecs[v]
	quote := s.Quote
	if QuoteFamily(quote) == irtFamily {
		if spec.IRTAlias == "" {
			return "", fmt.Errorf("%s lists no %s-family market for %s", spec.DisplayName, irtFamily, s)
		}
		quote = spec.IRTAlias
	}
	switch spec.Style {
	case SymbolHyphen:
		return s.Base + "-" + quote, nil
	case SymbolUnderscore:
		return s.Base + "_" + quote, nil
	default:
		return s.Base + quote, nil
	}
}

// SupportsSymbol reports whether v lists a market for s.
func SupportsSymbol(s Symbol, v Venue) bool {
	_, err := RenderSymbol(s, v)
	return err == nil
}
