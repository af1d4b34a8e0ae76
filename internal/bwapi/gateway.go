package bwapi

import (
	"fmt"
	"strconv"
	"strings"
)

// Gateway identifies a Battle.net region by its numeric id.
type Gateway int

// Known gateways.
const (
	USWest Gateway = 10
	USEast Gateway = 11
	Europe Gateway = 20
	Korea  Gateway = 30
	Asia   Gateway = 45
)

// Gateways lists known gateways in cycle order.
var Gateways = []Gateway{USWest, USEast, Europe, Korea, Asia}

// Label returns the human-readable region name.
func (g Gateway) Label() string {
	switch g {
	case USWest:
		return "US West"
	case USEast:
		return "US East"
	case Europe:
		return "Europe"
	case Korea:
		return "Korea"
	case Asia:
		return "Asia"
	default:
		return "Unknown"
	}
}

// Valid reports whether g is a known gateway.
func (g Gateway) Valid() bool {
	for _, known := range Gateways {
		if g == known {
			return true
		}
	}
	return false
}

// ParseGateway accepts a numeric id ("10") or a label ("us west", "korea").
func ParseGateway(value string) (Gateway, error) {
	trimmed := strings.TrimSpace(value)
	if n, err := strconv.Atoi(trimmed); err == nil {
		if g := Gateway(n); g.Valid() {
			return g, nil
		}
		return 0, fmt.Errorf("unknown gateway %d", n)
	}
	for _, g := range Gateways {
		if strings.EqualFold(strings.ReplaceAll(g.Label(), " ", ""), strings.ReplaceAll(trimmed, " ", "")) {
			return g, nil
		}
	}
	return 0, fmt.Errorf("unknown gateway %q", value)
}
