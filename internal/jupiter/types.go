package jupiter

// QuoteRequest carries the /quote parameters a conversion needs. Amount is
// in input-mint base units.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps *uint16
}

// QuoteResponse keeps only the fields read back; amounts arrive as decimal
// strings.
type QuoteResponse struct {
	InAmount       string      `json:"inAmount"`
	OutAmount      string      `json:"outAmount"`
	PriceImpactPct string      `json:"priceImpactPct"`
	ContextSlot    uint64      `json:"contextSlot,omitempty"`
	RoutePlan      []RouteStep `json:"routePlan"`
}

type RouteStep struct {
	SwapInfo struct {
		Label string `json:"label,omitempty"`
	} `json:"swapInfo"`
}

// Venues lists the route labels, in order.
func (r *QuoteResponse) Venues() []string {
	out := make([]string, 0, len(r.RoutePlan))
	for _, s := range r.RoutePlan {
		if s.SwapInfo.Label != "" {
			out = append(out, s.SwapInfo.Label)
		}
	}
	return out
}
