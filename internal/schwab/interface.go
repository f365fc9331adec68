package schwab

import "context"

// Client defines the brokerage operations the strategies consume. Every call
// returns typed results; errors are *GatewayError except where noted.
type Client interface {
	GetBalances(ctx context.Context) (*Balances, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]*Quote, error)
	GetOptionChain(ctx context.Context, symbol, contractType string, strikeCount int) (*OptionChain, error)
	PlaceOrder(ctx context.Context, spec OrderSpec) (*OrderResponse, error)
	GetOrders(ctx context.Context) ([]Order, error)
}

// TokenProvider supplies the current OAuth access token for API calls.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Ensure all client flavors implement Client
var _ Client = (*HTTPClient)(nil)
var _ Client = (*MockClient)(nil)
var _ Client = (*CachedClient)(nil)
