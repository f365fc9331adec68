package schwab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"schwab-invest-bot/internal/logging"
)

const (
	// Schwab caps individual apps near 120 requests per minute.
	requestsPerSecond = 2
	requestBurst      = 5
)

// HTTPClient talks to the Schwab trader and market data APIs for a single
// account hash.
type HTTPClient struct {
	baseURL     string
	accountHash string
	tokens      TokenProvider
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *logging.Logger
}

// NewHTTPClient creates a client for the given account. tokens supplies the
// OAuth bearer token per request so refreshes are picked up transparently.
func NewHTTPClient(baseURL, accountHash string, tokens TokenProvider, logger *logging.Logger) *HTTPClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accountHash: accountHash,
		tokens:      tokens,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		logger:      logger.WithComponent("schwab"),
	}
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body []byte) ([]byte, http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, gwErr(op, 0, err)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, nil, gwErr(op, 0, fmt.Errorf("failed to obtain access token: %w", err))
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, gwErr(op, 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, gwErr(op, 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, gwErr(op, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, gwErr(op, resp.StatusCode, fmt.Errorf("API error: %s", string(respBody)))
	}
	return respBody, resp.Header, nil
}

type accountPayload struct {
	SecuritiesAccount struct {
		CurrentBalances struct {
			LiquidationValue        float64 `json:"liquidationValue"`
			CashAvailableForTrading float64 `json:"cashAvailableForTrading"`
			BuyingPower             float64 `json:"buyingPower"`
			LongMarketValue         float64 `json:"longMarketValue"`
		} `json:"currentBalances"`
		Positions []struct {
			Instrument struct {
				Symbol    string `json:"symbol"`
				AssetType string `json:"assetType"`
			} `json:"instrument"`
			LongQuantity float64 `json:"longQuantity"`
			AveragePrice float64 `json:"averagePrice"`
			MarketValue  float64 `json:"marketValue"`
		} `json:"positions"`
	} `json:"securitiesAccount"`
}

func (c *HTTPClient) account(ctx context.Context, op string, fields string) (*accountPayload, error) {
	path := "/trader/v1/accounts/" + c.accountHash
	if fields != "" {
		path += "?fields=" + fields
	}
	body, _, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var payload accountPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, gwErr(op, 0, fmt.Errorf("error parsing account response: %w", err))
	}
	return &payload, nil
}

// GetBalances fetches the current balance snapshot.
func (c *HTTPClient) GetBalances(ctx context.Context) (*Balances, error) {
	payload, err := c.account(ctx, "get_balances", "")
	if err != nil {
		return nil, err
	}
	cb := payload.SecuritiesAccount.CurrentBalances
	return &Balances{
		LiquidationValue: cb.LiquidationValue,
		CashAvailable:    cb.CashAvailableForTrading,
		BuyingPower:      cb.BuyingPower,
		MarketValue:      cb.LongMarketValue,
	}, nil
}

// GetPositions fetches all current holdings.
func (c *HTTPClient) GetPositions(ctx context.Context) ([]Position, error) {
	payload, err := c.account(ctx, "get_positions", "positions")
	if err != nil {
		return nil, err
	}
	raw := payload.SecuritiesAccount.Positions
	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, Position{
			Symbol:       p.Instrument.Symbol,
			Quantity:     p.LongQuantity,
			AveragePrice: p.AveragePrice,
			MarketValue:  p.MarketValue,
			AssetType:    p.Instrument.AssetType,
		})
	}
	return positions, nil
}

type quotePayload struct {
	Quote struct {
		LastPrice  float64  `json:"lastPrice"`
		OpenPrice  *float64 `json:"openPrice"`
		Week52High *float64 `json:"52WeekHigh"`
	} `json:"quote"`
}

// GetQuote fetches market data for one symbol.
func (c *HTTPClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	quotes, err := c.GetQuotes(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return nil, gwErr("get_quote", 0, fmt.Errorf("no quote returned for %s", symbol))
	}
	return q, nil
}

// GetQuotes fetches market data for multiple symbols in one request.
func (c *HTTPClient) GetQuotes(ctx context.Context, symbols []string) (map[string]*Quote, error) {
	path := "/marketdata/v1/quotes?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	body, _, err := c.do(ctx, "get_quotes", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]quotePayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, gwErr("get_quotes", 0, fmt.Errorf("error parsing quotes: %w", err))
	}
	quotes := make(map[string]*Quote, len(raw))
	for symbol, payload := range raw {
		quotes[symbol] = &Quote{
			Symbol:     symbol,
			LastPrice:  payload.Quote.LastPrice,
			OpenPrice:  payload.Quote.OpenPrice,
			Week52High: payload.Quote.Week52High,
		}
	}
	return quotes, nil
}

type chainPayload struct {
	Symbol     string                           `json:"symbol"`
	CallExpMap map[string]map[string][]chainLeg `json:"callExpDateMap"`
	PutExpMap  map[string]map[string][]chainLeg `json:"putExpDateMap"`
}

type chainLeg struct {
	Symbol      string  `json:"symbol"`
	Description string  `json:"description"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	StrikePrice float64 `json:"strikePrice"`
}

// GetOptionChain fetches the option chain for a symbol. contractType is CALL
// or PUT; strikeCount limits strikes around the money.
func (c *HTTPClient) GetOptionChain(ctx context.Context, symbol, contractType string, strikeCount int) (*OptionChain, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("contractType", contractType)
	params.Set("strikeCount", strconv.Itoa(strikeCount))

	body, _, err := c.do(ctx, "get_option_chain", http.MethodGet, "/marketdata/v1/chains?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var payload chainPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, gwErr("get_option_chain", 0, fmt.Errorf("error parsing option chain: %w", err))
	}

	rawMap := payload.CallExpMap
	if contractType == "PUT" {
		rawMap = payload.PutExpMap
	}
	expMap := make(map[string]map[string][]OptionContract, len(rawMap))
	for exp, strikes := range rawMap {
		expMap[exp] = make(map[string][]OptionContract, len(strikes))
		for strike, legs := range strikes {
			contracts := make([]OptionContract, 0, len(legs))
			for _, leg := range legs {
				contracts = append(contracts, OptionContract{
					Symbol:      leg.Symbol,
					Description: leg.Description,
					Bid:         leg.Bid,
					Ask:         leg.Ask,
					Strike:      leg.StrikePrice,
				})
			}
			expMap[exp][strike] = contracts
		}
	}
	return &OptionChain{Symbol: symbol, ContractType: contractType, ExpDateMap: expMap}, nil
}

// PlaceOrder submits an order. The order ID comes from the Location header of
// the 201 response. Never retried on failure: a timed-out submission may still
// have reached the brokerage, and a duplicate order is worse than a missed one.
func (c *HTTPClient) PlaceOrder(ctx context.Context, spec OrderSpec) (*OrderResponse, error) {
	body, err := json.Marshal(buildOrderBody(spec))
	if err != nil {
		return nil, gwErr("place_order", 0, err)
	}

	c.logger.Info("Submitting order",
		"symbol", spec.Symbol,
		"action", string(spec.Action),
		"quantity", spec.Quantity,
		"order_type", spec.OrderType)

	_, headers, err := c.do(ctx, "place_order", http.MethodPost, "/trader/v1/accounts/"+c.accountHash+"/orders", body)
	if err != nil {
		return nil, err
	}

	orderID := ""
	if location := headers.Get("Location"); location != "" {
		parts := strings.Split(location, "/")
		orderID = parts[len(parts)-1]
	}
	return &OrderResponse{OrderID: orderID, Status: "submitted"}, nil
}

// GetOrders fetches recent orders for the account.
func (c *HTTPClient) GetOrders(ctx context.Context) ([]Order, error) {
	body, _, err := c.do(ctx, "get_orders", http.MethodGet, "/trader/v1/accounts/"+c.accountHash+"/orders", nil)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		OrderID            int64   `json:"orderId"`
		Status             string  `json:"status"`
		Quantity           float64 `json:"quantity"`
		FilledQuantity     float64 `json:"filledQuantity"`
		Price              float64 `json:"price"`
		EnteredTime        string  `json:"enteredTime"`
		OrderLegCollection []struct {
			Instrument struct {
				Symbol string `json:"symbol"`
			} `json:"instrument"`
		} `json:"orderLegCollection"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, gwErr("get_orders", 0, fmt.Errorf("error parsing orders: %w", err))
	}

	orders := make([]Order, 0, len(raw))
	for _, o := range raw {
		symbol := ""
		if len(o.OrderLegCollection) > 0 {
			symbol = o.OrderLegCollection[0].Instrument.Symbol
		}
		orders = append(orders, Order{
			OrderID:     strconv.FormatInt(o.OrderID, 10),
			Symbol:      symbol,
			Status:      o.Status,
			Quantity:    o.Quantity,
			FilledQty:   o.FilledQuantity,
			Price:       o.Price,
			EnteredTime: o.EnteredTime,
		})
	}
	return orders, nil
}

// buildOrderBody converts an OrderSpec into the brokerage order JSON.
func buildOrderBody(spec OrderSpec) map[string]interface{} {
	instruction := "BUY"
	if spec.Action == Sell {
		instruction = "SELL"
	}
	assetType := spec.AssetType
	if assetType == "" {
		assetType = "EQUITY"
	}
	if assetType == "OPTION" {
		if spec.Action == Buy {
			instruction = "BUY_TO_OPEN"
		} else {
			instruction = "SELL_TO_OPEN"
		}
	}

	orderType := spec.OrderType
	if orderType == "" {
		orderType = "MARKET"
	}

	order := map[string]interface{}{
		"orderType":         orderType,
		"session":           "NORMAL",
		"duration":          "DAY",
		"orderStrategyType": "SINGLE",
		"orderLegCollection": []map[string]interface{}{
			{
				"instruction": instruction,
				"quantity":    spec.Quantity,
				"instrument": map[string]interface{}{
					"symbol":    spec.Symbol,
					"assetType": assetType,
				},
			},
		},
	}
	if spec.LimitPrice != nil {
		order["price"] = strconv.FormatFloat(*spec.LimitPrice, 'f', 2, 64)
	}
	if spec.ClientOrderID != "" {
		order["tag"] = spec.ClientOrderID
	}
	return order
}
