package backpack

// tickerResponse is returned by GET /api/v1/ticker.
type tickerResponse struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

// orderRequest is the body of POST /api/v1/order.
type orderRequest struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	PostOnly    bool   `json:"postOnly,omitempty"`
}

// orderResponse is the subset of the order object we read.
type orderResponse struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	ExecutedQuantity string `json:"executedQuantity"`
}

type cancelRequest struct {
	OrderID string `json:"orderId"`
	Symbol  string `json:"symbol"`
}

// fill is one entry of GET /wapi/v1/history/fills.
type fill struct {
	OrderID   string `json:"orderId"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Quantity  string `json:"quantity"`
	Timestamp string `json:"timestamp"`
}

// capitalEntry is one asset of GET /api/v1/capital.
type capitalEntry struct {
	Available string `json:"available"`
	Locked    string `json:"locked"`
	Staked    string `json:"staked"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
