package hyperliquid

import "encoding/json"

// assetMeta is one entry of the perp universe returned by {"type":"meta"}.
type assetMeta struct {
	Name       string `json:"name"`
	SzDecimals int32  `json:"szDecimals"`
}

type metaResponse struct {
	Universe []assetMeta `json:"universe"`
}

// The action structs are msgpack-encoded for the signature hash and
// JSON-encoded for the request. Field order is part of the hash.

type limitTIF struct {
	TIF string `msgpack:"tif" json:"tif"`
}

type orderTypeWire struct {
	Limit limitTIF `msgpack:"limit" json:"limit"`
}

type orderWire struct {
	Asset      int           `msgpack:"a" json:"a"`
	IsBuy      bool          `msgpack:"b" json:"b"`
	Price      string        `msgpack:"p" json:"p"`
	Size       string        `msgpack:"s" json:"s"`
	ReduceOnly bool          `msgpack:"r" json:"r"`
	OrderType  orderTypeWire `msgpack:"t" json:"t"`
}

type orderAction struct {
	Type     string      `msgpack:"type" json:"type"`
	Orders   []orderWire `msgpack:"orders" json:"orders"`
	Grouping string      `msgpack:"grouping" json:"grouping"`
}

type cancelWire struct {
	Asset   int    `msgpack:"a" json:"a"`
	OrderID uint64 `msgpack:"o" json:"o"`
}

type cancelAction struct {
	Type    string       `msgpack:"type" json:"type"`
	Cancels []cancelWire `msgpack:"cancels" json:"cancels"`
}

type signatureWire struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

type exchangeRequest struct {
	Action       any           `json:"action"`
	Nonce        uint64        `json:"nonce"`
	Signature    signatureWire `json:"signature"`
	VaultAddress *string       `json:"vaultAddress"`
}

// exchangeResponse has "response" as an object on success and a string
// on failure.
type exchangeResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type orderStatus struct {
	Filled *struct {
		TotalSz string `json:"totalSz"`
		AvgPx   string `json:"avgPx"`
		OID     uint64 `json:"oid"`
	} `json:"filled,omitempty"`
	Resting *struct {
		OID uint64 `json:"oid"`
	} `json:"resting,omitempty"`
	Error string `json:"error,omitempty"`
}

type orderResponseData struct {
	Type string `json:"type"`
	Data struct {
		Statuses []json.RawMessage `json:"statuses"`
	} `json:"data"`
}

type userFill struct {
	Coin string `json:"coin"`
	Side string `json:"side"`
	Size string `json:"sz"`
	OID  uint64 `json:"oid"`
	Time int64  `json:"time"`
}

type clearinghouseState struct {
	MarginSummary struct {
		AccountValue string `json:"accountValue"`
	} `json:"marginSummary"`
	Withdrawable string `json:"withdrawable"`
}
