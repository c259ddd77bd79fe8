package hyperliquid

import (
	"encoding/json"

	"github.com/Hidayat0507/tradebot/internal/crypto"
)

// Info endpoint payloads.

type infoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
	Coin string `json:"coin,omitempty"`
	Req  any    `json:"req,omitempty"`
}

type candleRequest struct {
	Coin      string `json:"coin"`
	Interval  string `json:"interval"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

type perpMeta struct {
	Universe []struct {
		Name        string `json:"name"`
		SzDecimals  int    `json:"szDecimals"`
		MaxLeverage int    `json:"maxLeverage"`
		IsDelisted  bool   `json:"isDelisted"`
	} `json:"universe"`
}

type spotMeta struct {
	Universe []struct {
		Name   string `json:"name"`
		Tokens []int  `json:"tokens"`
		Index  int    `json:"index"`
	} `json:"universe"`
	Tokens []struct {
		Name       string `json:"name"`
		SzDecimals int    `json:"szDecimals"`
		Index      int    `json:"index"`
	} `json:"tokens"`
}

type l2Level struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

type l2Book struct {
	Coin   string      `json:"coin"`
	Time   int64       `json:"time"`
	Levels [][]l2Level `json:"levels"`
}

type candle struct {
	T int64  `json:"t"`
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
	V string `json:"v"`
}

type clearinghouseState struct {
	MarginSummary struct {
		AccountValue string `json:"accountValue"`
	} `json:"marginSummary"`
	Withdrawable   string `json:"withdrawable"`
	AssetPositions []struct {
		Position struct {
			Coin string `json:"coin"`
			Szi  string `json:"szi"`
		} `json:"position"`
	} `json:"assetPositions"`
}

type spotClearinghouseState struct {
	Balances []struct {
		Coin  string `json:"coin"`
		Total string `json:"total"`
		Hold  string `json:"hold"`
	} `json:"balances"`
}

// Exchange endpoint payloads. Field order is significant: the action is
// msgpack-encoded in declaration order before hashing.

type orderAction struct {
	Type     string      `msgpack:"type" json:"type"`
	Orders   []orderWire `msgpack:"orders" json:"orders"`
	Grouping string      `msgpack:"grouping" json:"grouping"`
}

type orderWire struct {
	Asset      int           `msgpack:"a" json:"a"`
	IsBuy      bool          `msgpack:"b" json:"b"`
	Price      string        `msgpack:"p" json:"p"`
	Size       string        `msgpack:"s" json:"s"`
	ReduceOnly bool          `msgpack:"r" json:"r"`
	OrderType  orderTypeWire `msgpack:"t" json:"t"`
}

type orderTypeWire struct {
	Limit   *limitWire   `msgpack:"limit,omitempty" json:"limit,omitempty"`
	Trigger *triggerWire `msgpack:"trigger,omitempty" json:"trigger,omitempty"`
}

type limitWire struct {
	Tif string `msgpack:"tif" json:"tif"`
}

type triggerWire struct {
	IsMarket  bool   `msgpack:"isMarket" json:"isMarket"`
	TriggerPx string `msgpack:"triggerPx" json:"triggerPx"`
	Tpsl      string `msgpack:"tpsl" json:"tpsl"`
}

type exchangeRequest struct {
	Action       orderAction      `json:"action"`
	Nonce        int64            `json:"nonce"`
	Signature    crypto.Signature `json:"signature"`
	VaultAddress *string          `json:"vaultAddress"`
}

// exchangeResponse.Response is a string when Status is "err".
type exchangeResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type orderResponse struct {
	Type string `json:"type"`
	Data struct {
		Statuses []orderStatus `json:"statuses"`
	} `json:"data"`
}

type orderStatus struct {
	Filled *struct {
		TotalSz string `json:"totalSz"`
		AvgPx   string `json:"avgPx"`
		Oid     int64  `json:"oid"`
	} `json:"filled,omitempty"`
	Resting *struct {
		Oid int64 `json:"oid"`
	} `json:"resting,omitempty"`
	Error string `json:"error,omitempty"`
}
