package okx

import "encoding/json"

// envelope is the common OKX v5 response wrapper. Code "0" is success.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type instrument struct {
	InstID    string `json:"instId"`
	InstType  string `json:"instType"`
	BaseCcy   string `json:"baseCcy"`
	QuoteCcy  string `json:"quoteCcy"`
	SettleCcy string `json:"settleCcy"`
	CtVal     string `json:"ctVal"`
	CtValCcy  string `json:"ctValCcy"`
	LotSz     string `json:"lotSz"`
	MinSz     string `json:"minSz"`
	State     string `json:"state"`
}

type ticker struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	BidPx  string `json:"bidPx"`
	AskPx  string `json:"askPx"`
	Ts     string `json:"ts"`
}

type book struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

type balanceDetail struct {
	Ccy       string `json:"ccy"`
	AvailBal  string `json:"availBal"`
	FrozenBal string `json:"frozenBal"`
	Eq        string `json:"eq"`
}

type balanceData struct {
	Details []balanceDetail `json:"details"`
}

type attachAlgo struct {
	SlTriggerPx string `json:"slTriggerPx"`
	SlOrdPx     string `json:"slOrdPx"`
}

type placeOrder struct {
	InstID         string       `json:"instId"`
	TdMode         string       `json:"tdMode"`
	Side           string       `json:"side"`
	OrdType        string       `json:"ordType"`
	Sz             string       `json:"sz"`
	Px             string       `json:"px,omitempty"`
	TgtCcy         string       `json:"tgtCcy,omitempty"`
	AttachAlgoOrds []attachAlgo `json:"attachAlgoOrds,omitempty"`
}

type placeResult struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
	Ts      string `json:"ts"`
}

type orderDetail struct {
	OrdID     string `json:"ordId"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	AvgPx     string `json:"avgPx"`
	AccFillSz string `json:"accFillSz"`
	State     string `json:"state"`
	CTime     string `json:"cTime"`
}
