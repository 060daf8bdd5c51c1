package models

// PersistedRow is one contract of one stored capture, flattened for the store.
type PersistedRow struct {
	LoadDate      string   `json:"loadDate" csv:"load_date"`
	LoadTime      string   `json:"loadTime" csv:"load_time"`
	ExpiryGroup   string   `json:"expiryGroup" csv:"expiry_group"`
	SpotPrice     float64  `json:"spotPrice" csv:"spot_price"`
	PreviousClose float64  `json:"previousClose" csv:"prev_close"`
	Strike        float64  `json:"strike" csv:"strike"`
	Right         string   `json:"right" csv:"option_right"`
	Price         float64  `json:"price" csv:"price"`
	Bid           float64  `json:"bid" csv:"bid"`
	Ask           float64  `json:"ask" csv:"ask"`
	OpenInterest  int64    `json:"openInterest" csv:"open_interest"`
	Volume        int64    `json:"volume" csv:"volume"`
	IV            *float64 `json:"iv,omitempty" csv:"implied_vol"`
}

// MetricsRow is one stored ExpiryMetrics record.
type MetricsRow struct {
	LoadDate     string   `json:"loadDate" csv:"load_date"`
	LoadTime     string   `json:"loadTime" csv:"load_time"`
	ExpiryGroup  string   `json:"expiryGroup" csv:"expiry_group"`
	SpotPrice    float64  `json:"spotPrice" csv:"spot_price"`
	ATMStrike    *float64 `json:"atmStrike,omitempty" csv:"atm_strike"`
	CallIV       *float64 `json:"callIv,omitempty" csv:"call_iv"`
	PutIV        *float64 `json:"putIv,omitempty" csv:"put_iv"`
	AverageIV    *float64 `json:"averageIv,omitempty" csv:"avg_iv"`
	Upper        *float64 `json:"upper,omitempty" csv:"upper"`
	Lower        *float64 `json:"lower,omitempty" csv:"lower"`
	ExpectedMove *float64 `json:"expectedMove,omitempty" csv:"expected_move"`
}
