package rpc

import (
	"github.com/holiman/uint256"

	"ibco/native/assets"
	"ibco/native/bonds"
	"ibco/native/curve"
	"ibco/native/offering"
	"ibco/native/staking"
)

// Amounts travel as base unit decimal strings; prices as 18 decimal
// fractions.

type curveResponse struct {
	CurrentBucketIndex uint64 `json:"currentBucketIndex"`
	CurrentBucketPrice string `json:"currentBucketPrice"`
	TotalIssued        string `json:"totalIssued"`
	LastBucketIndex    uint64 `json:"lastBucketIndex"`
	RemainingInBucket  string `json:"remainingInBucketEUR"`
	InitialPrice       string `json:"initialPrice"`
	FullPrice          string `json:"fullPrice"`
	MaxSupply          string `json:"maxSupply"`
	BucketSize         string `json:"bucketSize"`
	Exponent           string `json:"exponent"`
}

type bucketResponse struct {
	Index uint64 `json:"index"`
	Price string `json:"price"`
}

type quoteResponse struct {
	Asset       string `json:"asset"`
	AmountIn    string `json:"amountIn"`
	USD         string `json:"usd"`
	EUR         string `json:"eur"`
	Units       string `json:"units"`
	EndSupply   string `json:"endSupply"`
	BucketIndex uint64 `json:"bucketIndex"`
	BucketPrice string `json:"bucketPrice"`
}

type assetResponse struct {
	Symbol         string `json:"symbol"`
	Token          string `json:"token"`
	TokenDecimals  uint8  `json:"tokenDecimals"`
	Oracle         string `json:"oracle"`
	OracleDecimals uint8  `json:"oracleDecimals"`
}

type bondPosition struct {
	ID          uint64 `json:"id"`
	PrincipalA  string `json:"principalA"`
	PrincipalB  string `json:"principalB"`
	RateBps     uint64 `json:"rateBps"`
	Start       uint64 `json:"start"`
	Maturity    uint64 `json:"maturity"`
	Status      string `json:"status"`
	PositionRef uint64 `json:"positionRef"`
}

type bondsResponse struct {
	Owner       string         `json:"owner"`
	Catastrophe bool           `json:"catastrophe"`
	Positions   []bondPosition `json:"positions"`
	Claimable   settlementView `json:"claimable"`
}

type settlementView struct {
	PrincipalA string `json:"principalA"`
	PrincipalB string `json:"principalB"`
	ProfitEUR  string `json:"profitEUR"`
	Reward     string `json:"reward"`
	Positions  int    `json:"positions"`
}

type stakingResponse struct {
	Owner       string `json:"owner"`
	Active      bool   `json:"active"`
	Catastrophe bool   `json:"catastrophe"`
	HasPosition bool   `json:"hasPosition"`
	TokenID     uint64 `json:"tokenId,omitempty"`
	Stake       string `json:"stake"`
	Reward      string `json:"reward"`
	Open        bool   `json:"open"`
}

type rangeResponse struct {
	Tick    int64 `json:"tick"`
	Lower   int64 `json:"lower"`
	Upper   int64 `json:"upper"`
	Widened bool  `json:"widened"`
	Clamped bool  `json:"clamped"`
}

func amount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func newCurveResponse(st curve.State, params curve.Params, last uint64, remaining *uint256.Int) curveResponse {
	return curveResponse{
		CurrentBucketIndex: st.CurrentBucketIndex,
		CurrentBucketPrice: curve.FormatPrice(st.CurrentBucketPrice),
		TotalIssued:        amount(st.TotalIssued),
		LastBucketIndex:    last,
		RemainingInBucket:  amount(remaining),
		InitialPrice:       curve.FormatPrice(params.InitialPrice),
		FullPrice:          curve.FormatPrice(params.FullPrice),
		MaxSupply:          amount(params.MaxSupply),
		BucketSize:         amount(params.BucketSize),
		Exponent:           params.Exponent.String(),
	}
}

func newQuoteResponse(res offering.Result) quoteResponse {
	return quoteResponse{
		Asset:       res.Asset,
		AmountIn:    amount(res.AmountIn),
		USD:         amount(res.USD),
		EUR:         amount(res.EUR),
		Units:       amount(res.Units),
		EndSupply:   amount(res.EndSupply),
		BucketIndex: res.BucketIndex,
		BucketPrice: curve.FormatPrice(res.BucketPrice),
	}
}

func newAssetResponse(e assets.Entry) assetResponse {
	return assetResponse{
		Symbol:         e.Symbol,
		Token:          e.Token.Hex(),
		TokenDecimals:  e.TokenDecimals,
		Oracle:         e.Oracle.Hex(),
		OracleDecimals: e.OracleDecimals,
	}
}

func newBondsResponse(book bonds.Book, st bonds.LedgerState, claim bonds.Settlement) bondsResponse {
	out := bondsResponse{
		Owner:       book.Owner.Hex(),
		Catastrophe: st.Catastrophe,
		Positions:   make([]bondPosition, 0, len(book.Positions)),
		Claimable: settlementView{
			PrincipalA: amount(claim.PrincipalA),
			PrincipalB: amount(claim.PrincipalB),
			ProfitEUR:  amount(claim.ProfitEUR),
			Reward:     amount(claim.Reward),
			Positions:  claim.Positions,
		},
	}
	for _, p := range book.Positions {
		out.Positions = append(out.Positions, bondPosition{
			ID:          p.ID,
			PrincipalA:  amount(p.PrincipalA),
			PrincipalB:  amount(p.PrincipalB),
			RateBps:     p.RateBps,
			Start:       p.Start,
			Maturity:    p.Maturity,
			Status:      bonds.Status(p.Status).String(),
			PositionRef: p.PositionRef,
		})
	}
	return out
}

func newStakingResponse(owner string, st staking.PoolState, pos staking.Position, found bool) stakingResponse {
	out := stakingResponse{
		Owner:       owner,
		Active:      st.Active,
		Catastrophe: st.Catastrophe,
		HasPosition: found,
		Stake:       "0",
		Reward:      "0",
	}
	if found {
		out.TokenID = pos.TokenID
		out.Stake = amount(pos.Stake)
		out.Reward = amount(pos.Reward)
		out.Open = pos.Open
	}
	return out
}
