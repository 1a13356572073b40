package rpc

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"ibco/native/bonds"
	"ibco/native/curve"
	"ibco/native/liquidity"
)

func (s *server) handleCurve(w http.ResponseWriter, r *http.Request) {
	var resp curveResponse
	err := s.view(func() error {
		st, err := s.cfg.Curve.State()
		if err != nil {
			return err
		}
		schedule := s.cfg.Curve.Schedule()
		remaining, err := schedule.RemainingCapacity(st.TotalIssued)
		if err != nil {
			return err
		}
		resp = newCurveResponse(st, schedule.Params(), schedule.LastBucketIndex(), remaining)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleBucket(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: index: %v", errBadRequest, err))
		return
	}
	schedule := s.cfg.Curve.Schedule()
	if index > schedule.LastBucketIndex() {
		s.writeError(w, fmt.Errorf("%w: %d > %d", errNoBucket, index, schedule.LastBucketIndex()))
		return
	}
	price, err := schedule.PriceOfBucket(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bucketResponse{Index: index, Price: curve.FormatPrice(price)})
}

func (s *server) handleQuote(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	symbol := strings.TrimSpace(query.Get("asset"))
	if symbol == "" {
		s.writeError(w, fmt.Errorf("%w: asset is required", errBadRequest))
		return
	}
	amountIn, err := uint256.FromDecimal(strings.TrimSpace(query.Get("amount")))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: amount: %v", errBadRequest, err))
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()

	var resp quoteResponse
	err = s.view(func() error {
		res, err := s.cfg.Quoter.Quote(ctx, amountIn, symbol)
		if err != nil {
			return err
		}
		resp = newQuoteResponse(res)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleAssets(w http.ResponseWriter, r *http.Request) {
	resp := []assetResponse{}
	err := s.view(func() error {
		list, err := s.cfg.Assets.List()
		if err != nil {
			return err
		}
		for _, entry := range list {
			resp = append(resp, newAssetResponse(entry))
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleBonds(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Bonds == nil {
		s.writeError(w, errDisabled)
		return
	}
	owner, err := ownerParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()

	var resp bondsResponse
	err = s.view(func() error {
		st, err := s.cfg.Bonds.State()
		if err != nil {
			return err
		}
		book, err := s.cfg.Bonds.Book(owner)
		if err != nil {
			return err
		}
		claim := bonds.Settlement{}
		if !st.Catastrophe {
			if claim, err = s.cfg.Bonds.ClaimableReward(ctx, owner); err != nil {
				return err
			}
		}
		resp = newBondsResponse(book, st, claim)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleStaking(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Staking == nil {
		s.writeError(w, errDisabled)
		return
	}
	owner, err := ownerParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var resp stakingResponse
	err = s.view(func() error {
		st, err := s.cfg.Staking.State()
		if err != nil {
			return err
		}
		pos, found, err := s.cfg.Staking.Position(owner)
		if err != nil {
			return err
		}
		resp = newStakingResponse(owner.Hex(), st, pos, found)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleRange(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ranges == nil {
		s.writeError(w, errDisabled)
		return
	}
	tick, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("tick")), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: tick: %v", errBadRequest, err))
		return
	}
	selected, err := liquidity.SelectRange(s.cfg.Ranges(tick))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rangeResponse{
		Tick:    tick,
		Lower:   selected.Lower,
		Upper:   selected.Upper,
		Widened: selected.Widened,
		Clamped: selected.Clamped,
	})
}

func ownerParam(r *http.Request) (common.Address, error) {
	raw := chi.URLParam(r, "owner")
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: owner %q is not an address", errBadRequest, raw)
	}
	return common.HexToAddress(raw), nil
}
