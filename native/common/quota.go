package common

import (
	"math"

	coreerrors "ibco/core/errors"
)

var (
	ErrQuotaRequestsExceeded = coreerrors.New(coreerrors.KindInvalidRange, "quota requests exceeded")
	ErrQuotaAmountExceeded   = coreerrors.New(coreerrors.KindInvalidRange, "quota amount cap exceeded")
	ErrQuotaCounterOverflow  = coreerrors.New(coreerrors.KindArithmeticBounds, "quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount   uint32
	AmountUsed uint64
	EpochID    uint64
}

// Quota defines the limits enforced for a module interaction per address.
// Zero limits disable the corresponding check.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxAmountPerEpoch   uint64
	EpochSeconds        uint32
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.MaxRequestsPerEpoch > 0 || q.MaxAmountPerEpoch > 0
}

// EpochOf maps a unix timestamp onto the quota epoch.
func (q Quota) EpochOf(unix uint64) uint64 {
	if q.EpochSeconds == 0 {
		return 0
	}
	return unix / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether the additional request and amount usage fit within the
// configured quota. The returned QuotaNow reflects the updated counters when the
// quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addAmount uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addAmount > 0 {
		if next.AmountUsed > math.MaxUint64-addAmount {
			return prev, ErrQuotaCounterOverflow
		}
		next.AmountUsed += addAmount
	}
	if q.MaxAmountPerEpoch > 0 && next.AmountUsed > q.MaxAmountPerEpoch {
		return prev, ErrQuotaAmountExceeded
	}

	return next, nil
}
