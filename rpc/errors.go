package rpc

import (
	"encoding/json"
	"log/slog"
	"net/http"

	coreerrors "ibco/core/errors"
)

var (
	errBadRequest = coreerrors.New(coreerrors.KindInvalid, "rpc: bad request")
	errDisabled   = coreerrors.New(coreerrors.KindNotFound, "rpc: endpoint disabled")
	errNoBucket   = coreerrors.New(coreerrors.KindInvalidRange, "rpc: bucket index beyond last bucket")
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func statusFor(kind coreerrors.Kind) int {
	switch kind {
	case coreerrors.KindUnauthorized:
		return http.StatusForbidden
	case coreerrors.KindNotFound:
		return http.StatusNotFound
	case coreerrors.KindInvalidRange, coreerrors.KindInvalid:
		return http.StatusBadRequest
	case coreerrors.KindInsufficientBalance, coreerrors.KindAlreadyInState:
		return http.StatusConflict
	case coreerrors.KindArithmeticBounds:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": label, "kind": kind}. Errors outside
// the taxonomy are reported as internal without their message.
func (s *server) writeError(w http.ResponseWriter, err error) {
	kind := coreerrors.KindOf(err)
	status := statusFor(kind)
	body := errorBody{Error: coreerrors.Label(err), Kind: string(kind)}
	if kind == "" {
		s.log.Error("query failed", slog.Any("error", err))
		body = errorBody{Error: "internal error", Kind: "internal"}
	}
	if rec, ok := w.(*statusRecorder); ok {
		rec.kind = body.Kind
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
