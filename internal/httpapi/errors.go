package httpapi

import (
	"encoding/json"
	"net/http"

	"example.com/degenpizza/internal/game"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, ErrorResponse{Code: errCode, Message: msg})
}

// writeGameError maps a coordinator rejection to its HTTP status.
func writeGameError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(game.KindOf(err)), game.CodeOf(err), err.Error())
}

func statusFor(k game.Kind) int {
	switch k {
	case game.KindValidation:
		return http.StatusBadRequest
	case game.KindAuth:
		return http.StatusForbidden
	case game.KindPhase, game.KindConflict:
		return http.StatusConflict
	case game.KindResource:
		return http.StatusUnprocessableEntity
	case game.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
