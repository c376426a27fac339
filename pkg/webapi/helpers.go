package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	solgate "github.com/solgatepay/solgate/pkg"
)

var httpCodeForError = map[string]int{
	string(solgate.BadRequest):        400,
	string(solgate.NotAvailable):      503,
	string(solgate.NotFound):          404,
	string(solgate.AlreadyExists):     409,
	string(solgate.Unauthorized):      401,
	string(solgate.InsufficientFunds): 402,
	string(solgate.DBConflict):        500,
	string(solgate.UnknownError):      500,
}

func HttpStatusForError(code solgate.ErrorCode) int {
	status, found := httpCodeForError[string(code)]
	if !found {
		status = http.StatusInternalServerError
	}
	return status
}

func sendResponse(w http.ResponseWriter, payload any) {
	// note: w.Header after this, so we can call sendError
	b, err := json.Marshal(payload)
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, "marshal", fmt.Sprintf("in json.Marshal: %s", err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store") // do not cache (Browsers cache GET forever by default)
	w.Write(b)
}

func sendBadRequest(w http.ResponseWriter, message string) {
	sendErrorResponse(w, http.StatusBadRequest, solgate.BadRequest, message)
}

func sendUnauthorized(w http.ResponseWriter, message string) {
	sendErrorResponse(w, http.StatusUnauthorized, solgate.Unauthorized, message)
}

func sendError(w http.ResponseWriter, where string, err error) {
	var info *solgate.ErrorInfo
	if errors.As(err, &info) {
		status := HttpStatusForError(info.Code)
		message := fmt.Sprintf("%s: %s", where, info.Message)
		sendErrorResponse(w, status, info.Code, message)
	} else {
		message := fmt.Sprintf("%s: %s", where, err.Error())
		sendErrorResponse(w, http.StatusInternalServerError, solgate.UnknownError, message)
	}
}

func sendErrorResponse(w http.ResponseWriter, statusCode int, code solgate.ErrorCode, message string) {
	log.Printf("[!] %s: %s\n", code, message)
	// would prefer to use json.Marshal, but this avoids the need
	// to handle encoding errors arising from json.Marshal itself!
	payload := fmt.Sprintf("{\"error\":{\"code\":%q,\"message\":%q}}", code, message)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store") // do not cache (Browsers cache GET forever by default)
	w.WriteHeader(statusCode)
	w.Write([]byte(payload))
}
