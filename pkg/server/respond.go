package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/stormrose-io/filegate/internal/logger"
)

// Response headers carrying the out-of-band result envelope. Clients
// that cannot read the body (script-callback uploads inside an iframe)
// introspect these instead.
const (
	headerModelType = "X-Model-Type"
	headerResult    = "X-Result"
)

// writeResult writes v as the JSON body and duplicates it, base64
// encoded, into the X-Result header next to the X-Model-Type
// discriminator.
func writeResult(w http.ResponseWriter, modelType string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error("respond: marshal %s result: %v", modelType, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set(headerModelType, modelType)
	w.Header().Set(headerResult, base64.StdEncoding.EncodeToString(body))
	w.Header().Add("Access-Control-Expose-Headers", headerModelType+", "+headerResult)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logger.Debug("respond: write %s result: %v", modelType, err)
	}
}
