package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-auth-core/oauthmodel"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	body := map[string]string{"error": errorCode}
	if description != "" {
		body["error_description"] = description
	}
	writeJSON(w, statusCode, body)
}

// writeProtocolError renders err as an RFC 6749 §5.2 error. Only the code and
// description reach the client; the internal cause does not.
func writeProtocolError(w http.ResponseWriter, err error) {
	pe := oauthmodel.FromError(err)
	if pe.Code == oauthmodel.InvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
	}
	writeJSONError(w, string(pe.Code), pe.Description, pe.StatusCode())
}
