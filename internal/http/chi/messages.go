package chi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/httplog"
	"github.com/marcelsud/dmz-exchange/exchange"
	"github.com/marcelsud/dmz-exchange/internal/requestid"
	"github.com/marcelsud/dmz-exchange/signature"
)

/* HTTP layer DTOs for the message API
 * Failures always carry the same fixed message; details stay in the logs.
 */

const invalidRequest = "Invalid request"

// messageResponse is the envelope of both message endpoints
type messageResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// postMessages handles POST /messages: locally authored, forwarded to the gateway
func postMessages(svc exchange.UseCase, maxBody int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r, maxBody)
		if !ok {
			return
		}

		receipt, err := svc.Send(r.Context(), body)
		respond(w, r, receipt, err, http.StatusServiceUnavailable)
	})
}

// postDMZMessages handles POST /dmz/messages: relayed by the gateway, persisted locally
func postDMZMessages(svc exchange.UseCase, maxBody int64, secret *signature.Secret) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r, maxBody)
		if !ok {
			return
		}

		if secret != nil {
			if err := secret.Verify(r.Header, body, time.Now(), signature.DefaultTolerance); err != nil {
				oplog := httplog.LogEntry(r.Context())
				oplog.Warn().Err(err).Msg("gateway signature check failed")
				writeFailure(w, r, http.StatusBadRequest)
				return
			}
		}

		receipt, err := svc.Receive(r.Context(), body)
		respond(w, r, receipt, err, http.StatusInternalServerError)
	})
}

// readBody reads at most maxBody bytes; an unreadable body is a client error
func readBody(w http.ResponseWriter, r *http.Request, maxBody int64) ([]byte, bool) {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		oplog := httplog.LogEntry(r.Context())
		oplog.Warn().Err(err).Msg("reading request body")
		writeFailure(w, r, http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

// respond maps the pipeline result to a status: client errors are 400, node errors serverStatus
func respond(w http.ResponseWriter, r *http.Request, receipt exchange.Receipt, err error, serverStatus int) {
	if err != nil {
		status := serverStatus
		if rej, ok := exchange.AsRejection(err); ok && rej.Kind.IsClientError() {
			status = http.StatusBadRequest
		}
		writeFailure(w, r, status)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Success:   true,
		RequestID: requestid.FromContext(r.Context()),
		MessageID: receipt.MessageID,
	})
}

func writeFailure(w http.ResponseWriter, r *http.Request, status int) {
	writeJSON(w, status, messageResponse{
		Success:   false,
		RequestID: requestid.FromContext(r.Context()),
		Error:     invalidRequest,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
