package webhook

import (
	"errors"
	"io"
	"log"
	"net/http"
)

// SignatureHeader carries the hex HMAC of the request body.
const SignatureHeader = "X-Esign-Signature"

const maxBodyBytes = 1 << 20

// Handler adapts the processor to the provider's HTTP callback. The provider
// retries any non-2xx response, so only retryable failures return one.
type Handler struct {
	processor *Processor
}

func NewHandler(p *Processor) *Handler {
	return &Handler{processor: p}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		// An oversized or truncated callback stays that way on redelivery;
		// acknowledge it like any other malformed payload.
		log.Printf("webhook: read body: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	err = h.processor.Handle(r.Context(), body, r.Header.Get(SignatureHeader))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrBadSignature):
		http.Error(w, "invalid signature", http.StatusUnauthorized)
	default:
		log.Printf("webhook: processing failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
