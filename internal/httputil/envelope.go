// Package httputil implements the uniform response envelope and the mapping
// from domain errors to HTTP statuses. Handlers never write raw errors.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stratumhq/stratum/pkg/domain"
)

// MessageType classifies an envelope message.
type MessageType string

const (
	MessageError   MessageType = "Error"
	MessageSuccess MessageType = "Success"
	MessageInfo    MessageType = "Info"
	MessageWarning MessageType = "Warning"
)

// Message is one entry of the envelope's messages list.
type Message struct {
	Text string      `json:"text"`
	Code string      `json:"code"`
	Type MessageType `json:"type"`
}

// Envelope is the uniform response shape every endpoint returns.
type Envelope struct {
	Messages []Message `json:"messages"`
	Data     any       `json:"data,omitempty"`
	Items    any       `json:"items,omitempty"`
}

// JSON writes an arbitrary JSON body. Non-envelope responses (health checks)
// go through here.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Data writes an envelope carrying a single object.
func Data(w http.ResponseWriter, status int, data any) {
	JSON(w, status, Envelope{Messages: []Message{}, Data: data})
}

// Items writes an envelope carrying a list.
func Items(w http.ResponseWriter, status int, items any) {
	JSON(w, status, Envelope{Messages: []Message{}, Items: items})
}

// Error writes an envelope with a single error message.
func Error(w http.ResponseWriter, status int, code, text string) {
	JSON(w, status, Envelope{Messages: []Message{{Text: text, Code: code, Type: MessageError}}})
}

// DomainError maps a domain error to the envelope and an HTTP status.
// Anything that is not a *domain.Error is an unhandled internal error and
// surfaces as an opaque 500.
func DomainError(w http.ResponseWriter, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		Error(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	messages := []Message{{Text: derr.Message, Code: derr.Code, Type: MessageError}}
	for _, f := range derr.Fields {
		messages = append(messages, Message{
			Text: f.Field + ": " + f.Message,
			Code: f.Code,
			Type: MessageError,
		})
	}

	JSON(w, StatusFor(derr.Kind), Envelope{Messages: messages})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden, domain.KindConflict, domain.KindIdentity:
		return http.StatusForbidden
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
