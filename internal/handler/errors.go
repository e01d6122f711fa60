package handler

import (
	"errors"
	"net/http"

	"cyberchat-go/internal/conversation"
	"cyberchat-go/internal/prompt"
	"cyberchat-go/internal/service"
	"cyberchat-go/pkg/embedding"
	"cyberchat-go/pkg/llm"
	"cyberchat-go/pkg/token"
	"cyberchat-go/pkg/vectorindex"
)

// errorResponse maps a pipeline error to an HTTP status and a message safe to show to users.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyQuery):
		return http.StatusBadRequest, "message must not be empty"
	case errors.Is(err, llm.ErrUnknownProvider):
		return http.StatusBadRequest, "unknown model"
	case errors.Is(err, vectorindex.ErrInvalidTopK):
		return http.StatusBadRequest, "topK must be a positive integer"
	case errors.Is(err, conversation.ErrTurnInFlight):
		return http.StatusConflict, "a response is already being generated for this session"
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, token.ErrInvalidToken), errors.Is(err, conversation.ErrSessionClosed):
		return http.StatusUnauthorized, "invalid or expired session"
	case errors.Is(err, service.ErrTurnCanceled):
		return http.StatusRequestTimeout, "response stopped"
	case errors.Is(err, embedding.ErrEmbeddingFailure):
		return http.StatusBadGateway, "could not analyse the question, please retry"
	case errors.Is(err, vectorindex.ErrRetrievalFailure):
		return http.StatusBadGateway, "knowledge base temporarily unavailable, please retry"
	case errors.Is(err, llm.ErrStreamInterrupted):
		return http.StatusBadGateway, "the response was interrupted"
	case errors.Is(err, llm.ErrCompletionFailure):
		return http.StatusBadGateway, "AI service temporarily unavailable, please retry"
	case errors.Is(err, prompt.ErrPromptAssembly):
		return http.StatusInternalServerError, "could not build the prompt"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
