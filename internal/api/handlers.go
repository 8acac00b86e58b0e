package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrWong99/lorekeeper/internal/chat"
	"github.com/MrWong99/lorekeeper/internal/feedback"
	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// maxMessageLimit caps the limit query parameter of the message list.
const maxMessageLimit = 500

type createSessionRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

type askRequest struct {
	Message             string   `json:"message" binding:"required"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
	ContentTypes        []string `json:"content_types"`
}

type feedbackRequest struct {
	Rating  string `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type messageResponse struct {
	ID                  string       `json:"id"`
	Message             string       `json:"message"`
	Response            string       `json:"response"`
	TokensUsed          int          `json:"tokens_used"`
	SimilarityThreshold float64      `json:"similarity_threshold"`
	ContentTypes        []string     `json:"content_types"`
	Sources             lore.Sources `json:"sources"`
	CreatedAt           time.Time    `json:"created_at"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	// An empty body creates an anonymous, untitled session.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithClientError(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sess, err := s.chat.CreateSession(c.Request.Context(), req.UserID, req.Title)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{
		ID:        sess.ID,
		UserID:    sess.UserID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
	})
}

func (s *Server) listMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondWithClientError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxMessageLimit)
	}

	msgs, err := s.chat.Messages(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondWithError(c, err)
		return
	}
	out := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		types := make([]string, len(m.ContentTypes))
		for j, t := range m.ContentTypes {
			types[j] = string(t)
		}
		out[i] = messageResponse{
			ID:                  m.ID,
			Message:             m.Message,
			Response:            m.Response,
			TokensUsed:          m.TokensUsed,
			SimilarityThreshold: m.SimilarityThreshold,
			ContentTypes:        types,
			Sources:             m.Sources,
			CreatedAt:           m.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

func (s *Server) sessionMessage(c *gin.Context) {
	s.answer(c, c.Param("id"))
}

func (s *Server) ask(c *gin.Context) {
	s.answer(c, "")
}

func (s *Server) answer(c *gin.Context, sessionID string) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "message is required")
		return
	}
	if t := req.SimilarityThreshold; t != nil && (*t < 0 || *t > 1) {
		respondWithClientError(c, http.StatusBadRequest, "similarity_threshold must be in [0, 1]")
		return
	}

	types := make([]lore.ContentType, len(req.ContentTypes))
	for i, t := range req.ContentTypes {
		types[i] = lore.ContentType(t)
	}

	resp, err := s.chat.Ask(c.Request.Context(), chat.Request{
		SessionID:           sessionID,
		Message:             req.Message,
		SimilarityThreshold: req.SimilarityThreshold,
		ContentTypes:        types,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) messageFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "rating is required")
		return
	}
	rating := feedback.Rating(req.Rating)
	if !rating.Valid() {
		respondWithClientError(c, http.StatusBadRequest, feedback.ErrInvalidRating.Error())
		return
	}

	ctx := c.Request.Context()
	sessionID, messageID := c.Param("id"), c.Param("mid")
	msgs, err := s.chat.Messages(ctx, sessionID, 0)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if !slices.ContainsFunc(msgs, func(m lore.ChatMessage) bool { return m.ID == messageID }) {
		respondWithClientError(c, http.StatusNotFound, "message not found")
		return
	}

	err = s.feedback.Save(ctx, feedback.Record{
		SessionID: sessionID,
		MessageID: messageID,
		Rating:    rating,
		Comment:   req.Comment,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondWithError maps err to a status code. Server-side failures are logged
// and answered with a generic message.
func respondWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrInvalidContentType):
		respondWithClientError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, lore.ErrNotFound):
		respondWithClientError(c, http.StatusNotFound, "session not found")
	case errors.Is(err, context.DeadlineExceeded):
		respondWithClientError(c, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the body.
		c.Status(499)
	default:
		observe.Logger(c.Request.Context()).Error("api: request failed", "route", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func respondWithClientError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
