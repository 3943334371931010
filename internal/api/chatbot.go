package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mentorchat/backend/internal/orchestrator"
	apperrors "mentorchat/backend/pkg/errors"
	"mentorchat/backend/pkg/jwt"
	"mentorchat/backend/pkg/logger"
)

// TicketHeader carries the session ticket on requests that name a session.
const TicketHeader = "X-Session-Ticket"

// ChatbotHandler serves the 1:1 mentor endpoints.
type ChatbotHandler struct {
	orch          *orchestrator.Orchestrator
	tickets       *jwt.Service
	requireTicket bool
	logger        *logger.Logger
}

// NewChatbotHandler creates the handler. With requireTicket set, every
// request naming an existing session must present its ticket.
func NewChatbotHandler(orch *orchestrator.Orchestrator, tickets *jwt.Service, requireTicket bool, log *logger.Logger) *ChatbotHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &ChatbotHandler{orch: orch, tickets: tickets, requireTicket: requireTicket, logger: log.WithComponent("chatbot-api")}
}

// RegisterRoutesV1 registers the chatbot routes under /api/v1
func (h *ChatbotHandler) RegisterRoutesV1(v1 *gin.RouterGroup) {
	v1.GET("/personas", h.ListPersonas)
	v1.GET("/sessions/:id/messages", h.SessionMessages)

	chat := v1.Group("/chatbot")
	{
		chat.POST("", h.SendMessage)
		chat.POST("/init", h.Init)
		chat.POST("/reset", h.Reset)
		chat.POST("/analyze", h.Analyze)
	}
}

type initRequest struct {
	PersonaID string `json:"persona_id" binding:"required"`
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	PersonaID string `json:"persona_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
	Ticket    string `json:"ticket"`
}

type resetRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Ticket    string `json:"ticket"`
}

type analyzeRequest struct {
	PersonaID string `json:"persona_id" binding:"required"`
	Text      string `json:"text" binding:"required"`
}

type initResponse struct {
	*orchestrator.InitResult
	Ticket string `json:"ticket,omitempty"`
}

type messageResponse struct {
	*orchestrator.Reply
	Ticket string `json:"ticket,omitempty"`
}

func bindError(err error) *apperrors.AppError {
	return apperrors.BadRequestWithDetails(apperrors.CodeInvalidRequest, "Invalid request format", err.Error())
}

// ListPersonas returns every configured mentor
func (h *ChatbotHandler) ListPersonas(c *gin.Context) {
	personas := h.orch.Personas()
	c.JSON(http.StatusOK, gin.H{"personas": personas, "count": len(personas)})
}

// Init starts a session for a persona
func (h *ChatbotHandler) Init(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	res, err := h.orch.Init(c.Request.Context(), req.PersonaID)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusCreated, initResponse{InitResult: res, Ticket: h.issue(c, res.SessionID, res.PersonaID)})
}

// SendMessage answers one message. A request without session_id starts a
// new session and receives its ticket.
func (h *ChatbotHandler) SendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if req.SessionID != "" {
		if err := h.authorize(c, req.SessionID, req.Ticket); err != nil {
			_ = c.Error(toAppError(err))
			return
		}
	}

	reply, err := h.orch.Handle(c.Request.Context(), req.SessionID, req.PersonaID, req.Message)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}

	resp := messageResponse{Reply: reply}
	if req.SessionID == "" {
		resp.Ticket = h.issue(c, reply.SessionID, reply.PersonaID)
	}
	c.JSON(http.StatusOK, resp)
}

// Reset closes a session and opens a fresh one for the same persona
func (h *ChatbotHandler) Reset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if err := h.authorize(c, req.SessionID, req.Ticket); err != nil {
		_ = c.Error(toAppError(err))
		return
	}

	res, err := h.orch.Reset(c.Request.Context(), req.SessionID)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, initResponse{InitResult: res, Ticket: h.issue(c, res.SessionID, res.PersonaID)})
}

// Analyze returns a structured reading of an artifact
func (h *ChatbotHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	a, err := h.orch.Analyze(c.Request.Context(), req.PersonaID, req.Text)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, a)
}

// SessionMessages returns the history of a session
func (h *ChatbotHandler) SessionMessages(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.authorize(c, sessionID, c.Query("ticket")); err != nil {
		_ = c.Error(toAppError(err))
		return
	}

	msgs, err := h.orch.History(c.Request.Context(), sessionID)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "messages": msgs, "count": len(msgs)})
}

// authorize checks the ticket for sessionID. The header wins over the body.
// Without a ticket the request passes unless tickets are required.
func (h *ChatbotHandler) authorize(c *gin.Context, sessionID, bodyTicket string) error {
	ticket := strings.TrimSpace(c.GetHeader(TicketHeader))
	if ticket == "" {
		ticket = strings.TrimSpace(bodyTicket)
	}
	if ticket == "" {
		if h.requireTicket {
			return jwt.ErrInvalidToken
		}
		return nil
	}
	if h.tickets == nil {
		return nil
	}
	_, err := h.tickets.Verify(ticket, sessionID)
	return err
}

func (h *ChatbotHandler) issue(c *gin.Context, sessionID, personaID string) string {
	if h.tickets == nil {
		return ""
	}
	ticket, err := h.tickets.Issue(sessionID, personaID)
	if err != nil {
		logger.FromGin(c).LogError(err, "issue session ticket", "session_id", sessionID)
		return ""
	}
	return ticket
}
