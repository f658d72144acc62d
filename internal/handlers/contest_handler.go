package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"secretcontest/internal/models"
	"secretcontest/internal/services"
)

type ContestHandler struct {
	service  services.ContestService
	resolver *services.ActorResolver
}

func NewContestHandler(service services.ContestService, resolver *services.ActorResolver) *ContestHandler {
	return &ContestHandler{service: service, resolver: resolver}
}

type StatusResponse struct {
	OK     bool `json:"ok" example:"true"`
	Closed bool `json:"closed" example:"false"`
}

type EnterCodeRequest struct {
	Code string `json:"code" example:"7Q2K"`
}

type EnterCodeResponse struct {
	OK         bool   `json:"ok" example:"true"`
	ClaimToken string `json:"claimToken"`
}

type SubmitContactRequest struct {
	ClaimToken string  `json:"claimToken" binding:"required"`
	Name       string  `json:"name" binding:"required,max=200" example:"Ada"`
	Email      string  `json:"email" binding:"required,email,max=320" example:"ada@example.com"`
	Phone      *string `json:"phone,omitempty" binding:"omitempty,max=50" example:"+15550100"`
}

type SubmitContactResponse struct {
	OK       bool `json:"ok" example:"true"`
	Notified bool `json:"notified"`
}

// @Summary      Contest status
// @Description  Reports whether the contest already has a winner
// @Tags         Contest
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /api/status [get]
func (h *ContestHandler) Status(c *gin.Context) {
	closed, err := h.service.Status(c.Request.Context())
	if err != nil {
		respondError(c, "status", err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{OK: true, Closed: closed})
}

// @Summary      Enter the secret code
// @Description  Checks a guess. The first correct guess wins and receives a single-use claim token.
// @Tags         Contest
// @Accept       json
// @Produce      json
// @Param        body  body      EnterCodeRequest  true  "Guess"
// @Success      200   {object}  EnterCodeResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Failure      429   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /api/enter-code [post]
func (h *ContestHandler) EnterCode(c *gin.Context) {
	var req EnterCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondReason(c, http.StatusBadRequest, models.ReasonInvalidFormat)
		return
	}

	token, err := h.service.EnterCode(c.Request.Context(), actorFromContext(c, h.resolver), req.Code)
	if err != nil {
		respondError(c, "enter-code", err)
		return
	}
	c.JSON(http.StatusOK, EnterCodeResponse{OK: true, ClaimToken: token})
}

// @Summary      Submit winner contact
// @Description  Stores the winner's contact details once, authorised by the claim token
// @Tags         Contest
// @Accept       json
// @Produce      json
// @Param        body  body      SubmitContactRequest  true  "Contact details"
// @Success      200   {object}  SubmitContactResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /api/submit-contact [post]
func (h *ContestHandler) SubmitContact(c *gin.Context) {
	var req SubmitContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondReason(c, http.StatusBadRequest, models.ReasonInvalidFormat)
		return
	}

	notified, err := h.service.SubmitContact(c.Request.Context(), actorFromContext(c, h.resolver), services.ContactSubmission{
		ClaimToken: req.ClaimToken,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
	})
	if err != nil {
		respondError(c, "submit-contact", err)
		return
	}
	c.JSON(http.StatusOK, SubmitContactResponse{OK: true, Notified: notified})
}
