package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/migration-estimator-api/internal/models"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
	"github.com/noah-isme/migration-estimator-api/pkg/response"
)

type tokenIssuer interface {
	IssueToken(user models.User, ttl time.Duration) (string, error)
}

type userLookup interface {
	ByEmail(ctx context.Context, email string) (*models.User, error)
}

// DevTokenRequest names the stored user to impersonate.
type DevTokenRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// DevTokenResponse carries a signed bearer token.
type DevTokenResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// AuthHandler issues local development tokens. Production tokens come from
// the directory service, so the route is only mounted outside production.
type AuthHandler struct {
	tokens tokenIssuer
	users  userLookup
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(tokens tokenIssuer, users userLookup, ttl time.Duration) *AuthHandler {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthHandler{tokens: tokens, users: users, ttl: ttl, now: time.Now}
}

// DevToken godoc
// @Summary Issue a development token
// @Description Signs a token for an existing active user. Not available in production.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body handler.DevTokenRequest true "User email"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/dev-token [post]
func (h *AuthHandler) DevToken(c *gin.Context) {
	var req DevTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid token request"))
		return
	}

	user, err := h.users.ByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !user.Active {
		response.Error(c, appErrors.ErrInactiveAccount)
		return
	}

	expiresAt := h.now().UTC().Add(h.ttl)
	token, err := h.tokens.IssueToken(*user, h.ttl)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, DevTokenResponse{AccessToken: token, ExpiresAt: expiresAt}, nil)
}
