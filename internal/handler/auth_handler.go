package handler

import (
	"net/http"

	"mirchi_backend/internal/middleware"
	"mirchi_backend/internal/model"
	"mirchi_backend/internal/service"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	service service.AuthService
	errs    ErrorResponder
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(s service.AuthService, errs ErrorResponder) *AuthHandler {
	return &AuthHandler{service: s, errs: errs}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := h.service.Register(c.Request.Context(), service.RegisterInput{
		Name:      req.Name,
		FirstName: req.FirstName,
		Email:     req.Email,
		Password:  req.Password,
		Phone:     req.Phone,
		Role:      req.Role,
	})
	if err != nil {
		h.errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered. Verify phone using OTP sent to your phone.",
		"user": gin.H{
			"id":            user.ID,
			"email":         user.Email,
			"phone":         user.Phone,
			"phoneVerified": user.PhoneVerified,
		},
		"token": token,
	})
}

func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req model.VerifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := h.service.VerifyOTP(c.Request.Context(), req.Phone, req.OTP)
	if err != nil {
		h.errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Phone verified",
		"token":   token,
		"user": gin.H{
			"id":            user.ID,
			"phoneVerified": user.PhoneVerified,
		},
	})
}

func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req model.ResendOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.service.ResendOTP(c.Request.Context(), req.Phone); err != nil {
		h.errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP sent to your phone."})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    user,
		"token":   token,
	})
}

// Me returns the authenticated user's record
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.AuthUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
		return
	}
	h.writeUser(c, userID)
}

// GetUserAdmin returns any user by id
func (h *AuthHandler) GetUserAdmin(c *gin.Context) {
	h.writeUser(c, c.Param("id"))
}

func (h *AuthHandler) writeUser(c *gin.Context, id string) {
	user, err := h.service.GetUser(c.Request.Context(), id)
	if err != nil {
		h.errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// RegisterAuthRoutes registers auth routes
func (h *AuthHandler) RegisterAuthRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, userMW gin.HandlerFunc) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/verify-otp", h.VerifyOTP)
		authGroup.POST("/resend-otp", h.ResendOTP)
		authGroup.POST("/login", h.Login)
		authGroup.GET("/me", authMW, userMW, h.Me)
	}
}

// RegisterAdminRoutes registers routes restricted to admins
func (h *AuthHandler) RegisterAdminRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, adminMW gin.HandlerFunc) {
	adminGroup := rg.Group("/admin", authMW, adminMW)
	{
		adminGroup.GET("/users/:id", h.GetUserAdmin)
	}
}
