package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/CrowderSoup/taskcollab/models"
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")
)

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "auth/login", nil, req, &resp, "Login failed"); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, &APIError{Op: "Login failed", StatusCode: http.StatusOK, Message: "Login failed", Err: ErrMalformedToken}
	}
	return &resp, nil
}

// Register creates an account and returns its first token.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "auth/register", nil, req, &resp, "Registration failed"); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, &APIError{Op: "Registration failed", StatusCode: http.StatusOK, Message: "Registration failed", Err: ErrMalformedToken}
	}
	return &resp, nil
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "auth/me", nil, nil, &user, "Failed to fetch current user"); err != nil {
		return nil, err
	}
	return &user, nil
}

// InspectToken reads a bearer token without verifying its signature, which
// only the server can do. It rejects tokens that are not JWTs and tokens whose
// exp claim is already in the past. Tokens without exp are accepted.
func InspectToken(token string, now time.Time) (*time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if exp == nil {
		return nil, nil
	}
	if !exp.After(now) {
		return &exp.Time, ErrTokenExpired
	}
	return &exp.Time, nil
}
