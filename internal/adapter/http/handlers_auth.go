// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"net/http"

	"tensiometer/internal/app"

	"github.com/coreos/go-oidc/v3/oidc"
)

const sessionCookie = "session"

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := parseJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}

	token, err := s.authSvc.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, app.ErrInvalidCredentials) {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		log.Printf("login: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}

	s.setSessionCookie(w, r, token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := s.authSvc.Logout(r.Context(), token); err != nil {
			log.Printf("logout: %v", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetupUser(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := parseJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}

	user, err := s.authSvc.CreateInitialUser(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, app.ErrInvalidSetup):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrUsersExist):
		writeMessage(w, http.StatusConflict, "Setup already completed")
	case err != nil:
		log.Printf("setup user: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Server error")
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"status": "ok", "user": user})
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sso_enabled": s.oidcConfig.Enabled,
	})
}

func (s *Server) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	if !s.oidcConfig.Enabled {
		writeMessage(w, http.StatusNotFound, "SSO disabled")
		return
	}
	state, err := generateState()
	if err != nil {
		log.Printf("sso state: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode, // Lax required for cross-site redirect returns
		MaxAge:   300,
	})
	http.Redirect(w, r, s.oidcConfig.OAuth2Config.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	if !s.oidcConfig.Enabled {
		writeMessage(w, http.StatusNotFound, "SSO disabled")
		return
	}

	state, err := r.Cookie("oauth_state")
	if err != nil || r.URL.Query().Get("state") != state.Value {
		writeMessage(w, http.StatusBadRequest, "Invalid state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "oauth_state", MaxAge: -1, Path: "/"})

	token, err := s.oidcConfig.OAuth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		log.Printf("sso exchange: %v", err)
		writeMessage(w, http.StatusBadGateway, "Failed to exchange token")
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		writeMessage(w, http.StatusBadGateway, "No id_token")
		return
	}

	verifier := s.oidcConfig.Provider.Verifier(&oidc.Config{ClientID: s.oidcConfig.OAuth2Config.ClientID})
	idToken, err := verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		log.Printf("sso verify: %v", err)
		writeMessage(w, http.StatusUnauthorized, "Failed to verify token")
		return
	}

	var claims struct {
		Email string `json:"email"`
		Sub   string `json:"sub"`
	}
	if err := idToken.Claims(&claims); err != nil {
		writeMessage(w, http.StatusBadGateway, "Failed to parse claims")
		return
	}

	username := claims.Email
	if username == "" {
		username = claims.Sub
	}

	session, err := s.authSvc.LoginWithUser(r.Context(), username)
	if err != nil {
		log.Printf("sso login: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}

	s.setSessionCookie(w, r, session)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.authSvc.SessionTTL().Seconds()),
	})
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
