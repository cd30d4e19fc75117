package devapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"kanban-sync/domain"
)

const (
	tokenTTL   = 24 * time.Hour
	userCtxKey = "devapi.user"
)

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentialsResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) signup(c echo.Context) error {
	var req credentialsRequest
	if err := decode(c, &req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	if name == "" || email == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "Name, email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		s.logger.WithError(err).Error("hash password")
		return fail(c, http.StatusInternalServerError, "")
	}

	s.mu.Lock()
	if _, exists := s.accounts[email]; exists {
		s.mu.Unlock()
		return fail(c, http.StatusConflict, "")
	}
	acct := &account{
		user:         domain.User{ID: uuid.NewString(), Name: name, Email: email},
		passwordHash: hash,
	}
	s.accounts[email] = acct
	s.mu.Unlock()

	return s.issue(c, http.StatusCreated, acct.user)
}

func (s *Server) login(c echo.Context) error {
	var req credentialsRequest
	if err := decode(c, &req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "")
	}
	s.mu.Lock()
	acct, ok := s.accounts[email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(req.Password)) != nil {
		return fail(c, http.StatusUnauthorized, "")
	}
	return s.issue(c, http.StatusOK, acct.user)
}

func (s *Server) issue(c echo.Context, status int, user domain.User) error {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"name":  user.Name,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		s.logger.WithError(err).Error("sign token")
		return fail(c, http.StatusInternalServerError, "")
	}
	return respond(c, status, credentialsResponse{Token: signed, User: user})
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := s.userFromHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return fail(c, http.StatusUnauthorized, "Not authorized")
		}
		c.Set(userCtxKey, user)
		return next(c)
	}
}

func (s *Server) userFromHeader(h string) (domain.User, error) {
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return domain.User{}, errors.New("bad auth header")
	}
	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return domain.User{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.User{}, errors.New("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return domain.User{}, errors.New("missing sub")
	}
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	return domain.User{ID: sub, Name: name, Email: email}, nil
}

func currentUser(c echo.Context) domain.User {
	u, _ := c.Get(userCtxKey).(domain.User)
	return u
}
