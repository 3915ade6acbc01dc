package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adeilh/corekit/auth"
	"github.com/adeilh/corekit/auth/apikey"
	"github.com/adeilh/corekit/auth/google"
	"github.com/adeilh/corekit/db/sql/postgres"
	"github.com/adeilh/corekit/httpx"
	"github.com/adeilh/corekit/imageutil"
)

const apiKeyTTL = 30 * 24 * time.Hour

type userStore interface {
	postgres.UserGetter
	CreateUser(ctx context.Context, user postgres.User) (postgres.User, error)
	GetUserByEmail(ctx context.Context, email string) (postgres.User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
}

type mailer interface {
	SendTemplate(ctx context.Context, to, subject, template string, params any) (string, error)
}

// imageRecorder stores metadata of generated image variants.
type imageRecorder interface {
	RecordImage(ctx context.Context, img imageRecord) error
}

type imageRecord struct {
	ID        string            `bson:"_id" json:"id"`
	OwnerID   string            `bson:"owner_id" json:"owner_id"`
	Variants  map[string]string `bson:"variants" json:"variants"`
	CreatedAt time.Time         `bson:"created_at" json:"created_at"`
}

type api struct {
	users    userStore
	auth     *auth.Manager[postgres.User]
	keys     *apikey.Store
	keyAuth  *auth.Manager[string]
	google   *google.Client
	mailer   mailer
	images   imageRecorder
	mediaDir string
	mediaURL string
	log      zerolog.Logger
}

func (a *api) routes(app *httpx.App) {
	requireUser := httpx.RequireAuth(a.auth)

	api := app.Group("/api")
	api.Group("/auth").Routes(
		httpx.Route{Method: http.MethodPost, Path: "/signup", Handler: a.signup},
		httpx.Route{Method: http.MethodPost, Path: "/login", Handler: a.login},
		httpx.Route{Method: http.MethodPost, Path: "/google", Handler: a.googleLogin},
	)

	api.GET("/users/me", a.me, requireUser)
	api.GET("/ip", a.clientIP, httpx.OptionalAuth(a.auth))

	api.Group("/keys").
		POST("", a.issueKey, requireUser).
		DELETE("", a.revokeKey).
		GET("/me", a.keyOwner).
		POST("/token", a.keyToken).
		GET("/session", a.keySession, httpx.RequireAuth(a.keyAuth))

	api.POST("/images", a.uploadImage, requireUser)
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	User        *postgres.User `json:"user,omitempty"`
}

func (a *api) issue(user postgres.User) (tokenResponse, error) {
	token, err := a.auth.IssueToken(auth.Claims{"sub": user.ID, "email": user.Email}, 0)
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{AccessToken: token, TokenType: "bearer", User: &user}, nil
}

func (a *api) signup(c httpx.Context) error {
	var req signupRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	hash, err := a.auth.HashPassword(req.Password)
	if err != nil {
		return err
	}
	user, err := a.users.CreateUser(c.Request().Context(), postgres.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Enabled:      true,
	})
	if errors.Is(err, postgres.ErrUserEmailInUse) {
		return httpx.NewAppError(http.StatusConflict, "EMAIL_IN_USE", "An account with this email already exists")
	}
	if err != nil {
		return err
	}

	if a.mailer != nil {
		params := map[string]string{"Name": user.Name, "Email": user.Email}
		if _, err := a.mailer.SendTemplate(c.Request().Context(), user.Email, "Welcome", "welcome.html", params); err != nil {
			a.log.Warn().Err(err).Str("user_id", user.ID).Msg("welcome email not sent")
		}
	}

	resp, err := a.issue(user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

func (a *api) login(c httpx.Context) error {
	var req loginRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	user, err := a.users.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, postgres.ErrUserNotFound) {
		return httpx.Unauthorized()
	}
	if err != nil {
		return err
	}
	if !user.Enabled || !a.auth.VerifyPassword(req.Password, user.PasswordHash) {
		return httpx.Unauthorized()
	}
	if a.auth.NeedsRehash(user.PasswordHash) {
		if hash, err := a.auth.HashPassword(req.Password); err == nil {
			if err := a.users.SetPasswordHash(ctx, user.ID, hash); err != nil {
				a.log.Warn().Err(err).Str("user_id", user.ID).Msg("password rehash not saved")
			}
		}
	}
	resp, err := a.issue(user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

type googleLoginRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

// googleLogin exchanges a Google access token for a local token, creating
// the account on first sign-in.
func (a *api) googleLogin(c httpx.Context) error {
	var req googleLoginRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	info, err := a.google.UserInfo(ctx, req.AccessToken)
	if err != nil {
		return err
	}
	if info.Email == "" || !info.VerifiedEmail {
		return httpx.BadRequest("UNVERIFIED_GOOGLE_EMAIL", "Google account email is not verified")
	}

	user, err := a.users.GetUserByEmail(ctx, info.Email)
	if errors.Is(err, postgres.ErrUserNotFound) {
		hash, herr := a.randomPasswordHash()
		if herr != nil {
			return herr
		}
		user, err = a.users.CreateUser(ctx, postgres.User{
			Email:        info.Email,
			Name:         info.Name,
			PasswordHash: hash,
			Enabled:      true,
			Metadata:     map[string]string{"google_id": info.ID},
		})
	}
	if err != nil {
		return err
	}
	if !user.Enabled {
		return httpx.Unauthorized()
	}
	resp, err := a.issue(user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// randomPasswordHash gives Google-only accounts a password nobody knows.
func (a *api) randomPasswordHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return a.auth.HashPassword(hex.EncodeToString(buf))
}

func (a *api) me(c httpx.Context) error {
	user, ok := httpx.Identity[postgres.User](c)
	if !ok {
		return httpx.Unauthorized()
	}
	return c.JSON(http.StatusOK, user)
}

func (a *api) clientIP(c httpx.Context) error {
	resp := map[string]any{"ip": httpx.ClientIP(c.Request())}
	if user, ok := httpx.Identity[postgres.User](c); ok {
		resp["user_id"] = user.ID
	}
	return c.JSON(http.StatusOK, resp)
}

func (a *api) issueKey(c httpx.Context) error {
	user, ok := httpx.Identity[postgres.User](c)
	if !ok {
		return httpx.Unauthorized()
	}
	key, err := a.keys.Issue(c.Request().Context(), user.ID, apiKeyTTL)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"api_key":    key,
		"expires_in": int(apiKeyTTL / time.Second),
	})
}

// presentedKey resolves the X-API-Key header to its subject.
func (a *api) presentedKey(c httpx.Context) (key, subject string, err error) {
	key = strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
	if key == "" {
		return "", "", httpx.Unauthorized()
	}
	subject, err = a.keys.Resolve(c.Request().Context(), key)
	if errors.Is(err, apikey.ErrUnknownKey) {
		return "", "", httpx.Unauthorized()
	}
	return key, subject, err
}

func (a *api) keyOwner(c httpx.Context) error {
	_, subject, err := a.presentedKey(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"subject": subject})
}

// keyToken exchanges an API key for a bearer token that stays valid only
// while the key does.
func (a *api) keyToken(c httpx.Context) error {
	key, _, err := a.presentedKey(c)
	if err != nil {
		return err
	}
	token, err := a.keyAuth.IssueToken(auth.Claims{apikey.ClaimKey: key}, 0)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (a *api) keySession(c httpx.Context) error {
	subject, ok := httpx.Identity[string](c)
	if !ok {
		return httpx.Unauthorized()
	}
	return c.JSON(http.StatusOK, map[string]string{"subject": subject})
}

func (a *api) revokeKey(c httpx.Context) error {
	key, _, err := a.presentedKey(c)
	if err != nil {
		return err
	}
	if err := a.keys.Revoke(c.Request().Context(), key); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *api) uploadImage(c httpx.Context) error {
	user, ok := httpx.Identity[postgres.User](c)
	if !ok {
		return httpx.Unauthorized()
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return httpx.BadRequest("MISSING_FILE", "A file field is required")
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return httpx.BadRequest("INVALID_IMAGE", "The uploaded file is not a supported image")
	}

	fileID := uuid.NewString()
	plan, err := imageutil.Plan(filepath.Clean(a.mediaDir), fileID, "png", strings.TrimRight(a.mediaURL, "/"))
	if err != nil {
		return err
	}
	if err := imageutil.Generate(c.Request().Context(), img, plan); err != nil {
		return err
	}

	urls := make(map[string]string, len(plan))
	for category, v := range plan {
		urls[category] = v.URL
	}
	record := imageRecord{ID: fileID, OwnerID: user.ID, Variants: urls, CreatedAt: time.Now().UTC()}
	if a.images != nil {
		if err := a.images.RecordImage(c.Request().Context(), record); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusCreated, record)
}
