// Package auth はOAuth2によるサインインとクッキーセッションでAPIを保護する。
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// SessionName はセッションクッキーの名前
	SessionName = "snapcam_session"

	sessionKeyState   = "oauth_state"
	sessionKeySubject = "user_sub"
	sessionKeyEmail   = "user_email"
	sessionKeyName    = "user_name"

	// DefaultUserInfoURL はGoogleのOpenID Connect userinfoエンドポイント
	DefaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	contextKeyUser = "auth_user"
)

// ErrInvalidState はコールバックのstateがセッションと一致しない
var ErrInvalidState = errors.New("invalid oauth state")

// Config は認証ゲートの設定
type Config struct {
	Enabled       bool
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	AuthURL       string // 空ならGoogle
	TokenURL      string // 空ならGoogle
	UserInfoURL   string // 空なら DefaultUserInfoURL
	Scopes        []string
	SessionSecret string
	SecureCookie  bool
}

// User はサインイン済みのユーザー
type User struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// Gate はサインイン・サインアウトとアクセス制御を行う
type Gate struct {
	enabled     bool
	oauth       *oauth2.Config
	userInfoURL string
	secret      []byte
	secure      bool
}

// NewGate は新しい Gate を作成する
func NewGate(cfg Config) (*Gate, error) {
	if cfg.SessionSecret == "" {
		return nil, errors.New("セッションの秘密鍵が設定されていません")
	}

	g := &Gate{
		enabled: cfg.Enabled,
		secret:  []byte(cfg.SessionSecret),
		secure:  cfg.SecureCookie,
	}
	if !cfg.Enabled {
		return g, nil
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("OAuth2のクライアントIDとシークレットが必要です")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("OAuth2のリダイレクトURLが必要です")
	}

	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	g.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
		Endpoint:     endpoint,
	}

	g.userInfoURL = cfg.UserInfoURL
	if g.userInfoURL == "" {
		g.userInfoURL = DefaultUserInfoURL
	}
	return g, nil
}

// Enabled は認証が有効かを返す
func (g *Gate) Enabled() bool {
	return g.enabled
}

// Sessions はクッキーセッションのミドルウェアを返す
func (g *Gate) Sessions() gin.HandlerFunc {
	store := cookie.NewStore(g.secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionName, store)
}

// RegisterRoutes は /auth 配下のルートを登録する
func (g *Gate) RegisterRoutes(r gin.IRouter) {
	group := r.Group("/auth")
	group.GET("/login", g.handleLogin)
	group.GET("/callback", g.handleCallback)
	group.POST("/signout", g.handleSignOut)
	group.GET("/me", g.RequireUser(), g.handleMe)
}

// RequireUser は未サインインのリクエストを拒否するミドルウェアを返す
//
// API (/api/) には 401 を、それ以外はログインページへのリダイレクトを返す。
func (g *Gate) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.enabled {
			c.Next()
			return
		}

		user, ok := sessionUser(sessions.Default(c))
		if !ok {
			if strings.HasPrefix(c.Request.URL.Path, "/api/") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "サインインが必要です"})
				return
			}
			c.Redirect(http.StatusFound, "/auth/login")
			c.Abort()
			return
		}

		c.Set(contextKeyUser, user)
		c.Next()
	}
}

// CurrentUser はミドルウェアが設定したユーザーを返す
func CurrentUser(c *gin.Context) (User, bool) {
	v, ok := c.Get(contextKeyUser)
	if !ok {
		return User{}, false
	}
	user, ok := v.(User)
	return user, ok
}

// SignOut はセッションを破棄する
func (g *Gate) SignOut(c *gin.Context) error {
	session := sessions.Default(c)
	subject, _ := session.Get(sessionKeySubject).(string)

	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1, HttpOnly: true, Secure: g.secure})
	if err := session.Save(); err != nil {
		return fmt.Errorf("セッションの破棄に失敗: %w", err)
	}

	log.Info().Str("module", "auth").Str("sub", subject).Msg("サインアウトしました")
	return nil
}

func (g *Gate) handleLogin(c *gin.Context) {
	if !g.enabled {
		c.Redirect(http.StatusFound, "/")
		return
	}

	state := uuid.NewString()
	session := sessions.Default(c)
	session.Set(sessionKeyState, state)
	if err := session.Save(); err != nil {
		log.Error().Err(err).Str("module", "auth").Msg("セッションの保存に失敗しました")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "セッションの保存に失敗しました"})
		return
	}

	c.Redirect(http.StatusFound, g.oauth.AuthCodeURL(state))
}

func (g *Gate) handleCallback(c *gin.Context) {
	if !g.enabled {
		c.Redirect(http.StatusFound, "/")
		return
	}

	session := sessions.Default(c)
	expected, _ := session.Get(sessionKeyState).(string)
	session.Delete(sessionKeyState)

	if expected == "" || c.Query("state") != expected {
		_ = session.Save()
		log.Warn().Str("module", "auth").Msg("stateが一致しません")
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidState.Error()})
		return
	}

	code := c.Query("code")
	if code == "" {
		_ = session.Save()
		c.JSON(http.StatusBadRequest, gin.H{"error": "認可コードがありません"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	user, err := g.exchange(ctx, code)
	if err != nil {
		_ = session.Save()
		log.Error().Err(err).Str("module", "auth").Msg("サインインに失敗しました")
		c.JSON(http.StatusBadGateway, gin.H{"error": "サインインに失敗しました"})
		return
	}

	session.Set(sessionKeySubject, user.Subject)
	session.Set(sessionKeyEmail, user.Email)
	session.Set(sessionKeyName, user.Name)
	if err := session.Save(); err != nil {
		log.Error().Err(err).Str("module", "auth").Msg("セッションの保存に失敗しました")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "セッションの保存に失敗しました"})
		return
	}

	log.Info().Str("module", "auth").Str("sub", user.Subject).Msg("サインインしました")
	c.Redirect(http.StatusFound, "/")
}

func (g *Gate) handleSignOut(c *gin.Context) {
	if err := g.SignOut(c); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

func (g *Gate) handleMe(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": user})
}

// exchange は認可コードをトークンに交換してユーザー情報を取得する
func (g *Gate) exchange(ctx context.Context, code string) (User, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return User{}, fmt.Errorf("トークンの取得に失敗: %w", err)
	}

	client := g.oauth.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return User{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("ユーザー情報の取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("ユーザー情報の取得に失敗: status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return User{}, fmt.Errorf("ユーザー情報の解析に失敗: %w", err)
	}
	if user.Subject == "" {
		return User{}, errors.New("ユーザーIDがありません")
	}
	return user, nil
}

// sessionUser はセッションからユーザーを取り出す
func sessionUser(session sessions.Session) (User, bool) {
	subject, _ := session.Get(sessionKeySubject).(string)
	if subject == "" {
		return User{}, false
	}
	email, _ := session.Get(sessionKeyEmail).(string)
	name, _ := session.Get(sessionKeyName).(string)
	return User{Subject: subject, Email: email, Name: name}, true
}
