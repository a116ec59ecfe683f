package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"opsdashboard/pkg/monitoring"
)

// LoginPath 上游登录接口
const LoginPath = "/admin/auth/login"

// Credentials 上游管理员账号
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenManager 持有进程内共享的上游 bearer token
type TokenManager struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewTokenManager 创建 token 管理器
func NewTokenManager(baseURL string, creds Credentials, httpClient *http.Client, logger *zap.Logger) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenManager{
		baseURL:    baseURL,
		creds:      creds,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Token 返回缓存的 token，没有则登录获取。
// 并发调用可能各自登录一次，以最后写入的为准。
func (m *TokenManager) Token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	tok := m.token
	m.mu.Unlock()
	if tok.Valid() {
		return tok, nil
	}

	tok, err := m.login(ctx)
	if err != nil {
		monitoring.UpstreamLoginsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	monitoring.UpstreamLoginsTotal.WithLabelValues("success").Inc()

	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()
	return tok, nil
}

// Invalidate 清除缓存的 token
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}

type loginResponse struct {
	IsSuccess bool   `json:"isSuccess"`
	Message   string `json:"message"`
	Payload   struct {
		Token string `json:"token"`
	} `json:"payload"`
}

func (m *TokenManager) login(ctx context.Context) (*oauth2.Token, error) {
	body, err := json.Marshal(m.creds)
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("marshal credentials: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+LoginPath, bytes.NewReader(body))
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: truncate(string(respBody), maxErrorBody)}
	}

	var lr loginResponse
	if err := json.Unmarshal(respBody, &lr); err != nil {
		return nil, &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if lr.Payload.Token == "" {
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: "login did not return a token"}
	}

	m.logger.Info("upstream login succeeded", zap.String("email", m.creds.Email))

	return &oauth2.Token{AccessToken: lr.Payload.Token, TokenType: "Bearer"}, nil
}
