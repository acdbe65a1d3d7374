package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// googleTokenInfoURL Google ID Token 校验端点
const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// GoogleProfile Google ID Token 校验结果
type GoogleProfile struct {
	Sub     string `json:"sub"` // Google 账户 ID
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Aud     string `json:"aud"`
}

// GoogleVerifier 校验前端传来的 Google ID Token
type GoogleVerifier struct {
	httpClient  *http.Client
	endpoint    string
	expectedAud string // 期望的 OAuth Client ID，为空时不校验
}

// NewGoogleVerifier 创建 Google ID Token 校验器
func NewGoogleVerifier(expectedAud string) *GoogleVerifier {
	return &GoogleVerifier{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		endpoint:    googleTokenInfoURL,
		expectedAud: expectedAud,
	}
}

// WithEndpoint 覆盖校验端点（测试用）
func (v *GoogleVerifier) WithEndpoint(endpoint string) *GoogleVerifier {
	v.endpoint = endpoint
	return v
}

// Verify 校验 ID Token，返回 Google 账户信息
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*GoogleProfile, error) {
	if idToken == "" {
		return nil, fmt.Errorf("ID Token 不能为空")
	}

	reqURL := fmt.Sprintf("%s?id_token=%s", v.endpoint, url.QueryEscape(idToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构建校验请求失败: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Google 校验端点失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Google ID Token 校验失败: HTTP %d", resp.StatusCode)
	}

	var profile GoogleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("解析校验响应失败: %w", err)
	}

	if profile.Sub == "" || profile.Email == "" {
		return nil, fmt.Errorf("Google ID Token 缺少必要字段")
	}

	if v.expectedAud != "" && profile.Aud != v.expectedAud {
		return nil, fmt.Errorf("Google ID Token audience 不匹配")
	}

	return &profile, nil
}
