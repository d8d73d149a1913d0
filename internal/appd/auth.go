package appd

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"github.com/pkg/errors"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

const (
	// token过期前提前刷新的缓冲时间
	expirationBuffer = 30 * time.Second

	defaultTokenExpiration = 300 * time.Second
)

// Credentials 是访问控制器的API凭证。BaseURL为空时按SaaS规则推导。
type Credentials struct {
	AccountName string
	APIClient   string
	APISecret   string
	BaseURL     string
}

func (c *Credentials) Complete() error {
	if c.AccountName == "" || c.APIClient == "" || c.APISecret == "" {
		return fmt.Errorf("账户名、API客户端与密钥都不能为空")
	}
	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("https://%s.saas.appdynamics.com", c.AccountName)
	}
	return nil
}

// Authenticator 持有会话与token过期状态，是整个程序唯一的共享可变资源。
// 每次调用前通过EnsureAuthenticated惰性刷新，不做后台刷新。
type Authenticator struct {
	Credentials *Credentials

	client          *http.Client
	token           string
	lastFetchTime   time.Time
	tokenExpiration time.Duration
	logger          *log.Logger
}

func NewAuthenticator(credentials *Credentials, verifySSL bool) (*Authenticator, error) {
	if err := credentials.Complete(); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport
	if !verifySSL {
		// 仅用于on-prem控制器的自签名证书
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Authenticator{
		Credentials:     credentials,
		client:          &http.Client{Transport: transport, Timeout: 2 * time.Minute},
		tokenExpiration: defaultTokenExpiration,
		logger:          log.New(os.Stdout, "auth: ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix),
	}, nil
}

// IsTokenValid 检查当前token是否存在且未过期，过期前30秒视为无效。
func (a *Authenticator) IsTokenValid() bool {
	if a.token == "" {
		return false
	}
	return time.Now().Before(a.lastFetchTime.Add(a.tokenExpiration - expirationBuffer))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Authenticate 使用client_credentials方式获取OAuth token。
func (a *Authenticator) Authenticate() error {
	url := fmt.Sprintf("%s/controller/api/oauth/access_token?grant_type=client_credentials&client_id=%s@%s&client_secret=%s",
		a.Credentials.BaseURL, a.Credentials.APIClient, a.Credentials.AccountName, a.Credentials.APISecret)

	a.logger.Printf("正在登录控制器：%s", a.Credentials.BaseURL)

	request, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return errors.Wrap(err, "构造认证请求失败")
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := a.client.Do(request)
	if err != nil {
		return errors.Wrap(err, "认证请求失败")
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("认证失败，HTTP状态码为%d", response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return errors.Wrap(err, "读取认证响应失败")
	}

	token := &tokenResponse{}
	if err := json.Unmarshal(body, token); err != nil {
		return errors.Wrap(err, "解析认证响应失败")
	}
	if token.AccessToken == "" {
		return fmt.Errorf("认证响应中没有access_token")
	}

	a.token = token.AccessToken
	a.lastFetchTime = time.Now()
	if token.ExpiresIn > 0 {
		a.tokenExpiration = time.Duration(token.ExpiresIn) * time.Second
	}

	a.logger.Printf("认证成功，token有效期%d秒", int64(a.tokenExpiration.Seconds()))
	return nil
}

// EnsureAuthenticated 在token无效时重新认证，每个请求发出前都会调用。
func (a *Authenticator) EnsureAuthenticated() error {
	if a.IsTokenValid() {
		return nil
	}
	return a.Authenticate()
}

// Do 发送一个带认证头的请求。
func (a *Authenticator) Do(request *http.Request) (*http.Response, error) {
	request.Header.Set("X-CSRF-TOKEN", a.token)
	request.Header.Set("Authorization", "Bearer "+a.token)
	return a.client.Do(request)
}
