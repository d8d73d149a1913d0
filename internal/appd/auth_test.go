package appd

import (
	"fmt"
	"github.com/stretchr/testify/assert"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCredentialsComplete(t *testing.T) {
	c := &Credentials{AccountName: "acme", APIClient: "reader", APISecret: "secret"}
	err := c.Complete()
	assert.NoError(t, err)
	assert.Equal(t, "https://acme.saas.appdynamics.com", c.BaseURL)

	// 显式指定BaseURL时不推导
	c = &Credentials{AccountName: "acme", APIClient: "reader", APISecret: "secret",
		BaseURL: "https://onprem.example.com"}
	err = c.Complete()
	assert.NoError(t, err)
	assert.Equal(t, "https://onprem.example.com", c.BaseURL)

	c = &Credentials{AccountName: "acme"}
	assert.Error(t, c.Complete())
}

func TestAuthenticate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/controller/api/oauth/access_token", r.URL.Path)
		assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "reader@acme", r.URL.Query().Get("client_id"))
		_, _ = fmt.Fprint(w, `{"access_token": "tok-1", "expires_in": 300}`)
	}))
	defer server.Close()

	auth, err := NewAuthenticator(&Credentials{
		AccountName: "acme", APIClient: "reader", APISecret: "secret", BaseURL: server.URL,
	}, true)
	if !assert.NoError(t, err) {
		assert.FailNow(t, "NewAuthenticator failed")
	}

	assert.False(t, auth.IsTokenValid())
	err = auth.Authenticate()
	assert.NoError(t, err)
	assert.True(t, auth.IsTokenValid())

	// token有效时EnsureAuthenticated不重新请求
	server.Close()
	assert.NoError(t, auth.EnsureAuthenticated())
}

func TestAuthenticateFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	auth, err := NewAuthenticator(&Credentials{
		AccountName: "acme", APIClient: "reader", APISecret: "bad", BaseURL: server.URL,
	}, true)
	assert.NoError(t, err)
	assert.Error(t, auth.Authenticate())
	assert.False(t, auth.IsTokenValid())
}

func TestAuthenticateMissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"expires_in": 300}`)
	}))
	defer server.Close()

	auth, err := NewAuthenticator(&Credentials{
		AccountName: "acme", APIClient: "reader", APISecret: "secret", BaseURL: server.URL,
	}, true)
	assert.NoError(t, err)
	assert.Error(t, auth.Authenticate())
}

// 过期前30秒内视为无效，提前刷新
func TestTokenExpirationBuffer(t *testing.T) {
	auth := &Authenticator{
		token:           "tok",
		lastFetchTime:   time.Now().Add(-280 * time.Second),
		tokenExpiration: 300 * time.Second,
	}
	assert.False(t, auth.IsTokenValid())

	auth.lastFetchTime = time.Now().Add(-100 * time.Second)
	assert.True(t, auth.IsTokenValid())
}

func TestDoSetsAuthHeaders(t *testing.T) {
	var gotCSRF, gotAuthorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCSRF = r.Header.Get("X-CSRF-TOKEN")
		gotAuthorization = r.Header.Get("Authorization")
	}))
	defer server.Close()

	auth, err := NewAuthenticator(&Credentials{
		AccountName: "acme", APIClient: "reader", APISecret: "secret", BaseURL: server.URL,
	}, true)
	assert.NoError(t, err)
	auth.token = "tok-2"

	request, _ := http.NewRequest(http.MethodGet, server.URL+"/controller/rest/applications", nil)
	response, err := auth.Do(request)
	assert.NoError(t, err)
	_ = response.Body.Close()
	assert.Equal(t, "tok-2", gotCSRF)
	assert.Equal(t, "Bearer tok-2", gotAuthorization)
}
