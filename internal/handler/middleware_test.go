package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cricketledger/pkg/sign"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func webhookTestRouter(secret string) *gin.Engine {
	r := gin.New()
	r.POST("/notify", WebhookSignatureMiddleware(secret), func(c *gin.Context) {
		// 中间件要把 body 放回去，这里验证还能读到
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(http.StatusOK, gin.H{"echo": string(body)})
	})
	return r
}

func TestWebhookSignatureAccepted(t *testing.T) {
	secret := "test-secret"
	router := webhookTestRouter(secret)
	body := []byte(`{"tx_hash":"0xabc","amount":"100.5"}`)

	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewReader(body))
	req.Header.Set("X-Signature", sign.Sign(secret, body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(body), resp["echo"], "校验后业务逻辑仍能读到原始 body")
}

func TestWebhookSignatureRejected(t *testing.T) {
	router := webhookTestRouter("test-secret")
	body := []byte(`{"tx_hash":"0xabc"}`)

	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewReader(body))
	req.Header.Set("X-Signature", sign.Sign("wrong-secret", body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookSignatureMissing(t *testing.T) {
	router := webhookTestRouter("test-secret")

	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookSignatureSkippedWhenNoSecret(t *testing.T) {
	router := webhookTestRouter("")

	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// 未配置密钥时放行（开发环境）
	assert.Equal(t, http.StatusOK, w.Code)
}
