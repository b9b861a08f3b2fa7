package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// Client — 通知中继HTTP客户端
// 调用方负责保证"尽力而为"语义：投递失败只记日志，绝不影响已提交的保存
// =============================================================================

// DefaultTimeout 单次投递的默认超时
const DefaultTimeout = 5 * time.Second

// Client 通知中继客户端
type Client struct {
	webhookURL string
	httpClient *http.Client
}

// NewClient 创建中继客户端；timeout<=0 时使用默认超时
func NewClient(webhookURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SendEvaluation 投递评估通知，单次JSON POST，不重试
func (c *Client) SendEvaluation(ctx context.Context, env *Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("序列化中继消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建中继请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("投递中继消息失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("中继返回异常状态 %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}
