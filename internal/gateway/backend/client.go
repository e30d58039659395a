// Package backend 远端消息后台的 HTTP 客户端
// 权限解析的远端一层通过这里查询管理员列表与会话完整信息
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kama_call_ring/internal/config"
	"kama_call_ring/internal/model"
	"kama_call_ring/pkg/errorx"
)

// ParticipantDTO 后台返回的成员
type ParticipantDTO struct {
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"` // creator / admin / member
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	UserName  string `json:"user_name,omitempty"`
}

// FullChatDTO GET /chats/{id}/full
type FullChatDTO struct {
	ChatID        int64            `json:"chat_id"`
	Kind          model.ChatKind   `json:"kind"`
	Title         string           `json:"title"`
	HasActiveCall bool             `json:"has_active_call"`
	Participants  []ParticipantDTO `json:"participants"`
}

// AdminsDTO GET /chats/{id}/admins
type AdminsDTO struct {
	Admins []ParticipantDTO `json:"admins"`
}

// UserSink 接收后台顺带返回的用户资料
type UserSink func(users []model.UserInfo)

// Client 后台客户端
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	users   UserSink
}

// NewClient 根据配置创建客户端，users 可为 nil
func NewClient(conf config.BackendConfig, users UserSink) *Client {
	return &Client{
		baseURL: strings.TrimRight(conf.BaseURL, "/"),
		token:   conf.Token,
		http:    &http.Client{Timeout: conf.RequestTimeout()},
		users:   users,
	}
}

// ChannelAdmins 查询频道型群的管理员
func (c *Client) ChannelAdmins(ctx context.Context, chatID int64, limit int) ([]int64, error) {
	q := url.Values{}
	q.Set("filter", "admins")
	q.Set("limit", strconv.Itoa(limit))
	var resp AdminsDTO
	if err := c.get(ctx, fmt.Sprintf("/chats/%d/admins?%s", chatID, q.Encode()), &resp); err != nil {
		return nil, err
	}
	c.emitUsers(resp.Admins)
	ids := make([]int64, 0, len(resp.Admins))
	for _, a := range resp.Admins {
		ids = append(ids, a.UserID)
	}
	return ids, nil
}

// FullChat 查询会话完整信息
func (c *Client) FullChat(ctx context.Context, chatID int64) (*model.FullChat, error) {
	var resp FullChatDTO
	if err := c.get(ctx, fmt.Sprintf("/chats/%d/full", chatID), &resp); err != nil {
		return nil, err
	}
	c.emitUsers(resp.Participants)
	return resp.ToModel(), nil
}

// ToModel 转成本地模型
func (d *FullChatDTO) ToModel() *model.FullChat {
	full := &model.FullChat{
		Info: model.ChatInfo{
			ChatID:        d.ChatID,
			Kind:          d.Kind,
			Title:         d.Title,
			HasActiveCall: d.HasActiveCall,
			SyncedAt:      time.Now(),
		},
		Participants: make([]model.ChatParticipant, 0, len(d.Participants)),
	}
	for _, p := range d.Participants {
		full.Participants = append(full.Participants, model.ChatParticipant{
			ChatID: d.ChatID,
			UserID: p.UserID,
			Role:   model.ParseRole(p.Role),
		})
	}
	return full
}

func (c *Client) emitUsers(ps []ParticipantDTO) {
	if c.users == nil {
		return
	}
	users := make([]model.UserInfo, 0, len(ps))
	for _, p := range ps {
		if p.FirstName == "" && p.UserName == "" {
			continue
		}
		users = append(users, model.UserInfo{UserID: p.UserID, FirstName: p.FirstName, LastName: p.LastName, UserName: p.UserName})
	}
	if len(users) > 0 {
		c.users(users)
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return errorx.New(errorx.CodeRemoteError, "backend baseUrl not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeRemoteError, "build request %s", path)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeRemoteError, "GET %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errorx.Newf(errorx.CodeRemoteError, "GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errorx.Wrapf(err, errorx.CodeParseError, "decode %s", path)
	}
	return nil
}
