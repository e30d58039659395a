package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"kama_call_ring/internal/config"
	"kama_call_ring/internal/model"
	"kama_call_ring/pkg/errorx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chats/42/admins", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"admins":[{"user_id":1,"role":"creator","first_name":"Alice","user_name":"alice"},{"user_id":2,"role":"admin"}]}`))
	})
	mux.HandleFunc("/chats/42/full", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chat_id":42,"kind":"basic","title":"team","has_active_call":true,
			"participants":[{"user_id":1,"role":"creator","first_name":"Alice"},{"user_id":3,"role":"member","first_name":"Carol","user_name":"carol"}]}`))
	})
	mux.HandleFunc("/chats/43/full", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such chat", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestChannelAdmins(t *testing.T) {
	srv := newServer(t)
	var got []model.UserInfo
	c := NewClient(config.BackendConfig{BaseURL: srv.URL + "/", Token: "secret", Timeout: 5}, func(users []model.UserInfo) {
		got = append(got, users...)
	})

	ids, err := c.ChannelAdmins(context.Background(), 42, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].UserName)
}

func TestChannelAdminsUnauthorized(t *testing.T) {
	srv := newServer(t)
	c := NewClient(config.BackendConfig{BaseURL: srv.URL, Timeout: 5}, nil)

	_, err := c.ChannelAdmins(context.Background(), 42, 100)
	require.Error(t, err)
	assert.Equal(t, errorx.CodeRemoteError, errorx.GetCode(err))
}

func TestFullChat(t *testing.T) {
	srv := newServer(t)
	c := NewClient(config.BackendConfig{BaseURL: srv.URL, Timeout: 5}, nil)

	full, err := c.FullChat(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, model.ChatKindBasic, full.Info.Kind)
	assert.True(t, full.Info.HasActiveCall)
	assert.Equal(t, []int64{1}, full.AdminIDs())
	assert.Equal(t, []int64{1, 3}, full.ParticipantIDs())

	_, err = c.FullChat(context.Background(), 43)
	require.Error(t, err)
	assert.Equal(t, errorx.CodeRemoteError, errorx.GetCode(err))
}

func TestUnconfigured(t *testing.T) {
	c := NewClient(config.BackendConfig{}, nil)
	_, err := c.FullChat(context.Background(), 42)
	assert.Equal(t, errorx.CodeRemoteError, errorx.GetCode(err))
}
