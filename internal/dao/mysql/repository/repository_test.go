package repository_test

import (
	"path/filepath"
	"testing"

	"kama_call_ring/internal/dao/mysql"
	"kama_call_ring/internal/dao/mysql/repository"
	"kama_call_ring/internal/model"
	"kama_call_ring/pkg/errorx"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "repo.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, mysql.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return repository.NewRepositories(db)
}

func TestChatRepositoryRoundTrip(t *testing.T) {
	repos := openRepos(t)

	_, err := repos.Chat.FindFullChat(42)
	assert.True(t, errorx.IsNotFound(err))

	full := &model.FullChat{
		Info: model.ChatInfo{ChatID: 42, Kind: model.ChatKindBasic, Title: "team", HasActiveCall: true},
		Participants: []model.ChatParticipant{
			{UserID: 1, Role: model.RoleCreator},
			{UserID: 2, Role: model.RoleAdmin},
			{UserID: 3, Role: model.RoleMember},
		},
	}
	require.NoError(t, repos.Chat.SaveFullChat(full))

	got, err := repos.Chat.FindFullChat(42)
	require.NoError(t, err)
	assert.Equal(t, "team", got.Info.Title)
	assert.True(t, got.Info.HasActiveCall)
	assert.Equal(t, []int64{1, 2}, got.AdminIDs())
	assert.Equal(t, []int64{1, 2, 3}, got.ParticipantIDs())

	// 覆盖写入会替换成员列表
	full.Participants = []model.ChatParticipant{{UserID: 9, Role: model.RoleCreator}}
	full.Info.Title = "renamed"
	require.NoError(t, repos.Chat.SaveFullChat(full))
	got, err = repos.Chat.FindFullChat(42)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Info.Title)
	assert.Equal(t, []int64{9}, got.ParticipantIDs())

	require.NoError(t, repos.Chat.SetActiveCall(42, false))
	got, err = repos.Chat.FindFullChat(42)
	require.NoError(t, err)
	assert.False(t, got.Info.HasActiveCall)

	assert.True(t, errorx.IsNotFound(repos.Chat.SetActiveCall(7, true)))
}

func TestChannelAdminRepository(t *testing.T) {
	repos := openRepos(t)

	ids, err := repos.ChannelAdmin.LoadAdminIDs(100)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, repos.ChannelAdmin.ReplaceAdmins(100, []int64{5, 6}))
	ids, err = repos.ChannelAdmin.LoadAdminIDs(100)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, ids)

	require.NoError(t, repos.ChannelAdmin.ReplaceAdmins(100, []int64{7}))
	ids, err = repos.ChannelAdmin.LoadAdminIDs(100)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, ids)
}

func TestUserRepository(t *testing.T) {
	repos := openRepos(t)

	require.NoError(t, repos.User.Save(&model.UserInfo{UserID: 1, FirstName: "Alice", UserName: "alice"}))
	require.NoError(t, repos.User.Save(&model.UserInfo{UserID: 2, FirstName: "Bob"}))
	require.NoError(t, repos.User.Save(&model.UserInfo{UserID: 2, FirstName: "Bobby"}))

	users, err := repos.User.FindByIDs([]int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Alice", users[0].FirstName)
	assert.Equal(t, "Bobby", users[1].FirstName)

	users, err = repos.User.FindByIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestTransactionRollback(t *testing.T) {
	repos := openRepos(t)

	err := repos.Transaction(func(tx *repository.Repositories) error {
		if err := tx.ChannelAdmin.ReplaceAdmins(1, []int64{1}); err != nil {
			return err
		}
		return errorx.New(errorx.CodeDBError, "abort")
	})
	require.Error(t, err)

	ids, err := repos.ChannelAdmin.LoadAdminIDs(1)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
