package redis

import (
	"fmt"

	"kama_call_ring/pkg/constants"
)

// ==================== 协议状态键 ====================
// 所有键以本地账号作命名空间，同一 Redis 可以服务多个账号

// ExcludeUsersKey 排除集合 set<userId>
func ExcludeUsersKey(accountID, chatID int64) string {
	return fmt.Sprintf("%s%d_%d", constants.EXCLUDE_USERS_PREFIX, accountID, chatID)
}

// CallingUsersKey 呼叫集合 set<"{userId}_{unixMillis}">
func CallingUsersKey(accountID, chatID int64) string {
	return fmt.Sprintf("%s%d_%d", constants.CALLING_USERS_PREFIX, accountID, chatID)
}

// TimeRecordKey 时间记录 hash<userId, json>
func TimeRecordKey(accountID, chatID int64) string {
	return fmt.Sprintf("%s%d_%d", constants.TIME_RECORD_PREFIX, accountID, chatID)
}

// TimeHoleKey 通话时间段 hash<startTime|endTime, unixMillis>
func TimeHoleKey(accountID, chatID int64) string {
	return fmt.Sprintf("%s%d_%d", constants.TIME_HOLE_PREFIX, accountID, chatID)
}

// LastHangupKey 最近一次主动挂断的时间
func LastHangupKey(accountID int64) string {
	return fmt.Sprintf("%s%d", constants.LAST_HANGUP_PREFIX, accountID)
}
