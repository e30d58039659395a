package constants

const (
	CHANNEL_SIZE         = 100 // 通道大小
	REMOTE_ADMIN_LIMIT   = 100 // 远端管理员列表单页上限
	CACHE_WORKER_NUM     = 15  // 缓存异步 Worker 数量
	CACHE_TASK_CHAN_SIZE = 3000

	HANGUP_COOLDOWN_SECONDS   = 60 // 挂断后的响铃冷却时间（秒）
	INVITE_ALL_DELAY_SECONDS  = 5  // 发起通话后延迟广播 InviteAll（秒）
	CALLING_RETENTION_MINUTES = 30 // 呼叫中条目保留时间（分钟）
	ACK_TIMEOUT_SECONDS       = 30 // 命令消息等待服务端确认的超时（秒）
)

// 持久化键前缀，完整键形如 exclude_users_{account}_{chat}
const (
	EXCLUDE_USERS_PREFIX = "exclude_users_"
	CALLING_USERS_PREFIX = "calling_users_"
	TIME_RECORD_PREFIX   = "time_record_"
	TIME_HOLE_PREFIX     = "time_hole_"
	LAST_HANGUP_PREFIX   = "last_hangup_"
)
