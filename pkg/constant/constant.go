package constant

// Platform Ids
const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWindows = 3
	PlatformIdMacOS   = 4
	PlatformIdWeb     = 5
)

// PlatformIdToName converts platform Id to name
func PlatformIdToName(platformId int) string {
	switch platformId {
	case PlatformIdIOS:
		return "iOS"
	case PlatformIdAndroid:
		return "Android"
	case PlatformIdWindows:
		return "Windows"
	case PlatformIdMacOS:
		return "macOS"
	case PlatformIdWeb:
		return "Web"
	default:
		return "Unknown"
	}
}

// Notification types
const (
	NotificationMissedCall      = "missed_call"
	NotificationMeetingInvite   = "meeting_invite"
	NotificationMeetingReminder = "meeting_reminder"
	NotificationMeetingCanceled = "meeting_cancelled"
)

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyToken           = "token:%s:%d"     // token:{user_id}:{platform_id}
	redisKeyOnline          = "online:%s"       // online:{user_id}
	redisKeyPresence        = "presence:%s"     // presence:{user_id}
	redisKeySeqConversation = "seq:conv:%s"     // seq:conv:{conversation_id}
	redisKeyCallSession     = "call:session:%s" // call:session:{device_key}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "neon:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyToken() string           { return redisKeyPrefix + redisKeyToken }
func RedisKeyOnline() string          { return redisKeyPrefix + redisKeyOnline }
func RedisKeyPresence() string        { return redisKeyPrefix + redisKeyPresence }
func RedisKeySeqConversation() string { return redisKeyPrefix + redisKeySeqConversation }
func RedisKeyCallSession() string     { return redisKeyPrefix + redisKeyCallSession }
