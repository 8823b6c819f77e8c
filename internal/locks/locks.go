// Package locks 提供基于 Redis 的单实例周期任务守护与心跳键
// 锁语义为非阻塞 try-acquire：拿不到就跳过本轮，不排队
package locks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func LockKey(name string) string {
	return "lock:" + name
}

func HeartbeatKey(hotkey string) string {
	return "worker:" + hotkey + ":heartbeat"
}

// Acquire 尝试获取锁（仅当不存在时成功），返回是否成功
func Acquire(ctx context.Context, rdb *redis.Client, name, owner string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, LockKey(name), owner, ttl).Result()
}

// Release 仅当持有者匹配时释放锁
func Release(ctx context.Context, rdb *redis.Client, name, owner string) (bool, error) {
	script := `
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('DEL', KEYS[1])
		else
			return 0
		end`

	cmd := rdb.Eval(ctx, script, []string{LockKey(name)}, owner)
	if err := cmd.Err(); err != nil {
		return false, err
	}
	n, _ := cmd.Int()
	return n == 1, nil
}

// TouchHeartbeat 刷新工作节点心跳键（TTL 即离线判定窗口的冗余备份）
func TouchHeartbeat(ctx context.Context, rdb *redis.Client, hotkey string, ttl time.Duration) error {
	return rdb.Set(ctx, HeartbeatKey(hotkey), time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

// IncrCounter 运营计数器（metrics:<组>:<名>）
func IncrCounter(ctx context.Context, rdb *redis.Client, group, name string) {
	_ = rdb.Incr(ctx, "metrics:"+group+":"+name).Err()
}

// SetLastTick 记录某个周期循环最近一次 tick 的概要
func SetLastTick(ctx context.Context, rdb *redis.Client, group string, fields map[string]any) {
	_ = rdb.HSet(ctx, "metrics:"+group+":last", fields).Err()
}
