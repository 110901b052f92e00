package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"DealSync/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Guard 抓取运行锁：同一时刻最多一个运行；拿不到锁时 ok=false，不排队
type Guard interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// LocalGuard 进程内锁（单实例部署）
type LocalGuard struct {
	mu sync.Mutex
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{}
}

func (g *LocalGuard) TryAcquire(ctx context.Context) (func(), bool, error) {
	if !g.mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func() { once.Do(g.mu.Unlock) }, true, nil
}

// releaseScript 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// renewScript 仍由自己持有时续期（毫秒）
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisGuard 多实例共享的运行锁，TTL 兜底防止进程崩溃后锁不释放
type RedisGuard struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisGuard 连接 redis 并校验可用
func NewRedisGuard(ctx context.Context, cfg *config.RedisConfig, logger *logrus.Logger) (*RedisGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接redis失败: %w", err)
	}
	logger.WithField("addr", cfg.Addr).Info("redis运行锁已启用")
	return &RedisGuard{client: client, key: cfg.LockKey, ttl: cfg.LockTTL, logger: logger}, nil
}

func (g *RedisGuard) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("获取运行锁失败: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	// 运行期间按 TTL/3 续期，回填跑得比 TTL 久时锁也不会过期
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, g.ttl/3, func() (bool, error) {
			renewCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := renewScript.Run(renewCtx, g.client, []string{g.key}, token, g.ttl.Milliseconds()).Int64()
			return n == 1, err
		}, g.logger.WithField("key", g.key))
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			// 调用方的 ctx 可能已取消，释放锁单独给超时
			relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(relCtx, g.client, []string{g.key}, token).Err(); err != nil {
				g.logger.WithError(err).WithField("key", g.key).Warn("释放运行锁失败，等待TTL过期")
			}
		})
	}
	return release, true, nil
}

// keepAlive 每隔 interval 调一次 extend，直到 stop 关闭或锁已不归自己
func keepAlive(stop <-chan struct{}, interval time.Duration, extend func() (bool, error), log *logrus.Entry) {
	if interval <= 0 {
		<-stop
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ok, err := extend()
			switch {
			case err != nil:
				log.WithError(err).Warn("运行锁续期失败")
			case !ok:
				log.Warn("运行锁已不归本实例持有，停止续期")
				return
			}
		}
	}
}

// Close 关闭 redis 连接
func (g *RedisGuard) Close() error {
	return g.client.Close()
}
