package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"job-agent-go/internal/config"
	"job-agent-go/internal/constants"
	"job-agent-go/internal/tracing"
	"job-agent-go/internal/types"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound 键不存在时返回，封装底层的redis.Nil
var ErrNotFound = redis.Nil

var redisTracer = otel.Tracer("job-agent-go/storage/redis")

// Redis操作前缀采样率配置，高频缓存读写低采样
var redisKeySamplingRates = map[string]float64{
	constants.AppPrefix + ":" + constants.JobModulePrefix + ":":      0.25,
	constants.AppPrefix + ":" + constants.GithubModulePrefix + ":":   0.1,
	constants.AppPrefix + ":" + constants.DocumentModulePrefix + ":": 0.5,
}

var (
	rnd      *rand.Rand
	rndMutex sync.Mutex
)

func init() {
	rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
}

// shouldSampleRedisOp 根据key前缀决定是否创建span
func shouldSampleRedisOp(key string) bool {
	if key == "" {
		return false
	}
	for prefix, rate := range redisKeySamplingRates {
		if strings.HasPrefix(key, prefix) {
			return randFloat() < rate
		}
	}
	return randFloat() < 0.05
}

func randFloat() float64 {
	rndMutex.Lock()
	defer rndMutex.Unlock()
	return rnd.Float64()
}

// Redis 封装go-redis客户端，承载岗位分析与GitHub数据缓存
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter 创建Redis客户端连接
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis配置不能为空")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis地址不能为空")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子，记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("为Redis注册OpenTelemetry钩子失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("连接Redis失败 %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping 检查Redis连接
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	return r.Client.Ping(ctx).Err()
}

// CacheExpireDuration 返回配置的缓存过期时间
func (r *Redis) CacheExpireDuration() time.Duration {
	hours := r.config.CacheExpireHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// Get 读取键的值，按前缀采样创建span
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Get", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()
		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "GET"),
			attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
		)
	}

	val, err := r.Client.Get(ctx, key).Result()
	if span != nil {
		if err != nil {
			if err == redis.Nil {
				// 键不存在属于正常分支
				span.SetStatus(codes.Ok, "key not found")
				span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
			} else {
				tracing.RecordError(span, err, tracing.ErrorTypeRedis)
			}
		} else {
			span.SetAttributes(
				attribute.Bool("db.redis.key_exists", true),
				attribute.Int("db.redis.value_length", len(val)),
			)
			span.SetStatus(codes.Ok, "")
		}
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// Set 设置键的值
func (r *Redis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Set", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()
		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "SET"),
			attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
			attribute.Int("db.redis.value_length", len(value)),
		)
		if expiration > 0 {
			span.SetAttributes(attribute.Int64("db.redis.expiration_ms", expiration.Milliseconds()))
		}
	}

	err := r.Client.Set(ctx, key, value, expiration).Err()
	if span != nil {
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	return err
}

// GetJobAnalysis 读取岗位分析缓存，实现processor.AnalysisCache
func (r *Redis) GetJobAnalysis(ctx context.Context, key string) (*types.JobAnalysis, bool, error) {
	val, err := r.Get(ctx, fmt.Sprintf(constants.KeyJobAnalysis, key))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var analysis types.JobAnalysis
	if err := json.Unmarshal([]byte(val), &analysis); err != nil {
		return nil, false, fmt.Errorf("解析缓存的岗位分析失败: %w", err)
	}
	return &analysis, true, nil
}

// SetJobAnalysis 写入岗位分析缓存
func (r *Redis) SetJobAnalysis(ctx context.Context, key string, analysis *types.JobAnalysis, ttl time.Duration) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("序列化岗位分析失败: %w", err)
	}
	if ttl <= 0 {
		ttl = r.CacheExpireDuration()
	}
	return r.Set(ctx, fmt.Sprintf(constants.KeyJobAnalysis, key), string(data), ttl)
}

// GetJobText 读取岗位描述原文缓存，实现processor.PostingTextCache
func (r *Redis) GetJobText(ctx context.Context, urlHash string) (string, bool, error) {
	val, err := r.Get(ctx, fmt.Sprintf(constants.KeyJobPostingText, urlHash))
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetJobText 写入岗位描述原文缓存
func (r *Redis) SetJobText(ctx context.Context, urlHash, text string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.CacheExpireDuration()
	}
	return r.Set(ctx, fmt.Sprintf(constants.KeyJobPostingText, urlHash), text, ttl)
}

// GetRepoList 读取仓库列表缓存，实现processor.RepoCache
func (r *Redis) GetRepoList(ctx context.Context, username string) ([]types.RepoSummary, bool, error) {
	val, err := r.Get(ctx, fmt.Sprintf(constants.KeyGithubRepos, username))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var repos []types.RepoSummary
	if err := json.Unmarshal([]byte(val), &repos); err != nil {
		return nil, false, fmt.Errorf("解析缓存的仓库列表失败: %w", err)
	}
	return repos, true, nil
}

// SetRepoList 写入仓库列表缓存
func (r *Redis) SetRepoList(ctx context.Context, username string, repos []types.RepoSummary, ttl time.Duration) error {
	data, err := json.Marshal(repos)
	if err != nil {
		return fmt.Errorf("序列化仓库列表失败: %w", err)
	}
	if ttl <= 0 {
		ttl = r.CacheExpireDuration()
	}
	return r.Set(ctx, fmt.Sprintf(constants.KeyGithubRepos, username), string(data), ttl)
}

// GetReadme 读取README缓存
func (r *Redis) GetReadme(ctx context.Context, owner, repo string) (string, bool, error) {
	val, err := r.Get(ctx, fmt.Sprintf(constants.KeyGithubReadme, owner, repo))
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetReadme 写入README缓存
func (r *Redis) SetReadme(ctx context.Context, owner, repo, content string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.CacheExpireDuration()
	}
	return r.Set(ctx, fmt.Sprintf(constants.KeyGithubReadme, owner, repo), content, ttl)
}

// AcquireLock 获取分布式锁，返回锁持有者标识；未获取到时返回空串
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return lockValue, nil
	}
	return "", nil
}

// ReleaseLock 释放分布式锁，Lua脚本保证只有持有者能释放
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis客户端未初始化")
	}
	script := `
        if redis.call("get", KEYS[1]) == ARGV[1] then
            return redis.call("del", KEYS[1])
        else
            return 0
        end
    `
	res, err := r.Client.Eval(ctx, script, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}
	if released, ok := res.(int64); ok && released == 1 {
		return true, nil
	}
	return false, nil
}
