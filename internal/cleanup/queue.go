// Package cleanup repairs partially written recipes. Creating a recipe is
// two remote writes (the recipe row, then its ingredient links); when the
// second write fails the recipe row is left behind with no ingredients.
// The failing request enqueues the recipe id here and a background worker
// deletes the orphaned row with bounded retries.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cooksmart/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Task tracks one orphaned recipe awaiting deletion.
type Task struct {
	ID        string    `json:"id"`
	RecipeID  string    `json:"recipe_id"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	LastError string    `json:"last_error,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config tunes the queue; zero values get sensible defaults.
type Config struct {
	Stream     string
	Group      string
	Consumer   string
	TaskTTL    time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
}

// Queue is a redis-streams work queue for orphan deletion tasks.
type Queue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	taskTTL      time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	once         sync.Once
}

// NewQueue wraps an existing redis client.
func NewQueue(client *redis.Client, cfg Config) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "cooksmart:cleanup"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "cleanup-workers"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = uuid.NewString()
	}
	q := &Queue{
		client:       client,
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		taskTTL:      cfg.TaskTTL,
		maxRetries:   cfg.MaxRetries,
		block:        cfg.Block,
		claimIdle:    cfg.ClaimIdle,
		retryDelay:   cfg.RetryDelay,
		maxLen:       cfg.MaxLen,
	}
	if q.taskTTL <= 0 {
		q.taskTTL = 24 * time.Hour
	}
	if q.maxRetries <= 0 {
		q.maxRetries = 5
	}
	if q.block <= 0 {
		q.block = 5 * time.Second
	}
	if q.claimIdle <= 0 {
		q.claimIdle = 30 * time.Second
	}
	if q.retryDelay <= 0 {
		q.retryDelay = 2 * time.Second
	}
	if q.maxLen <= 0 {
		q.maxLen = 10000
	}
	return q, nil
}

// Enqueue records an orphaned recipe for deletion.
func (q *Queue) Enqueue(ctx context.Context, recipeID, reason string) (Task, error) {
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return Task{}, errors.New("recipe id required")
	}
	now := time.Now().UTC()
	task := Task{
		ID:        uuid.NewString(),
		RecipeID:  recipeID,
		Reason:    reason,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.writeTask(ctx, task); err != nil {
		return Task{}, err
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"task_id":   task.ID,
			"recipe_id": task.RecipeID,
		},
	}).Err(); err != nil {
		return Task{}, err
	}
	return task, nil
}

// GetTask returns the tracked status of a task.
func (q *Queue) GetTask(ctx context.Context, taskID string) (Task, bool, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return Task{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.taskKey(taskID)).Result()
	if err != nil {
		return Task{}, false, err
	}
	if len(data) == 0 {
		return Task{}, false, nil
	}
	return decodeTask(taskID, data), true, nil
}

// Start launches worker goroutines that delete orphaned recipes via the
// given deleter. Workers stop when ctx is cancelled.
func (q *Queue) Start(ctx context.Context, concurrency int, deleter func(context.Context, string) error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, deleter)
	}
}

func (q *Queue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			util.LoggerFromContext(ctx).Warn("cleanup group create failed", "error", err)
		}
	})
}

func (q *Queue) consumeLoop(ctx context.Context, consumer string, deleter func(context.Context, string) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, deleter)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    q.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, deleter)
			}
		}
	}
}

func (q *Queue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *Queue) handleMessage(ctx context.Context, msg redis.XMessage, deleter func(context.Context, string) error) {
	taskID, _ := msg.Values["task_id"].(string)
	recipeID, _ := msg.Values["recipe_id"].(string)
	if taskID == "" || recipeID == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	task, err := q.markProcessing(ctx, taskID, recipeID)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if err := deleter(ctx, recipeID); err == nil {
		_ = q.setStatus(ctx, taskID, StatusDone, "")
		q.ackAndDel(ctx, msg.ID)
		return
	} else if task.Attempts >= q.maxRetries {
		util.LoggerFromContext(ctx).Error("orphan cleanup exhausted retries",
			"recipe_id", recipeID, "attempts", task.Attempts, "error", err)
		_ = q.setStatus(ctx, taskID, StatusFailed, err.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	} else {
		_ = q.setStatus(ctx, taskID, StatusQueued, err.Error())
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(q.retryDelay):
	}
	_ = q.requeueAndAck(ctx, msg.ID, taskID, recipeID)
}

func (q *Queue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

// requeueAndAck atomically re-adds the task and acks the old message so a
// crash cannot drop it.
func (q *Queue) requeueAndAck(ctx context.Context, msgID, taskID, recipeID string) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"task_id":   taskID,
			"recipe_id": recipeID,
		},
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *Queue) markProcessing(ctx context.Context, taskID, recipeID string) (Task, error) {
	task, found, err := q.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if !found {
		task = Task{ID: taskID, RecipeID: recipeID, CreatedAt: time.Now().UTC()}
	}
	task.Attempts++
	task.Status = StatusProcessing
	task.UpdatedAt = time.Now().UTC()
	if err := q.writeTask(ctx, task); err != nil {
		return Task{}, err
	}
	return task, nil
}

func (q *Queue) setStatus(ctx context.Context, taskID, status, errMsg string) error {
	task, _, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.Status = status
	task.LastError = errMsg
	task.UpdatedAt = time.Now().UTC()
	return q.writeTask(ctx, task)
}

func (q *Queue) writeTask(ctx context.Context, task Task) error {
	key := q.taskKey(task.ID)
	payload := map[string]any{
		"recipe_id":  task.RecipeID,
		"reason":     task.Reason,
		"status":     task.Status,
		"last_error": task.LastError,
		"attempts":   strconv.Itoa(task.Attempts),
		"created_at": task.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": task.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.taskTTL).Err()
	return nil
}

func (q *Queue) taskKey(taskID string) string {
	return fmt.Sprintf("cleanup:%s:%s", q.stream, taskID)
}

func decodeTask(taskID string, data map[string]string) Task {
	task := Task{ID: taskID}
	task.RecipeID = data["recipe_id"]
	task.Reason = data["reason"]
	task.Status = data["status"]
	task.LastError = data["last_error"]
	if v := data["attempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			task.Attempts = n
		}
	}
	if v := data["created_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			task.CreatedAt = t
		}
	}
	if v := data["updated_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			task.UpdatedAt = t
		}
	}
	return task
}
