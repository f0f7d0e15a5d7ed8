package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xtxerr/croft/config"
	"github.com/xtxerr/croft/internal/errors"
	"github.com/xtxerr/croft/internal/logging"
)

// =============================================================================
// Configuration
// =============================================================================

// BrokerConfig holds Redis broker configuration.
type BrokerConfig struct {
	// Addr is the Redis host:port.
	Addr string

	// Password authenticates against Redis. Empty for no auth.
	Password string

	// DB selects the Redis logical database.
	DB int

	// QueueKey is the list the dispatcher pushes tasks onto.
	QueueKey string

	// StateTTL is how long task state hashes live after their last update.
	StateTTL time.Duration
}

// DefaultBrokerConfig returns the default broker configuration.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		Addr:     config.DefaultRedisAddr,
		QueueKey: config.DefaultQueueKey,
		StateTTL: config.DefaultTaskStateTTL,
	}
}

// =============================================================================
// Broker
// =============================================================================

// Broker queues tasks on a Redis list and tracks per-task state in Redis
// hashes. It is safe for concurrent use.
type Broker struct {
	client *redis.Client
	config BrokerConfig
	logger *slog.Logger
}

// NewBroker creates a broker for the given Redis instance. The connection is
// lazy; use Ping to verify reachability.
func NewBroker(cfg BrokerConfig) *Broker {
	if cfg.QueueKey == "" {
		cfg.QueueKey = config.DefaultQueueKey
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = config.DefaultTaskStateTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Broker{
		client: client,
		config: cfg,
		logger: logging.Component("broker"),
	}
}

// Ping verifies the Redis connection.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(errors.ErrBrokerUnavailable, err.Error())
	}
	return nil
}

// Close releases the Redis client.
func (b *Broker) Close() error {
	return b.client.Close()
}

func (b *Broker) stateKey(id string) string {
	return "croft:task:" + id
}

// =============================================================================
// Enqueue / Reserve
// =============================================================================

// Enqueue queues a task of the given kind and returns its id. The task state
// is initialized to PENDING before the task becomes visible to workers.
func (b *Broker) Enqueue(ctx context.Context, kind Kind, payload interface{}) (string, error) {
	task := Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		EnqueuedAt: time.Now().UTC(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", errors.Wrap(err, "marshal payload")
		}
		task.Payload = data
	}

	data, err := json.Marshal(task)
	if err != nil {
		return "", errors.Wrap(err, "marshal task")
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := b.stateKey(task.ID)
		pipe.HSet(ctx, key,
			"status", string(StatePending),
			"updated_at", task.EnqueuedAt.Format(time.RFC3339Nano))
		pipe.Expire(ctx, key, b.config.StateTTL)
		pipe.LPush(ctx, b.config.QueueKey, data)
		return nil
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrBrokerUnavailable, err.Error())
	}

	b.logger.Debug("task enqueued", "task_id", task.ID, "kind", task.Kind)
	return task.ID, nil
}

// Reserve blocks up to timeout for the next task. Returns (nil, nil) when the
// queue stayed empty, so callers can re-check for shutdown.
func (b *Broker) Reserve(ctx context.Context, timeout time.Duration) (*Task, error) {
	res, err := b.client.BRPop(ctx, timeout, b.config.QueueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// BRPOP returns [key, value].
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, errors.Wrap(err, "unmarshal task")
	}
	return &task, nil
}

// QueueDepth returns the number of tasks waiting in the queue.
func (b *Broker) QueueDepth(ctx context.Context) (int64, error) {
	return b.client.LLen(ctx, b.config.QueueKey).Result()
}

// =============================================================================
// Task State
// =============================================================================

// SetProgress records PROGRESS with the current/total counters.
func (b *Broker) SetProgress(ctx context.Context, id string, current, total int64) error {
	return b.setState(ctx, id, map[string]interface{}{
		"status":  string(StateProgress),
		"current": current,
		"total":   total,
	})
}

// SetSuccess records SUCCESS with the final task message.
func (b *Broker) SetSuccess(ctx context.Context, id, message string) error {
	return b.setState(ctx, id, map[string]interface{}{
		"status":  string(StateSuccess),
		"message": message,
	})
}

// SetFailure records FAILURE with the error text.
func (b *Broker) SetFailure(ctx context.Context, id, message string) error {
	return b.setState(ctx, id, map[string]interface{}{
		"status":  string(StateFailure),
		"message": message,
	})
}

func (b *Broker) setState(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	key := b.stateKey(id)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, b.config.StateTTL)
		return nil
	})
	if err != nil {
		return errors.Wrap(errors.ErrBrokerUnavailable, err.Error())
	}
	return nil
}

// Status reports the state of a task. Ids the broker has never seen (or whose
// state already expired) read as PENDING, mirroring how a result backend
// treats unknown ids.
func (b *Broker) Status(ctx context.Context, id string) (*Status, error) {
	fields, err := b.client.HGetAll(ctx, b.stateKey(id)).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrBrokerUnavailable, err.Error())
	}

	st := &Status{
		TaskID: id,
		State:  StatePending,
	}
	if len(fields) == 0 {
		return st, nil
	}

	if v, ok := fields["status"]; ok && v != "" {
		st.State = State(v)
	}
	if v, ok := fields["current"]; ok {
		st.Current, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["total"]; ok {
		st.Total, _ = strconv.ParseInt(v, 10, 64)
	}
	st.Message = fields["message"]

	return st, nil
}
