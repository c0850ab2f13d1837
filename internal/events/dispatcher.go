package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"creditengine/internal/infrastructure/metrics"
	"creditengine/internal/model"
	"creditengine/internal/repository"
	"creditengine/pkg/idgen"

	"gorm.io/gorm"
)

// Event 领域事件，提交成功后才会发布
type Event struct {
	Type      string                 `json:"type"`
	UserID    int64                  `json:"user_id"` // 事件接收人
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"ts"`
}

// Dispatcher 把事件异步写入 outbox，由 OutboxSender 投递到 Kafka
//
// Publish 不阻塞：队列满时直接丢弃并计数，调用方的主事务不受影响
type Dispatcher struct {
	outboxRepo    *repository.OutboxRepository
	topic         string
	queue         chan Event
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
	cancel        context.CancelFunc
}

func NewDispatcher(db *gorm.DB, topic string, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Dispatcher{
		outboxRepo:    repository.NewOutboxRepository(db),
		topic:         topic,
		queue:         make(chan Event, queueSize),
		batchSize:     50,
		flushInterval: 200 * time.Millisecond,
	}
}

// Publish 非阻塞投递
func (d *Dispatcher) Publish(evt Event) bool {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case d.queue <- evt:
		return true
	default:
		metrics.AsyncDropped.WithLabelValues("event").Inc()
		log.Printf("[EventDispatcher] 队列已满，丢弃事件: type=%s, userID=%d", evt.Type, evt.UserID)
		return false
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	log.Println("[EventDispatcher] 事件分发任务启动")

	d.wg.Add(1)
	go d.loop(ctx)
}

// Stop 停止并把队列里剩余的事件落库
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()
	log.Println("[EventDispatcher] 任务停止")
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.flushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, d.batchSize)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case evt := <-d.queue:
					batch = append(batch, evt)
				default:
					d.flush(context.Background(), batch)
					return
				}
			}
		case evt := <-d.queue:
			batch = append(batch, evt)
			if len(batch) >= d.batchSize {
				d.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				d.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (d *Dispatcher) flush(ctx context.Context, batch []Event) {
	if len(batch) == 0 {
		return
	}
	msgs := make([]*model.OutboxMessage, 0, len(batch))
	for _, evt := range batch {
		msg, err := d.toOutbox(evt)
		if err != nil {
			log.Printf("[EventDispatcher] 序列化事件失败: type=%s, err=%v", evt.Type, err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := d.outboxRepo.CreateBatch(ctx, msgs); err != nil {
		log.Printf("[EventDispatcher] 写入 outbox 失败: count=%d, err=%v", len(msgs), err)
	}
}

func (d *Dispatcher) toOutbox(evt Event) (*model.OutboxMessage, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return &model.OutboxMessage{
		MessageKey: idgen.GenerateEventKey(),
		EventType:  evt.Type,
		UserID:     evt.UserID,
		Topic:      d.topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}, nil
}

// NewOutboxMessage 在事务内直接写 outbox 时使用，和异步路径生成相同的消息格式
func NewOutboxMessage(topic string, evt Event) (*model.OutboxMessage, error) {
	d := &Dispatcher{topic: topic}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	return d.toOutbox(evt)
}
