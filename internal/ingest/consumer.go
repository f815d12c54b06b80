package ingest

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/markany/safepc-ueba/internal/storage"
)

const logEvery = 100

// Store: 수집기가 필요로 하는 저장 연산
type Store interface {
	UpsertEntity(ctx context.Context, entityType, entityValue string) (int64, error)
	InsertEvent(ctx context.Context, ev storage.Event) error
}

// Consumer: Kafka 이벤트 토픽을 구독해 normalized_events로 적재
type Consumer struct {
	store     Store
	processed atomic.Int64
	skipped   atomic.Int64
}

func NewConsumer(store Store) *Consumer {
	return &Consumer{store: store}
}

// Start: 토픽/파티션별 컨슈머를 띄우고 ctx 취소까지 블록
func (c *Consumer) Start(ctx context.Context, bootstrap, topicsCSV string) error {
	topics := strings.Split(topicsCSV, ",")
	for i := range topics {
		topics[i] = strings.TrimSpace(topics[i])
	}

	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	consumer, err := sarama.NewConsumer([]string{bootstrap}, cfg)
	if err != nil {
		return err
	}
	defer consumer.Close()

	log.Printf("[INGEST] 시작: %s (%d개 토픽)", bootstrap, len(topics))

	for _, topic := range topics {
		partitions, err := consumer.Partitions(topic)
		if err != nil {
			log.Printf("[INGEST] %s 파티션 조회 실패: %v", topic, err)
			continue
		}
		for _, p := range partitions {
			pc, err := consumer.ConsumePartition(topic, p, sarama.OffsetNewest)
			if err != nil {
				log.Printf("[INGEST] %s/%d 구독 실패: %v", topic, p, err)
				continue
			}
			go func(pc sarama.PartitionConsumer) {
				defer pc.Close()
				for {
					select {
					case <-ctx.Done():
						return
					case msg, ok := <-pc.Messages():
						if !ok {
							return
						}
						c.processMessage(ctx, msg.Value)
					}
				}
			}(pc)
		}
	}

	<-ctx.Done()
	log.Printf("[INGEST] 종료: 처리 %d건, 건너뜀 %d건", c.processed.Load(), c.skipped.Load())
	return nil
}

func (c *Consumer) processMessage(ctx context.Context, data []byte) {
	mapped, err := MapAlert(data, time.Now())
	if err != nil {
		c.skipped.Add(1)
		return
	}

	entityID, err := c.store.UpsertEntity(ctx, mapped.EntityType, mapped.EntityValue)
	if err != nil {
		log.Printf("[INGEST] 엔티티 upsert 실패 (%s:%s): %v", mapped.EntityType, mapped.EntityValue, err)
		c.skipped.Add(1)
		return
	}

	err = c.store.InsertEvent(ctx, storage.Event{
		EntityID:   entityID,
		EventType:  mapped.EventType,
		Severity:   mapped.Severity,
		ObservedAt: mapped.ObservedAt,
	})
	if err != nil {
		log.Printf("[INGEST] 이벤트 저장 실패: %v", err)
		c.skipped.Add(1)
		return
	}

	if n := c.processed.Add(1); n%logEvery == 0 {
		log.Printf("[INGEST] 처리 %d건, 건너뜀 %d건", n, c.skipped.Load())
	}
}
