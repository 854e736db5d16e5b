// Package bridge ingests USB hotplug events from a Redis Stream and turns
// them into jobs on the default queue, debouncing event storms and
// deduplicating against a durable connected-device set.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/autoweave/jobqueue/internal/config"
	"github.com/autoweave/jobqueue/internal/job"
	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/queue"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const connectedSetKey = "usb:connected"

// defaultDebounceWindow collapses repeated attach/detach events for the
// same device signature (a common symptom of chattering USB controllers)
// into a single fire.
const defaultDebounceWindow = 50 * time.Millisecond

// hotplugEvent is the parsed shape of one aw:hotplug stream message.
type hotplugEvent struct {
	msgID        string
	isAttach     bool
	signature    string
	vendorID     string
	productID    string
	bus          string
	address      string
	devicePath   string
	serialNumber string
}

// Bridge reads the USB hotplug stream and enqueues usb.device.attach /
// usb.device.detach jobs on the queue it is bound to.
type Bridge struct {
	client       *redis.Client
	queue        *queue.Queue
	cfg          config.USBBridgeConfig
	consumerName string

	limiter *tokenBucket

	mu        sync.Mutex
	debounced map[string]*time.Timer
	latest    map[string]hotplugEvent
	overflow  []hotplugEvent

	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    logger.Logger
}

// New constructs a Bridge bound to a Redis client and the queue it will
// enqueue USB jobs into.
func New(client *redis.Client, q *queue.Queue, cfg config.USBBridgeConfig) *Bridge {
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = fmt.Sprintf("bridge-%s", uuid.New().String()[:8])
	}
	return &Bridge{
		client:       client,
		queue:        q,
		cfg:          cfg,
		consumerName: consumer,
		limiter:      newTokenBucket(20, 40),
		debounced:    make(map[string]*time.Timer),
		latest:       make(map[string]hotplugEvent),
		log:          logger.Default().WithComponent(logger.ComponentBridge),
	}
}

// Start creates the consumer group (idempotent) and begins the read and
// overflow-drain loops in the background. It returns once the consumer
// group is confirmed to exist.
func (b *Bridge) Start(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.cfg.StreamName, b.cfg.ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.wg.Add(2)
	go b.readLoop(runCtx)
	go b.drainOverflow(runCtx)

	b.log.Info("stream bridge started", "stream", b.cfg.StreamName, "group", b.cfg.ConsumerGroup, "consumer", b.consumerName)
	return nil
}

// Stop cancels both background loops and waits for them to exit.
func (b *Bridge) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	b.wg.Wait()
	b.log.Info("stream bridge stopped")
}

func (b *Bridge) readLoop(ctx context.Context) {
	defer b.wg.Done()

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.ConsumerGroup,
			Consumer: b.consumerName,
			Streams:  []string{b.cfg.StreamName, ">"},
			Count:    b.cfg.BatchSize,
			Block:    b.cfg.PollInterval,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			b.log.Warn("hotplug read error", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				ev, err := parseMessage(msg)
				if err != nil {
					b.log.Warn("dropping malformed hotplug message", "msg_id", msg.ID, "error", err)
					b.ack(ctx, msg.ID)
					continue
				}
				b.debounce(ctx, ev)
			}
		}
	}
}

func parseMessage(msg redis.XMessage) (hotplugEvent, error) {
	ev := hotplugEvent{msgID: msg.ID}

	eventType, _ := msg.Values["event"].(string)
	switch eventType {
	case "attach":
		ev.isAttach = true
	case "detach":
		ev.isAttach = false
	default:
		return ev, fmt.Errorf("unknown hotplug event type: %q", eventType)
	}

	ev.vendorID, _ = msg.Values["vendor_id"].(string)
	ev.productID, _ = msg.Values["product_id"].(string)
	ev.bus, _ = msg.Values["bus"].(string)
	ev.address, _ = msg.Values["address"].(string)
	ev.devicePath, _ = msg.Values["device_path"].(string)
	ev.serialNumber, _ = msg.Values["serial_number"].(string)

	if ev.vendorID == "" || ev.productID == "" {
		return ev, fmt.Errorf("hotplug message missing vendor_id/product_id")
	}
	ev.signature = DeviceSignature(ev.vendorID, ev.productID, ev.bus, ev.address)
	return ev, nil
}

// debounce collapses repeated events for the same signature within the
// debounce window into a single fire of the most recent event.
func (b *Bridge) debounce(ctx context.Context, ev hotplugEvent) {
	window := defaultDebounceWindow

	b.mu.Lock()
	defer b.mu.Unlock()

	if prior, ok := b.latest[ev.signature]; ok && prior.msgID != ev.msgID {
		// A newer event superseded the one still waiting out its
		// debounce window; ack the superseded message now since it
		// will never be individually processed.
		b.ack(ctx, prior.msgID)
	}
	b.latest[ev.signature] = ev

	if timer, ok := b.debounced[ev.signature]; ok {
		timer.Reset(window)
		return
	}
	b.debounced[ev.signature] = time.AfterFunc(window, func() {
		b.fire(ctx, ev.signature)
	})
}

func (b *Bridge) fire(ctx context.Context, signature string) {
	b.mu.Lock()
	ev, ok := b.latest[signature]
	delete(b.latest, signature)
	delete(b.debounced, signature)
	b.mu.Unlock()
	if !ok {
		return
	}

	if !b.limiter.Allow() {
		b.mu.Lock()
		b.overflow = append(b.overflow, ev)
		b.mu.Unlock()
		return
	}
	b.process(ctx, ev)
}

// drainOverflow periodically retries events that were deferred by the
// rate limiter, never dropping them silently.
func (b *Bridge) drainOverflow(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			if len(b.overflow) == 0 {
				b.mu.Unlock()
				continue
			}
			var remaining []hotplugEvent
			var ready []hotplugEvent
			for _, ev := range b.overflow {
				if b.limiter.Allow() {
					ready = append(ready, ev)
				} else {
					remaining = append(remaining, ev)
				}
			}
			b.overflow = remaining
			b.mu.Unlock()

			for _, ev := range ready {
				b.process(ctx, ev)
			}
		}
	}
}

// process deduplicates against the connected-device set, then enqueues
// the corresponding job and acknowledges the stream message only once
// the enqueue (or a definitive duplicate-drop) has been decided.
func (b *Bridge) process(ctx context.Context, ev hotplugEvent) {
	wasConnected, err := b.client.HExists(ctx, connectedSetKey, ev.signature).Result()
	if err != nil {
		b.log.Warn("failed to check connected-device set", "signature", ev.signature, "error", err)
		return
	}

	if ev.isAttach && wasConnected {
		b.log.Debug("dropping duplicate attach", "signature", ev.signature)
		b.ack(ctx, ev.msgID)
		return
	}
	if !ev.isAttach && !wasConnected {
		b.log.Debug("dropping duplicate detach", "signature", ev.signature)
		b.ack(ctx, ev.msgID)
		return
	}

	kind, payload, err := b.buildJob(ev)
	if err != nil {
		b.log.Warn("failed to build job from hotplug event", "signature", ev.signature, "error", err)
		return
	}

	if _, err := b.queue.Enqueue(ctx, kind, payload, job.Options{}); err != nil {
		b.log.Warn("failed to enqueue usb job", "signature", ev.signature, "kind", kind, "error", err)
		return
	}

	if ev.isAttach {
		b.client.HSet(ctx, connectedSetKey, ev.signature, ev.devicePath)
	} else {
		b.client.HDel(ctx, connectedSetKey, ev.signature)
	}
	b.ack(ctx, ev.msgID)
}

func (b *Bridge) buildJob(ev hotplugEvent) (job.JobKind, json.RawMessage, error) {
	if ev.isAttach {
		payload, err := json.Marshal(job.USBAttachPayload{
			DeviceSignature: ev.signature,
			VendorID:        ev.vendorID,
			ProductID:       ev.productID,
			DevicePath:      ev.devicePath,
			SerialNumber:    ev.serialNumber,
		})
		return job.KindUSBAttach, payload, err
	}
	payload, err := json.Marshal(job.USBDetachPayload{DeviceSignature: ev.signature})
	return job.KindUSBDetach, payload, err
}

func (b *Bridge) ack(ctx context.Context, msgID string) {
	if err := b.client.XAck(ctx, b.cfg.StreamName, b.cfg.ConsumerGroup, msgID).Err(); err != nil {
		b.log.Warn("failed to ack hotplug message", "msg_id", msgID, "error", err)
	}
}
