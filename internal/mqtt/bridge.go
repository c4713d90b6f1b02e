// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package mqtt

import (
	"context"
	"time"

	"kilnctl/internal/config"
	"kilnctl/internal/controller"
	"kilnctl/internal/events"
	"kilnctl/pkg/logger"
)

// transition batches buffered while a publish is in flight
const eventQueueSize = 64

// Bridge forwards bus traffic to MQTT: a retained status snapshot every
// interval and each transition as it happens.
type Bridge struct {
	conf *config.Config
	pub  Publisher
	log  *logger.Logger
}

func NewBridge(conf *config.Config, pub Publisher) *Bridge {
	return &Bridge{
		conf: conf,
		pub:  pub,
		log:  logger.New("MQTT"),
	}
}

func (b *Bridge) Run(ctx context.Context) {
	b.log.Info("Running...")
	defer b.log.Info("Stopped")

	prefix := b.conf.MQTT.TopicPrefix
	statusCh, unsubStatus := b.conf.EventBus.Subscribe(ctx, events.TopicStatus, true)
	defer unsubStatus()
	eventsCh, unsubEvents := b.conf.EventBus.SubscribeQueue(ctx, events.TopicEvents, eventQueueSize)
	defer unsubEvents()

	b.publish(prefix+SuffixAvailability, 1, true, []byte("online"))
	defer func() {
		b.publish(prefix+SuffixAvailability, 1, true, []byte("offline"))
		b.pub.Close()
	}()

	ticker := time.NewTicker(time.Duration(b.conf.MQTT.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	var latest *controller.Status
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-statusCh:
			if !ok {
				return
			}
			if st, ok := ev.(controller.Status); ok {
				first := latest == nil
				latest = &st
				if first {
					b.publishStatus(*latest)
				}
			}

		case ev, ok := <-eventsCh:
			if !ok {
				return
			}
			evs, _ := ev.([]events.Event)
			for _, e := range evs {
				payload, err := FormatEvent(e)
				if err != nil {
					b.log.Error("format event: %v", err)
					continue
				}
				b.publish(prefix+SuffixEvents, 1, false, payload)
			}

		case <-ticker.C:
			if latest != nil {
				b.publishStatus(*latest)
			}
		}
	}
}

func (b *Bridge) publishStatus(st controller.Status) {
	payload, err := FormatStatus(st)
	if err != nil {
		b.log.Error("format status: %v", err)
		return
	}
	b.publish(b.conf.MQTT.TopicPrefix+SuffixStatus, 0, true, payload)
}

func (b *Bridge) publish(topic string, qos byte, retained bool, payload []byte) {
	if err := b.pub.Publish(topic, qos, retained, payload); err != nil {
		b.log.Warn("%v", err)
	}
}
