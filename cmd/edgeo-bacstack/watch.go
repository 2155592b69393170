// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo/drivers/bacstack/bacnet"
	"github.com/edgeo/drivers/bacstack/internal/mqttpub"
)

var (
	watchObject      string
	watchProperty    string
	watchInterval    time.Duration
	watchCOV         bool
	watchCOVLifetime uint32
	watchMQTT        string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a property for changes",
	Long: `Watch monitors a BACnet property for changes.

Two modes are available:
  - Polling: periodically reads the property value
  - COV: subscribes to Change of Value notifications

Changes can be forwarded to an MQTT broker with --mqtt.

Examples:
  # Poll present value every second
  edgeo-bacstack watch -d 1234 -O analog-input:1 --interval 1s

  # Subscribe to COV notifications for 5 minutes at a time
  edgeo-bacstack watch -d 1234 -O analog-input:1 --cov --cov-lifetime 300

  # Forward notifications to MQTT
  edgeo-bacstack watch -d 1234 -O ai:1 --cov --mqtt tcp://broker:1883`,

	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchObject, "object", "O", "", "Object type and instance (e.g., analog-input:1)")
	watchCmd.Flags().StringVarP(&watchProperty, "property", "P", "present-value", "Property identifier")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "Polling interval")
	watchCmd.Flags().BoolVar(&watchCOV, "cov", false, "Use a COV subscription instead of polling")
	watchCmd.Flags().Uint32Var(&watchCOVLifetime, "cov-lifetime", 0, "COV subscription lifetime in seconds (0 = indefinite)")
	watchCmd.Flags().StringVar(&watchMQTT, "mqtt", "", "MQTT broker URI to publish changes to")

	watchCmd.MarkFlagRequired("object")
}

// watcher prints changes and optionally forwards them to MQTT
type watcher struct {
	deviceID uint32
	pub      *mqttpub.Publisher
}

func runWatch(cmd *cobra.Command, args []string) error {
	deviceID, err := targetDevice()
	if err != nil {
		return err
	}
	objectID, err := bacnet.ParseObjectIdentifier(watchObject)
	if err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}
	propID, err := parseProperty(watchProperty)
	if err != nil {
		return err
	}

	w := &watcher{deviceID: deviceID}
	if watchMQTT != "" {
		uri, err := url.Parse(watchMQTT)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		w.pub, err = mqttpub.Dial(uri, fmt.Sprintf("edgeo-bacstack-watch-%d", deviceID), "bacstack", logger)
		if err != nil {
			return err
		}
		defer w.pub.Close()
	}

	s, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(os.Stderr, "Watching %s %s on device %d, press Ctrl+C to stop\n", objectID, propID, deviceID)

	if watchCOV {
		return w.cov(cmd.Context(), s.client, objectID, propID)
	}
	return w.poll(cmd.Context(), s.client, objectID, propID)
}

func (w *watcher) poll(ctx context.Context, client *bacnet.Client, objectID bacnet.ObjectIdentifier, propID bacnet.PropertyIdentifier) error {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	var last interface{}
	first := true
	for {
		readCtx, cancel := context.WithTimeout(ctx, requestTimeout(1))
		value, err := client.ReadProperty(readCtx, w.deviceID, objectID, propID)
		cancel()

		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			fmt.Fprintf(os.Stderr, "[%s] error: %v\n", time.Now().Format("15:04:05.000"), err)
		default:
			changed := first || !cmp.Equal(last, value)
			if changed || viper.GetBool("verbose") {
				w.emit(objectID, bacnet.PropertyValue{ObjectID: objectID, PropertyID: propID, Value: value}, changed)
			}
			last, first = value, false
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *watcher) cov(ctx context.Context, client *bacnet.Client, objectID bacnet.ObjectIdentifier, propID bacnet.PropertyIdentifier) error {
	var opts []bacnet.SubscribeOption
	if watchCOVLifetime > 0 {
		opts = append(opts, bacnet.WithSubscriptionLifetime(watchCOVLifetime))
	}

	handler := func(deviceID uint32, oid bacnet.ObjectIdentifier, values []bacnet.PropertyValue) {
		for _, pv := range values {
			if pv.PropertyID == propID || viper.GetBool("verbose") {
				w.emit(oid, pv, true)
			}
		}
	}

	subCtx, cancel := context.WithTimeout(ctx, requestTimeout(1))
	subID, err := client.SubscribeCOV(subCtx, w.deviceID, objectID, handler, opts...)
	cancel()
	if err != nil {
		return fmt.Errorf("subscribe COV: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Subscribed to COV (process %d)\n", subID)

	// Renew a limited subscription before it lapses
	var renew <-chan time.Time
	if watchCOVLifetime > 0 {
		t := time.NewTicker(time.Duration(watchCOVLifetime) * time.Second * 3 / 4)
		defer t.Stop()
		renew = t.C
	}
	for {
		select {
		case <-ctx.Done():
			unsubCtx, cancel := context.WithTimeout(context.Background(), requestTimeout(1))
			defer cancel()
			if err := client.UnsubscribeCOV(unsubCtx, w.deviceID, objectID, subID); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: unsubscribe failed: %v\n", err)
			}
			return nil
		case <-renew:
			// Subscribe again, then drop the old subscription
			subCtx, cancel := context.WithTimeout(ctx, 2*requestTimeout(1))
			next, err := client.SubscribeCOV(subCtx, w.deviceID, objectID, handler, opts...)
			if err == nil {
				err = client.UnsubscribeCOV(subCtx, w.deviceID, objectID, subID)
				subID = next
			}
			cancel()
			if err != nil {
				logger.Warn("COV renewal failed", "object", objectID.String(), "error", err)
			}
		}
	}
}

func (w *watcher) emit(oid bacnet.ObjectIdentifier, pv bacnet.PropertyValue, changed bool) {
	now := time.Now()
	switch NewFormatter().format {
	case FormatJSON, FormatYAML:
		NewFormatter().Encode(struct {
			Time     time.Time   `json:"time" yaml:"time"`
			Object   string      `json:"object" yaml:"object"`
			Property string      `json:"property" yaml:"property"`
			Value    interface{} `json:"value" yaml:"value"`
			Changed  bool        `json:"changed" yaml:"changed"`
		}{now, oid.String(), pv.PropertyID.String(), jsonValue(pv.Value), changed})
	case FormatCSV:
		fmt.Printf("%s,%s,%s,%s,%v\n", now.Format(time.RFC3339Nano), oid, pv.PropertyID, formatValue(pv.Value), changed)
	default:
		marker := " "
		if changed {
			marker = "*"
		}
		fmt.Printf("[%s] %s %s %s = %s\n", now.Format("15:04:05.000"), marker, oid, pv.PropertyID, formatValue(pv.Value))
	}

	if w.pub != nil && changed {
		if err := w.pub.PublishCOV(w.deviceID, oid, []bacnet.PropertyValue{pv}); err != nil {
			logger.Warn("mqtt publish failed", "error", err)
		}
	}
}
