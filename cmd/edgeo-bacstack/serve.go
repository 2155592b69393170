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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo/drivers/bacstack/bacnet"
	"github.com/edgeo/drivers/bacstack/bacnet/mstp"
	"github.com/edgeo/drivers/bacstack/internal/mqttpub"
	"github.com/edgeo/drivers/bacstack/internal/objectdb"
	"github.com/edgeo/drivers/bacstack/internal/promexport"
	"github.com/edgeo/drivers/bacstack/internal/serial"
)

// errRestart ends one serving cycle after a cold or warm start request
var errRestart = errors.New("restart requested")

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a BACnet device described in a YAML file",
	Long: `Serve runs a BACnet device whose objects are read from a YAML file. The
device answers Who-Is, Who-Has, ReadProperty, ReadPropertyMultiple,
WriteProperty, DeviceCommunicationControl and ReinitializeDevice.
A cold or warm start reloads the object file.

The device listens on BACnet/IP unless --mstp names a serial port.

Examples:
  # Serve on BACnet/IP with Prometheus metrics on :9108
  edgeo-bacstack serve --objects plant.yaml --metrics :9108

  # Serve on an RS-485 adapter as MS/TP station 12
  edgeo-bacstack serve --objects plant.yaml --mstp /dev/ttyUSB0 --mac 12 --baud 38400

  # Mirror writes and discovered devices to MQTT
  edgeo-bacstack serve --objects plant.yaml --mqtt tcp://broker:1883`,

	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("objects", "", "Object table YAML file")
	f.String("mstp", "", "Serial device for MS/TP (default: BACnet/IP)")
	f.Uint8("mac", 1, "MS/TP station address (0-254)")
	f.Int("baud", 38400, "MS/TP baud rate")
	f.Uint16("network", 0, "Local network number (0 = learn or none)")
	f.String("metrics", "", "Address to serve Prometheus metrics on (e.g. :9108)")
	f.String("mqtt", "", "MQTT broker URI for writes and discovered devices")
	f.String("mqtt-prefix", "bacstack", "MQTT topic prefix")
	f.Bool("announce", true, "Broadcast I-Am at startup")

	for _, name := range []string{"objects", "mstp", "mac", "baud", "network", "metrics", "mqtt", "mqtt-prefix", "announce"} {
		if err := viper.BindPFlag("serve."+name, f.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	path := viper.GetString("serve.objects")
	if path == "" {
		return fmt.Errorf("an object file is required (--objects)")
	}
	if dev := viper.GetString("serve.mstp"); dev != "" && !serial.Supported(viper.GetInt("serve.baud")) {
		return fmt.Errorf("unsupported MS/TP baud rate %d", viper.GetInt("serve.baud"))
	}

	for {
		err := serveOnce(cmd.Context(), path)
		if !errors.Is(err, errRestart) {
			return err
		}
		logger.Info("restarting device", slog.String("objects", path))
	}
}

// serveOnce serves the object file until ctx ends or a restart is
// requested.
func serveOnce(parent context.Context, path string) error {
	db, err := objectdb.Open(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	link, err := openLink(ctx)
	if err != nil {
		return err
	}

	opts := []bacnet.Option{
		bacnet.WithDeviceID(db.DeviceID()),
		bacnet.WithVendorID(db.VendorID()),
		bacnet.WithAPDUTimeout(viper.GetDuration("timeout")),
		bacnet.WithRetries(viper.GetInt("retries")),
		bacnet.WithLogger(logger),
	}
	if n := uint16(viper.GetUint32("serve.network")); n != 0 {
		opts = append(opts, bacnet.WithNetworkNumber(n))
	}
	stack := bacnet.NewStack(link, opts...)
	defer stack.Close()

	devOpts := []bacnet.DeviceOption{bacnet.WithReinitializeFunc(func(state bacnet.ReinitializedState) error {
		switch state {
		case bacnet.ReinitColdstart, bacnet.ReinitWarmstart:
			// Let the SimpleACK go out first
			time.AfterFunc(500*time.Millisecond, func() { cancel(errRestart) })
			return nil
		}
		return bacnet.NewBACnetError(bacnet.ErrorClassServices, bacnet.ErrorCodeOptionalFunctionalityNotSupported)
	})}
	if pw := db.Password(); pw != "" {
		devOpts = append(devOpts, bacnet.WithPassword(pw))
	}
	device := bacnet.NewDevice(stack, db, devOpts...)

	if addr := viper.GetString("serve.metrics"); addr != "" {
		stop, err := serveMetrics(addr, stack, db)
		if err != nil {
			return err
		}
		defer stop()
	}
	if uri := viper.GetString("serve.mqtt"); uri != "" {
		pub, err := dialMQTT(uri, db.DeviceID())
		if err != nil {
			return err
		}
		defer pub.Close()
		mirror(db, pub.PublishChange)
		bacnet.NewClient(stack).OnDevice(func(dev *bacnet.DeviceInfo) {
			if err := pub.PublishDevice(dev); err != nil {
				logger.Warn("device not published", slog.Any("error", err))
			}
		})
	}

	errc := make(chan error, 1)
	go func() {
		errc <- stack.Run(ctx)
	}()
	if viper.GetBool("serve.announce") {
		if err := device.Announce(); err != nil {
			logger.Warn("I-Am not sent", slog.Any("error", err))
		}
	}
	logger.Info("serving device",
		slog.String("device", device.ObjectID().String()),
		slog.Int("objects", len(db.Objects())),
		slog.String("address", link.MyAddress().String()))

	err = <-errc
	if cause := context.Cause(ctx); errors.Is(cause, errRestart) {
		return errRestart
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openLink opens MS/TP when --mstp is set, BACnet/IP otherwise
func openLink(ctx context.Context) (bacnet.Datalink, error) {
	dev := viper.GetString("serve.mstp")
	if dev == "" {
		return openBIP(ctx)
	}
	f, err := serial.Open(dev, viper.GetInt("serve.baud"))
	if err != nil {
		return nil, err
	}
	port, err := mstp.NewPort(f, uint8(viper.GetUint("serve.mac")), mstp.WithLogger(logger))
	if err != nil {
		f.Close()
		return nil, err
	}
	return port, nil
}

// serveMetrics exports the stack counters and the numeric object values
func serveMetrics(addr string, stack *bacnet.Stack, db *objectdb.DB) (func(), error) {
	values := promexport.NewValues()
	mirror(db, values.Observe)

	handler, err := promexport.Handler(promexport.NewCollector(stack.Metrics(), db.DeviceID()), values)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("serving metrics", slog.String("address", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

func dialMQTT(raw string, deviceID uint32) (*mqttpub.Publisher, error) {
	uri, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("mqtt: %w", err)
	}
	return mqttpub.Dial(uri, fmt.Sprintf("edgeo-bacstack-%d", deviceID), viper.GetString("serve.mqtt-prefix"), logger)
}

// mirror sends the current present values to f and registers f for
// every later change.
func mirror(db *objectdb.DB, f objectdb.ChangeFunc) {
	for _, oid := range db.Objects() {
		values, err := db.Value(oid, bacnet.PropertyPresentValue)
		if err != nil {
			continue
		}
		f(oid, bacnet.PropertyPresentValue, values)
	}
	db.OnChange(f)
}
