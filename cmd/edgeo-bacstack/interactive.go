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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/bacstack/bacnet"
)

const shellHelp = `Commands:
  scan                                  - Discover devices
  use <device-id>                       - Select a device
  list                                  - List objects on current device
  read <object> [property]              - Read a property
  write <object> <property> <value> [priority]
                                        - Write a property
  info                                  - Show device info
  metrics                               - Show client metrics
  help                                  - Show help
  exit                                  - Exit interactive mode
`

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start an interactive BACnet session",
	Long: `Interactive mode provides a REPL for exploring BACnet devices.

` + shellHelp + `
Examples:
  bacnet> scan
  bacnet> use 1234
  bacnet[1234]> list
  bacnet[1234]> read ai:1 pv
  bacnet[1234]> write ao:1 pv 75.5 8`,

	RunE: runInteractive,
}

// shell is one interactive session
type shell struct {
	client *bacnet.Client
	out    io.Writer
	device uint32
	picked bool
}

func runInteractive(cmd *cobra.Command, args []string) error {
	s, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	sh := &shell{client: s.client, out: os.Stdout}
	if id, err := targetDevice(); err == nil {
		sh.device, sh.picked = id, true
	}

	fmt.Fprintln(sh.out, "BACnet Interactive Shell")
	fmt.Fprintln(sh.out, "Type 'help' for available commands, 'exit' to quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		sh.prompt()
		if !scanner.Scan() {
			return scanner.Err()
		}
		if done := sh.exec(cmd.Context(), strings.Fields(scanner.Text())); done {
			return nil
		}
	}
}

func (sh *shell) prompt() {
	if sh.picked {
		fmt.Fprintf(sh.out, "bacnet[%d]> ", sh.device)
		return
	}
	fmt.Fprint(sh.out, "bacnet> ")
}

// exec runs one command line and reports whether the session is over
func (sh *shell) exec(ctx context.Context, parts []string) bool {
	if len(parts) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout(4))
	defer cancel()

	var err error
	switch strings.ToLower(parts[0]) {
	case "exit", "quit", "q":
		return true
	case "help", "?":
		fmt.Fprint(sh.out, shellHelp)
	case "scan":
		err = sh.scan(ctx)
	case "use":
		err = sh.use(parts[1:])
	case "list":
		err = sh.list(ctx)
	case "read":
		err = sh.read(ctx, parts[1:])
	case "write":
		err = sh.write(ctx, parts[1:])
	case "info":
		err = sh.info(ctx)
	case "metrics":
		sh.metrics()
	default:
		err = fmt.Errorf("unknown command %q, type 'help'", parts[0])
	}
	if err != nil {
		fmt.Fprintf(sh.out, "Error: %v\n", err)
	}
	return false
}

func (sh *shell) need() error {
	if !sh.picked {
		return fmt.Errorf("no device selected, use 'use <device-id>' first")
	}
	return nil
}

func (sh *shell) scan(ctx context.Context) error {
	devices, err := sh.client.WhoIs(ctx, bacnet.WithDiscoveryTimeout(3*time.Second))
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(sh.out, "No devices found")
		return nil
	}
	f := NewFormatter()
	f.writer = sh.out
	return printDevices(f, devices)
}

func (sh *shell) use(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: use <device-id>")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || id >= bacnet.UnconfiguredDeviceID {
		return fmt.Errorf("invalid device ID %q", args[0])
	}
	sh.device, sh.picked = uint32(id), true
	fmt.Fprintf(sh.out, "Selected device %d\n", sh.device)
	return nil
}

func (sh *shell) list(ctx context.Context) error {
	if err := sh.need(); err != nil {
		return err
	}
	objects, err := sh.client.GetObjectList(ctx, sh.device)
	if err != nil {
		return err
	}
	for _, oid := range objects {
		fmt.Fprintf(sh.out, "  %s\n", oid)
	}
	fmt.Fprintf(sh.out, "%d object(s)\n", len(objects))
	return nil
}

func (sh *shell) read(ctx context.Context, args []string) error {
	if err := sh.need(); err != nil {
		return err
	}
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: read <object> [property]")
	}
	oid, err := bacnet.ParseObjectIdentifier(args[0])
	if err != nil {
		return err
	}
	prop := bacnet.PropertyPresentValue
	if len(args) == 2 {
		if prop, err = parseProperty(args[1]); err != nil {
			return err
		}
	}
	v, err := sh.client.ReadProperty(ctx, sh.device, oid, prop)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s %s = %s\n", oid, prop, formatValue(v))
	return nil
}

func (sh *shell) write(ctx context.Context, args []string) error {
	if err := sh.need(); err != nil {
		return err
	}
	if len(args) < 3 || len(args) > 4 {
		return fmt.Errorf("usage: write <object> <property> <value> [priority]")
	}
	oid, err := bacnet.ParseObjectIdentifier(args[0])
	if err != nil {
		return err
	}
	prop, err := parseProperty(args[1])
	if err != nil {
		return err
	}
	value, err := parseValue(args[2], "")
	if err != nil {
		return err
	}
	var opts []bacnet.WriteOption
	if len(args) == 4 {
		p, err := strconv.ParseUint(args[3], 10, 8)
		if err != nil || p < 1 || p > 16 {
			return fmt.Errorf("invalid priority %q", args[3])
		}
		opts = append(opts, bacnet.WithWritePriority(uint8(p)))
	}
	if err := sh.client.WriteProperty(ctx, sh.device, oid, prop, value, opts...); err != nil {
		return err
	}
	fmt.Fprintln(sh.out, "OK")
	return nil
}

func (sh *shell) info(ctx context.Context) error {
	if err := sh.need(); err != nil {
		return err
	}
	dev, err := sh.client.ReadDeviceInfo(ctx, sh.device)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Device:   %s at %s\n", dev.ObjectID, dev.Address)
	fmt.Fprintf(sh.out, "Vendor:   %s (%d)\n", dev.VendorName, dev.VendorID)
	fmt.Fprintf(sh.out, "Model:    %s\n", dev.ModelName)
	fmt.Fprintf(sh.out, "Firmware: %s\n", dev.FirmwareRevision)
	return nil
}

func (sh *shell) metrics() {
	m := sh.client.Metrics().Snapshot()
	fmt.Fprintf(sh.out, "Uptime:        %s\n", m.Uptime.Round(time.Second))
	fmt.Fprintf(sh.out, "Requests:      %d sent, %d ok, %d failed, %d timed out\n",
		m.RequestsSent, m.RequestsSucceeded, m.RequestsFailed, m.RequestsTimedOut)
	fmt.Fprintf(sh.out, "Retransmits:   %d\n", m.Retransmissions)
	fmt.Fprintf(sh.out, "Devices found: %d\n", m.DevicesDiscovered)
	fmt.Fprintf(sh.out, "Latency:       avg %s, max %s over %d\n",
		m.LatencyStats.Avg, m.LatencyStats.Max, m.LatencyStats.Count)
}
