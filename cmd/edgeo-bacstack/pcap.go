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
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/bacstack/bacnet/capture"
)

var (
	pcapPort   uint16
	pcapErrors bool
	pcapStats  bool
)

var pcapCmd = &cobra.Command{
	Use:   "pcap <file>",
	Short: "Decode the BACnet/IP traffic in a capture file",
	Long: `Pcap reads a pcap or pcapng file and decodes every UDP datagram to or
from the BACnet/IP port.

Examples:
  edgeo-bacstack pcap site.pcapng
  edgeo-bacstack pcap --port 47809 --errors site.pcap
  edgeo-bacstack pcap --stats site.pcap`,
	Args: cobra.ExactArgs(1),

	RunE: runPcap,
}

func init() {
	pcapCmd.Flags().Uint16Var(&pcapPort, "port", capture.DefaultPort, "BACnet/IP UDP port")
	pcapCmd.Flags().BoolVar(&pcapErrors, "errors", false, "Only show packets that failed to decode")
	pcapCmd.Flags().BoolVar(&pcapStats, "stats", false, "Show packet counts instead of packets")
}

type packetRecord struct {
	Time    time.Time `json:"time" yaml:"time"`
	Src     string    `json:"src" yaml:"src"`
	Dst     string    `json:"dst" yaml:"dst"`
	Summary string    `json:"summary" yaml:"summary"`
	Error   string    `json:"error,omitempty" yaml:"error,omitempty"`
}

func runPcap(cmd *cobra.Command, args []string) error {
	packets, err := capture.ReadFile(args[0], pcapPort)
	if err != nil {
		return err
	}
	f := NewFormatter()
	if pcapStats {
		return printStats(f, packets)
	}

	var records []packetRecord
	for _, p := range packets {
		if pcapErrors && p.Err == nil {
			continue
		}
		r := packetRecord{Time: p.Timestamp, Src: p.Src.String(), Dst: p.Dst.String(), Summary: p.Summary()}
		if p.Err != nil {
			r.Error = p.Err.Error()
		}
		records = append(records, r)
	}
	if f.Structured() {
		return f.Encode(records)
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{r.Time.Format("15:04:05.000000"), r.Src, r.Dst, r.Summary}
	}
	return f.Table([]string{"TIME", "SOURCE", "DESTINATION", "SUMMARY"}, rows)
}

// printStats counts packets by BVLC function and by APDU kind
func printStats(f *Formatter, packets []capture.Packet) error {
	counts := make(map[string]int)
	failed := 0
	for _, p := range packets {
		counts[p.Function.String()]++
		if p.APDU != nil {
			counts[p.APDU.Type().String()]++
		}
		if p.Err != nil {
			failed++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := [][2]string{{"packets", strconv.Itoa(len(packets))}, {"decode errors", strconv.Itoa(failed)}}
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, strconv.Itoa(counts[k])})
	}
	return f.KeyValue(pairs)
}
