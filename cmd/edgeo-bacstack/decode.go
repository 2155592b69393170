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
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/bacstack/bacnet/apdu"
	"github.com/edgeo/drivers/bacstack/bacnet/capture"
	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

var decodeLayer string

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a BACnet frame given in hex",
	Long: `Decode prints the layers of a BACnet/IP datagram, or of an APDU with
--layer apdu, followed by the tags of the service data.

Spaces, colons and a 0x prefix are ignored. With "-" the hex is read from
standard input.

Examples:
  edgeo-bacstack decode 810a001101040005010c0c000000011955
  edgeo-bacstack decode --layer apdu "30 05 0c 0c 00 00 00 01 19 55 3e 44 42 91 00 00 3f"`,
	Args: cobra.ExactArgs(1),

	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringVar(&decodeLayer, "layer", "bvlc", "Outermost layer of the input (bvlc or apdu)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	in := args[0]
	if in == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		in = string(b)
	}
	b, err := parseHex(in)
	if err != nil {
		return err
	}

	var pdu apdu.PDU
	switch decodeLayer {
	case "bvlc":
		p := capture.Decode(b)
		fmt.Println(p.Summary())
		pdu = p.APDU
	case "apdu":
		if pdu, err = apdu.Decode(b); err != nil {
			return err
		}
		fmt.Println(pdu.Type())
	default:
		return fmt.Errorf("unknown layer %q", decodeLayer)
	}
	if data := serviceData(pdu); len(data) > 0 {
		fmt.Print(formatTags(data))
	}
	return nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "", "\r", "").Replace(s)
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

func serviceData(pdu apdu.PDU) []byte {
	switch p := pdu.(type) {
	case *apdu.ConfirmedRequest:
		return p.Payload
	case *apdu.UnconfirmedRequest:
		return p.Payload
	case *apdu.ComplexAck:
		return p.Payload
	case *apdu.Error:
		return p.Payload
	}
	return nil
}

// formatTags lists the tags of b, one per line, indented by nesting
func formatTags(b []byte) string {
	var sb strings.Builder
	depth := 1
	for off := 0; off < len(b); {
		t, n, err := tag.DecodeTag(b[off:])
		if err != nil {
			fmt.Fprintf(&sb, "%s! %v at %d: % X\n", indent(depth), err, off, b[off:])
			break
		}
		switch {
		case t.Opening:
			fmt.Fprintf(&sb, "%s[%d] {\n", indent(depth), t.Number)
			depth++
			off += n
			continue
		case t.Closing:
			if depth > 1 {
				depth--
			}
			fmt.Fprintf(&sb, "%s}\n", indent(depth))
			off += n
			continue
		}

		if t.Class == tag.ClassApplication {
			v, used, err := tag.DecodeApplication(b[off:])
			if err != nil {
				fmt.Fprintf(&sb, "%s! %v at %d: % X\n", indent(depth), err, off, b[off:])
				break
			}
			fmt.Fprintf(&sb, "%s%s %s\n", indent(depth), tag.ApplicationTag(t.Number), v.Format())
			off += used
			continue
		}

		end := off + n + int(t.ContentLength())
		if end > len(b) {
			fmt.Fprintf(&sb, "%s! truncated context tag %d at %d\n", indent(depth), t.Number, off)
			break
		}
		fmt.Fprintf(&sb, "%s[%d] % X\n", indent(depth), t.Number, b[off+n:end])
		off = end
	}
	return sb.String()
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
