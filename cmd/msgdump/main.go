// Command msgdump decodes a raw port message captured off a debug port and
// prints its header and payload (spec §6: {u32 type, u32 flags, payload...}).
package main

import (
	"fmt"
	"log"
	"os"

	"defs"
	"util"
)

// usage prints a small help message and terminates the program.
func usage(me string) {
	fmt.Printf("%s <filename>\n\nDecode a raw port message dumped to <filename>\n", me)
	os.Exit(1)
}

// chkHeader validates that buf is at least long enough to hold the 8-byte
// header. It exits the program if the file is truncated.
func chkHeader(buf []byte) {
	if len(buf) < 8 {
		log.Fatal("not a message: shorter than the 8-byte header")
	}
}

func typeName(t defs.MsgType_t) string {
	switch t {
	case defs.MsgKernelInterrupt:
		return "KernelInterrupt"
	case defs.MsgNamedPortNotification:
		return "NamedPortNotification"
	case defs.MsgGroupTaskChanged:
		return "GroupTaskChanged"
	case defs.MsgGroupDestroyed:
		return "GroupDestroyed"
	case defs.MsgTimerReply:
		return "TimerReply"
	default:
		return "unknown"
	}
}

// dumpBody prints a type-specific decoding of payload when the message's
// body layout is known; unrecognized types fall back to a hex dump.
func dumpBody(t defs.MsgType_t, payload []byte) {
	switch t {
	case defs.MsgKernelInterrupt:
		if len(payload) < 8 {
			break
		}
		vec := util.Readn(payload, 4, 0)
		hart := util.Readn(payload, 4, 4)
		fmt.Printf("  vector=%d hart=%d\n", vec, hart)
		return
	case defs.MsgGroupTaskChanged:
		if len(payload) < 16 {
			break
		}
		group := util.Readn(payload, 8, 0)
		task := util.Readn(payload, 8, 8)
		fmt.Printf("  group=%d task=%d\n", group, task)
		return
	case defs.MsgGroupDestroyed:
		if len(payload) < 8 {
			break
		}
		group := util.Readn(payload, 8, 0)
		fmt.Printf("  group=%d\n", group)
		return
	case defs.MsgNamedPortNotification:
		if len(payload) < 8 {
			break
		}
		port := util.Readn(payload, 8, 0)
		fmt.Printf("  port=%d name=%q\n", port, string(payload[8:]))
		return
	}
	fmt.Printf("  payload=% x\n", payload)
}

func main() {
	if len(os.Args) != 2 {
		usage(os.Args[0])
	}
	buf, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	chkHeader(buf)

	mtype := defs.MsgType_t(util.Readn(buf, 4, 0))
	flags := defs.MsgFlags_t(util.Readn(buf, 4, 4))
	payload := buf[8:]

	fmt.Printf("type=%s(%d) flags=%d payload_len=%d\n", typeName(mtype), mtype, flags, len(payload))
	dumpBody(mtype, payload)
}
