package main

import (
	"encoding/binary"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"time"

	"insgps-go/pages"
)

// Replays a recorded log over UDP at the recorded pace, for feeding a
// navserve instance as if the logger were live.
func main() {
	log.SetFlags(0)
	log.SetPrefix("replay: ")

	logPath := flag.String("log", "", "input log file")
	target := flag.String("target", "127.0.0.1:44330", "UDP destination")
	speed := flag.Float64("speed", 1.0, "replay speed multiplier")
	flag.Parse()

	if *logPath == "" {
		log.Print("--log required")
		os.Exit(-1)
	}
	f, err := os.Open(*logPath)
	if err != nil {
		log.Print(err)
		os.Exit(-1)
	}
	defer f.Close()

	addr, err := net.ResolveUDPAddr("udp", *target)
	if err != nil {
		log.Print(err)
		os.Exit(-1)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		log.Print(err)
		os.Exit(-1)
	}
	defer conn.Close()

	var page [pages.PageSize]byte
	var lastItow float64
	havePace := false
	sent := 0
	for {
		if _, err := io.ReadFull(f, page[:]); err != nil {
			if err == io.EOF {
				break
			}
			log.Printf("short read after %d pages: %v", sent, err)
			os.Exit(-1)
		}

		// pace on A pages, which carry the dominant cadence
		if page[0] == pages.TagA {
			itow := float64(binary.LittleEndian.Uint32(page[2:])) * 1e-3
			if havePace {
				if dt := itow - lastItow; dt > 0 && dt < 10 {
					time.Sleep(time.Duration(dt / *speed * float64(time.Second)))
				}
			}
			lastItow, havePace = itow, true
		}

		if _, err := conn.Write(page[:]); err != nil {
			log.Print(err)
			os.Exit(-1)
		}
		sent++
	}
	log.Printf("replayed %d pages", sent)
}
