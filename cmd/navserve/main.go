package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"strings"

	"insgps-go/calib"
	"insgps-go/emit"
	"insgps-go/nav"
	"insgps-go/server"
	"insgps-go/web"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("navserve: ")

	port := flag.Int("port", server.DefaultPort, "UDP listen port for log pages")
	httpAddr := flag.String("http", ":8080", "websocket listen address, empty disables")
	udpOut := flag.String("udp_out", "", "comma separated host:port list receiving N0 records")
	tcpOut := flag.String("tcp_out", "", "comma separated host:port list receiving N0 records")
	calibFile := flag.String("calib_file", "", "per-log calibration file")
	useMagnet := flag.Bool("use_magnet", false, "use the magnetic sensor")
	flag.Parse()

	cal := calib.Default()
	if *calibFile != "" {
		f, err := os.Open(*calibFile)
		if err != nil {
			log.Print(err)
			os.Exit(-1)
		}
		err = cal.Load(f)
		f.Close()
		if err != nil {
			log.Print(err)
			os.Exit(-1)
		}
	}

	sender := emit.NewSender()
	for _, addr := range splitList(*udpOut) {
		if err := sender.AddUDPTarget(addr, emit.FlagSolution); err != nil {
			log.Printf("udp_out %s: %v", addr, err)
			os.Exit(-1)
		}
	}
	for _, addr := range splitList(*tcpOut) {
		sender.AddTCPTarget(addr, emit.FlagSolution)
	}
	if err := sender.Start(); err != nil {
		log.Print(err)
		os.Exit(-1)
	}
	defer sender.Stop()

	var hub *web.Hub
	if *httpAddr != "" {
		hub = web.NewHub()
		go hub.Run()
		http.Handle("/ws", hub)
		go func() {
			if err := http.ListenAndServe(*httpAddr, nil); err != nil {
				log.Printf("http: %v", err)
			}
		}()
	}

	opts := nav.DefaultOptions()
	opts.UseMagnet = *useMagnet
	srv, err := server.NewUdpServer(*port, opts, cal, sender, hub)
	if err != nil {
		log.Print(err)
		os.Exit(-1)
	}
	log.Printf("listening on udp :%d", *port)
	if err := srv.Run(); err != nil {
		log.Print(err)
		os.Exit(-1)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
