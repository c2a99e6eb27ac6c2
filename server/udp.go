// Package server ingests logger pages over UDP and runs the realtime
// fusion pipeline against them, fanning solutions out to N0 packet
// consumers and websocket clients.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"

	"insgps-go/calib"
	"insgps-go/emit"
	"insgps-go/nav"
	"insgps-go/pages"
	"insgps-go/web"
)

const (
	DefaultPort   = 44330
	maxPacketSize = 65535
)

type wsSolution struct {
	Itow    float64 `json:"itow"`
	Lat     float64 `json:"lat_deg"`
	Lon     float64 `json:"lon_deg"`
	H       float64 `json:"h_m"`
	VN      float64 `json:"v_n_ms"`
	VE      float64 `json:"v_e_ms"`
	VD      float64 `json:"v_d_ms"`
	Heading float64 `json:"heading_deg"`
	Pitch   float64 `json:"pitch_deg"`
	Roll    float64 `json:"roll_deg"`
}

// UdpServer binds a socket and drives one realtime pipeline per process.
type UdpServer struct {
	conn   *net.UDPConn
	pipe   *nav.Pipeline
	sender *emit.Sender
	hub    *web.Hub
	cal    calib.Standard
	fixer  nav.PPSFixer
	opts   *nav.Options
}

// forwarder routes framed N0 records into the fan-out sender.
type forwarder struct {
	sender *emit.Sender
}

func (f *forwarder) Write(p []byte) (int, error) {
	if f.sender != nil {
		buf := make([]byte, len(p))
		copy(buf, p)
		f.sender.Send(buf, emit.FlagSolution)
	}
	return len(p), nil
}

// NewUdpServer configures the realtime pipeline behind a UDP socket.
// sender and hub may be nil.
func NewUdpServer(port int, opts *nav.Options, cal calib.Standard, sender *emit.Sender, hub *web.Hub) (*UdpServer, error) {
	if port == 0 {
		port = DefaultPort
	}
	opts.Sync = nav.SyncRealTime
	opts.OutIsNPacket = true
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port, IP: net.ParseIP("0.0.0.0")})
	if err != nil {
		return nil, err
	}
	conn.SetReadBuffer(256 * 1024)

	emitter := nav.NewEmitter(opts, &forwarder{sender: sender})
	return &UdpServer{
		conn:   conn,
		pipe:   nav.NewPipeline(opts, cal, emitter),
		sender: sender,
		hub:    hub,
		cal:    cal,
		opts:   opts,
	}, nil
}

// Run consumes datagrams until the socket closes. Each datagram carries
// whole 32-byte pages.
func (s *UdpServer) Run() error {
	buf := make([]byte, maxPacketSize)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return fmt.Errorf("server: read: %w", err)
		}
		if n%pages.PageSize != 0 {
			log.Printf("server: dropping %d byte datagram, not page aligned", n)
			continue
		}
		if err := s.consume(buf[:n]); err != nil {
			return err
		}
	}
}

func (s *UdpServer) consume(data []byte) error {
	reader := pages.NewReader(bytes.NewReader(data))
	reader.Calib = s.cal
	for {
		pkt, err := reader.Next()
		if err != nil {
			return nil // end of datagram
		}
		if s.opts.Reduce1PPS {
			pkt = s.fixer.Fix(pkt)
		}
		if err := s.pipe.Apply(pkt); err != nil {
			return err
		}
		if _, isG := pkt.(pages.GPacket); isG && s.pipe.Initialized() {
			s.broadcast(pkt.Itow())
		}
	}
}

func (s *UdpServer) broadcast(itow float64) {
	if s.hub == nil {
		return
	}
	st := s.pipe.Engine().INS()
	yaw, pitch, roll := st.Euler()
	const r2d = 180 / math.Pi
	msg, err := json.Marshal(wsSolution{
		Itow: itow,
		Lat:  st.Latitude() * r2d, Lon: st.Longitude() * r2d, H: st.Height(),
		VN: st.VNorth(), VE: st.VEast(), VD: st.VDown(),
		Heading: yaw * r2d, Pitch: pitch * r2d, Roll: roll * r2d,
	})
	if err != nil {
		return
	}
	s.hub.Broadcast(msg)
}

// Close shuts the socket down.
func (s *UdpServer) Close() error { return s.conn.Close() }
