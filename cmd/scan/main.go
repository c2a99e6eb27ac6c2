package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"insgps-go/calib"
	"insgps-go/pages"
)

// Dumps a log stream page by page for inspection.
func main() {
	log.SetFlags(0)
	log.SetPrefix("scan: ")

	calibFile := flag.String("calib_file", "", "per-log calibration file")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: scan [options] <log.dat>")
		os.Exit(-1)
	}

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

	var in io.Reader = os.Stdin
	if path := flag.Arg(0); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			log.Print(err)
			os.Exit(-1)
		}
		defer f.Close()
		in = f
	}

	reader := pages.NewReader(in)
	reader.Calib = cal
	counts := map[string]int{}
	for {
		pkt, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Print(err)
			os.Exit(-1)
		}
		switch v := pkt.(type) {
		case pages.APacket:
			counts["A"]++
			fmt.Printf("A,%.3f,%g,%g,%g,%g,%g,%g\n",
				v.T, v.Accel[0], v.Accel[1], v.Accel[2], v.Omega[0], v.Omega[1], v.Omega[2])
		case pages.GPacket:
			counts["G"]++
			fmt.Printf("G,%.3f,%.8f,%.8f,%.3f,%g,%g,%g,%g,%g\n",
				v.T, v.Lat, v.Lon, v.Height, v.VN, v.VE, v.VD, v.Sigma2D, v.SigmaVel)
		case pages.MPacket:
			counts["M"]++
			m := v.Mag()
			fmt.Printf("M,%.3f,%g,%g,%g\n", v.T, m[0], m[1], m[2])
		case pages.TimePacket:
			counts["T"]++
			fmt.Printf("T,%.3f,%d,%d\n", v.T, v.WeekNum, v.LeapSec)
		}
	}
	log.Printf("%d pages: A=%d G=%d M=%d T=%d",
		reader.Pages(), counts["A"], counts["G"], counts["M"], counts["T"])
}
