package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"insgps-go/calib"
	"insgps-go/ins"
	"insgps-go/nav"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("insgps: ")

	opts := nav.DefaultOptions()

	dumpUpdate := flag.Bool("dump_update", true, "emit rows at time updates")
	dumpCorrect := flag.Bool("dump_correct", false, "emit rows at measurement updates")
	dumpStddev := flag.Bool("dump_stddev", false, "append standard deviation columns")
	outNPacket := flag.Bool("out_N_packet", false, "emit framed N0 packets instead of rows")
	calendarTime := flag.String("calendar_time", "", "calendar time stamps, optionally with a UTC hour offset (e.g. +9)")

	startGpst := flag.String("start_gpst", "", "start GPS time, [week:]seconds of week")
	endGpst := flag.String("end_gpst", "", "end GPS time, [week:]seconds of week")

	estBias := flag.Bool("est_bias", true, "estimate accelerometer and gyro bias drift")
	useUdkf := flag.Bool("use_udkf", false, "use the UD factorized Kalman filter")
	useEgm := flag.Bool("use_egm", false, "use the precise Earth gravity model")
	backPropagate := flag.Bool("back_propagate", false, "smooth previously time-updated states")
	bpDepth := flag.Float64("bp_depth", opts.BPDepth, "smoothing depth in seconds")
	realtime := flag.Bool("realtime", false, "process without sorting, deferring late fixes")

	gpsInitAcc2d := flag.Float64("gps_init_acc_2d", 20, "initial 2D accuracy gate [m]")
	gpsInitAccV := flag.Float64("gps_init_acc_v", 10, "initial vertical accuracy gate [m]")
	gpsContAcc2d := flag.Float64("gps_cont_acc_2d", 100, "continual 2D accuracy gate [m]")
	gpsFakeLock := flag.Bool("gps_fake_lock", false, "replace GPS solutions with a fixed dummy fix")

	useMagnet := flag.Bool("use_magnet", false, "use the magnetic sensor")
	magAccuracy := flag.Float64("mag_heading_accuracy_deg", 3, "magnetic heading accuracy [deg]")
	yawCorrectSpeed := flag.Float64("yaw_correct_with_mag_when_speed_less_than_ms", 5,
		"magnetic yaw compensation below this ground speed [m/s]; non-positive disables")

	initAttitude := flag.String("init_attitude_deg", "", "initial yaw[,pitch[,roll]] [deg]")
	initYaw := flag.String("init_yaw_deg", "", "initial true heading [deg]")

	calibFile := flag.String("calib_file", "", "per-log calibration file")
	leverArm := flag.String("lever_arm", "", "IMU to antenna offset x,y,z [m] in body axes")
	reduce1pps := flag.Bool("reduce_1pps_sync_error", false, "pull back 1 s time stamp jumps")
	sortDepth := flag.Int("sort_depth", 512, "packet sort buffer depth")
	outPath := flag.String("out", "-", "output path, - for stdout")
	verbose := flag.Bool("verbose", false, "report gating counters")

	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: insgps [options] <log.dat>")
		flag.PrintDefaults()
		os.Exit(-1)
	}

	opts.DumpUpdate = *dumpUpdate
	opts.DumpCorrect = *dumpCorrect
	opts.DumpStdDev = *dumpStddev
	opts.OutIsNPacket = *outNPacket
	opts.EstBias = *estBias
	opts.UseUDKF = *useUdkf
	opts.UseEGM = *useEgm
	opts.BPDepth = *bpDepth
	opts.GPSFakeLock = *gpsFakeLock
	opts.Threshold = nav.GPSThreshold{
		InitAcc2D: *gpsInitAcc2d,
		InitAccV:  *gpsInitAccV,
		ContAcc2D: *gpsContAcc2d,
	}
	opts.UseMagnet = *useMagnet
	opts.MagHeadingAccuracyDeg = *magAccuracy
	opts.YawCorrectSpeedMS = *yawCorrectSpeed
	opts.Reduce1PPS = *reduce1pps
	opts.SortDepth = *sortDepth
	opts.Verbose = *verbose

	if *backPropagate && *realtime {
		log.Print(nav.ErrConflictingModes)
		os.Exit(-1)
	}
	if *backPropagate {
		opts.Sync = nav.SyncBackPropagation
	}
	if *realtime {
		opts.Sync = nav.SyncRealTime
	}

	if *calendarTime != "" || hasFlag("calendar_time") {
		opts.CalendarTime = true
		if spec := *calendarTime; spec != "" && spec != "on" {
			hr, err := strconv.Atoi(strings.TrimPrefix(spec, "+"))
			if err != nil {
				log.Printf("invalid calendar_time spec %q", spec)
				os.Exit(-1)
			}
			opts.CalendarCorrectionHr = hr
		}
	}

	var err error
	if opts.StartGPST, err = parseGPSTime(*startGpst); err != nil {
		log.Printf("start_gpst: %v", err)
		os.Exit(-1)
	}
	if opts.EndGPST, err = parseGPSTime(*endGpst); err != nil {
		log.Printf("end_gpst: %v", err)
		os.Exit(-1)
	}

	if *initAttitude != "" {
		if err := opts.InitAttitude.Parse(*initAttitude); err != nil {
			log.Print(err)
			os.Exit(-1)
		}
		log.Printf("init_attitude_deg: %+v", opts.InitAttitude)
	}
	if *initYaw != "" {
		yaw, err := strconv.ParseFloat(*initYaw, 64)
		if err != nil {
			log.Printf("invalid init_yaw_deg %q", *initYaw)
			os.Exit(-1)
		}
		opts.InitAttitude.YawDeg = yaw
		opts.InitAttitude.Mode = nav.AttitudeYawOnly
	}

	cal := calib.Default()
	if *calibFile != "" {
		f, err := os.Open(*calibFile)
		if err != nil {
			log.Printf("calib_file: %v", err)
			os.Exit(-1)
		}
		err = cal.Load(f)
		f.Close()
		if err != nil {
			log.Print(err)
			os.Exit(-1)
		}
		log.Printf("calibration loaded from %s", *calibFile)
	}

	var lever *ins.Vector3
	if *leverArm != "" {
		var v ins.Vector3
		if n, _ := fmt.Sscanf(*leverArm, "%f,%f,%f", &v[0], &v[1], &v[2]); n != 3 {
			log.Print("lever_arm requires 3 comma separated values")
			os.Exit(-1)
		}
		lever = &v
		log.Printf("lever_arm: %v", v)
	}

	in, closeIn, err := openInput(flag.Arg(0))
	if err != nil {
		log.Print(err)
		os.Exit(-1)
	}
	defer closeIn()

	out, closeOut, err := openOutput(*outPath)
	if err != nil {
		log.Print(err)
		os.Exit(-1)
	}
	defer closeOut()

	cfg := nav.RunConfig{Opts: opts, Calib: cal, In: in, Out: out}
	if lever != nil {
		cfg.LeverArm = lever
	}
	if err := nav.Run(cfg); err != nil {
		log.Print(err)
		os.Exit(-1)
	}
}

// hasFlag reports whether the flag was set explicitly, so boolean-style
// value-less keys can be distinguished from their defaults.
func hasFlag(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func parseGPSTime(spec string) (nav.GPSTime, error) {
	if spec == "" {
		return nav.GPSTime{Week: -1, Sec: math.NaN()}, nil
	}
	if w, s, ok := strings.Cut(spec, ":"); ok {
		week, err1 := strconv.ParseFloat(w, 64)
		sec, err2 := strconv.ParseFloat(s, 64)
		if err1 != nil || err2 != nil {
			return nav.GPSTime{}, fmt.Errorf("invalid GPS time %q", spec)
		}
		return nav.GPSTime{Week: week, Sec: sec}, nil
	}
	sec, err := strconv.ParseFloat(spec, 64)
	if err != nil {
		return nav.GPSTime{}, fmt.Errorf("invalid GPS time %q", spec)
	}
	return nav.GPSTime{Week: -1, Sec: sec}, nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "-" || path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("output: %w", err)
	}
	return f, func() { f.Close() }, nil
}
