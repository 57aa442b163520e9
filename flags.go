// RTLWMBUS - An rtl-sdr receiver for Wireless M-Bus meters in the 868MHz SRD band.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bemasher/rtlwmbus/csv"
	"github.com/bemasher/rtlwmbus/demod"
	"github.com/bemasher/rtlwmbus/frontend"
	"github.com/bemasher/rtlwmbus/protocol"
	"github.com/bemasher/rtlwmbus/wmbus"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var sampleFilename = flag.String("samplefile", os.DevNull, "raw signal dump file")
var sampleFile *os.File

var configFilename = flag.String("config", "", "yaml file of flag values, explicit flags take precedence")

var sourceName = flag.String("source", "rtltcp", "sample source: rtltcp, - for stdin, or a file name (.zst is decompressed)")

var decimation = flag.Int("decimation", 2, "decimation factor from the input rate to 800kHz, [1, 16]")
var lowPass = flag.String("lowpass", frontend.MovingAverage, "decimating low-pass: "+strings.Join(frontend.LowPassNames, ", "))
var dcOffset = flag.Float64("dcoffset", 127.5, "u8 sample offset: 127 or 127.5")

var angle = flag.String("angle", demod.Exact, "discriminator angle: "+strings.Join(demod.AngleNames, ", "))
var dcRemoval = flag.Bool("dcremoval", false, "remove dc from the demodulated signal")

var runLength = flag.Bool("runlength", true, "enable the run-length bit synchronizer")
var time2 = flag.Bool("time2", true, "enable the time-2 bit synchronizer")

var t1c1 = flag.Bool("t1c1", true, "receive T1 and C1 telegrams")
var s1 = flag.Bool("s1", false, "receive S1 telegrams")
var dual = flag.Bool("dual", false, "receive T1/C1 and S1 at once, tuned between both")

var threshold = flag.Float64("threshold", wmbus.CaptureThreshold, "signal strength below which a frame in progress is dropped")
var t1c1Errors = flag.Int("t1c1errors", -1, "tolerated T1/C1 access code bit errors, negative for the default")
var s1Errors = flag.Int("s1errors", -1, "tolerated S1 access code bit errors, negative for the default")

var verbose = flag.Bool("verbose", false, "prefix output lines with the synchronizer tag")

var watchdog = flag.Bool("watchdog", false, "exit when no samples arrive within -watchdogtimeout")
var watchdogTimeout = flag.Duration("watchdogtimeout", 5*time.Second, "input stall tolerated by the watchdog")

var timeLimit = flag.Duration("duration", 0, "time to run for, 0 for infinite, ex. 1h5m10s")
var meterID MeterIDFilter

var crcOnly = flag.Bool("crconly", false, "display only telegrams with a valid crc")

var encoder Encoder
var format = flag.String("format", "plain", "decoded message output format: plain, csv, json, or xml")

var logLevel = flag.String("loglevel", "info", "log level: debug, info, warn or error")

var metricsAddr = flag.String("metrics", "", "serve prometheus metrics on this address, ex. :9100")

var mqttBroker = flag.String("mqttbroker", "", "publish telegrams to this mqtt broker, ex. tcp://localhost:1883")
var mqttTopic = flag.String("mqtttopic", "rtlwmbus", "mqtt topic prefix")

var version = flag.Bool("version", false, "display build date and commit hash")

func RegisterFlags() {
	meterID = MeterIDFilter{make(UintMap)}

	flag.Var(meterID, "filterid", "display only telegrams matching a serial in a comma-separated list, as printed, ex. 12345678.")

	rtlwmbusFlags := map[string]bool{
		"samplefile":      true,
		"config":          true,
		"source":          true,
		"decimation":      true,
		"lowpass":         true,
		"dcoffset":        true,
		"angle":           true,
		"dcremoval":       true,
		"runlength":       true,
		"time2":           true,
		"t1c1":            true,
		"s1":              true,
		"dual":            true,
		"threshold":       true,
		"t1c1errors":      true,
		"s1errors":        true,
		"verbose":         true,
		"watchdog":        true,
		"watchdogtimeout": true,
		"duration":        true,
		"filterid":        true,
		"crconly":         true,
		"format":          true,
		"loglevel":        true,
		"metrics":         true,
		"mqttbroker":      true,
		"mqtttopic":       true,
		"version":         true,
	}

	printDefaults := func(validFlags map[string]bool, inclusion bool) {
		flag.CommandLine.VisitAll(func(f *flag.Flag) {
			if validFlags[f.Name] != inclusion {
				return
			}

			format := "  -%s=%s: %s\n"
			fmt.Fprintf(os.Stderr, format, f.Name, f.Value, f.Usage)
		})
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		printDefaults(rtlwmbusFlags, true)

		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "rtltcp specific:")
		printDefaults(rtlwmbusFlags, false)
	}
}

const envPrefix = "RTLWMBUS_"

func EnvOverride() {
	envOverride(flag.CommandLine, os.Getenv)
}

func envOverride(fs *flag.FlagSet, getenv func(string) string) {
	fs.VisitAll(func(f *flag.Flag) {
		envName := envPrefix + strings.ToUpper(f.Name)
		flagValue := getenv(envName)
		if flagValue != "" {
			if err := fs.Set(f.Name, flagValue); err != nil {
				log.Warnf(
					"Environment variable %q failed to override flag %q with value %q: %q",
					envName, f.Name, flagValue, err,
				)
			} else {
				log.Infof("Environment variable %q overrides flag %q with %q", envName, f.Name, flagValue)
			}
		}
	})
}

func HandleFlags() (err error) {
	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		return errors.Wrap(err, "loglevel")
	}
	log.SetLevel(level)

	sampleFile, err = os.Create(*sampleFilename)
	if err != nil {
		return errors.Wrap(err, "create sample file")
	}

	dump := *sampleFilename != os.DevNull

	*format = strings.ToLower(*format)
	switch *format {
	case "plain":
		encoder = RecordEncoder{csv.NewEncoder(os.Stdout, ';'), dump, *verbose}
	case "csv":
		encoder = RecordEncoder{csv.NewEncoder(os.Stdout, ','), dump, *verbose}
	case "json":
		encoder = json.NewEncoder(os.Stdout)
	case "xml":
		encoder = xml.NewEncoder(os.Stdout)
	default:
		return errors.Errorf("invalid format: %q", *format)
	}

	return nil
}

// DecoderConfig collects the decoder settings given by flags.
func DecoderConfig() protocol.Config {
	cfg := protocol.Config{
		FrontEnd: frontend.Config{
			Decimation: *decimation,
			DCOffset:   *dcOffset,
			LowPass:    *lowPass,
		},
		Angle:        *angle,
		DCRemoval:    *dcRemoval,
		RunLength:    *runLength,
		Time2:        *time2,
		Dual:         *dual,
		Threshold:    *threshold,
		AccessErrors: map[string]int{},
	}

	// Dual mode implies both protocols.
	if *t1c1 || *dual {
		cfg.Protocols = append(cfg.Protocols, "t1c1")
	}
	if *s1 || *dual {
		cfg.Protocols = append(cfg.Protocols, "s1")
	}

	// Both protocols imply dual mode.
	if len(cfg.Protocols) == 2 {
		cfg.Dual = true
	}

	if *t1c1Errors >= 0 {
		cfg.AccessErrors["t1c1"] = *t1c1Errors
	}
	if *s1Errors >= 0 {
		cfg.AccessErrors["s1"] = *s1Errors
	}

	return cfg
}

// JSON, XML and CSV all implement this interface so we can simplify log
// output formatting.
type Encoder interface {
	Encode(interface{}) error
}

// RecordEncoder writes delimited records. Offsets prefixes the position of
// the telegram in the sample file, Verbose the synchronizer tag.
type RecordEncoder struct {
	*csv.Encoder
	Offsets bool
	Verbose bool
}

type record []string

func (r record) Record() []string {
	return r
}

func (re RecordEncoder) Encode(v interface{}) error {
	logMsg, ok := v.(protocol.LogMessage)
	if !ok {
		return re.Encoder.Encode(v)
	}

	var r record
	if t, ok := logMsg.Message.(wmbus.Telegram); ok && re.Verbose {
		r = append(r, t.Algorithm)
	}
	if re.Offsets {
		r = append(r, logMsg.Record()...)
	} else {
		r = append(r, logMsg.Message.Record()...)
	}

	return re.Encoder.Encode(r)
}

// UintMap is a set of serials, written in hex as they appear in output.
type UintMap map[uint]bool

func (m UintMap) String() (s string) {
	var values []string
	for k := range m {
		values = append(values, fmt.Sprintf("%08X", k))
	}
	return strings.Join(values, ",")
}

func (m UintMap) Set(value string) error {
	values := strings.Split(value, ",")

	for _, v := range values {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 16, 32)
		if err != nil {
			return err
		}

		m[uint(n)] = true
	}

	return nil
}

type MeterIDFilter struct {
	UintMap
}

func (m MeterIDFilter) Filter(msg protocol.Message) bool {
	return m.UintMap[uint(msg.MeterID())]
}
