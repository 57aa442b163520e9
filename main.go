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
	"bytes"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/bemasher/rtltcp"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/bemasher/rtlwmbus/protocol"
	"github.com/bemasher/rtlwmbus/wmbus"
)

// BlockSize is the number of bytes of interleaved u8 I/Q read at a time.
const BlockSize = 4096

var rcvr Receiver

type Receiver struct {
	rtltcp.SDR
	src io.ReadCloser

	d  *protocol.Decoder
	fc protocol.FilterChain

	metrics *Metrics
	mqtt    *MQTTEncoder

	stop chan struct{}
}

func (rcvr *Receiver) NewReceiver() (err error) {
	if rcvr.d, err = protocol.NewDecoder(DecoderConfig()); err != nil {
		return err
	}

	rcvr.stop = make(chan struct{}, 1)

	if *crcOnly {
		rcvr.fc.Add(protocol.ChecksumFilter{})
	}

	gainFlagSet := false
	tuneFlagSet := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "centerfreq", "samplerate":
			tuneFlagSet = true
		case "gainbyindex", "tunergainmode", "tunergain", "agcmode":
			gainFlagSet = true
		case "filterid":
			rcvr.fc.Add(meterID)
		}
	})

	if *sourceName != SourceRTLTCP {
		if rcvr.src, err = OpenSource(*sourceName); err != nil {
			return err
		}
	} else {
		// Connect to rtl_tcp server.
		if err := rcvr.Connect(nil); err != nil {
			return errors.Wrap(err, "rtltcp connect")
		}
		rcvr.src = rcvr.SDR.TCPConn

		if err := rcvr.SetCenterFreq(rcvr.d.CenterFreq()); err != nil {
			return errors.Wrap(err, "rtltcp center frequency")
		}
		if err := rcvr.SetSampleRate(rcvr.d.SampleRate()); err != nil {
			return errors.Wrap(err, "rtltcp sample rate")
		}
		if !gainFlagSet {
			if err := rcvr.SetGainMode(true); err != nil {
				return errors.Wrap(err, "rtltcp gain mode")
			}
		}

		// Explicit tuner flags win over the settings derived from the decoder.
		if tuneFlagSet {
			log.Warnf("centerfreq or samplerate given, decoder expects %dHz at %dHz",
				rcvr.d.CenterFreq(), rcvr.d.SampleRate())
		}
		if err := rcvr.SDR.HandleFlags(); err != nil {
			return errors.Wrap(err, "rtltcp flags")
		}

		// Tell the user how many gain settings were reported by rtl_tcp.
		log.Info("GainCount: ", rcvr.SDR.Info.GainCount)
	}

	rcvr.d.Log()

	reg := prometheus.NewRegistry()
	rcvr.metrics = NewMetrics(reg)
	if *metricsAddr != "" {
		ServeMetrics(*metricsAddr, reg)
	}

	if *mqttBroker != "" {
		if rcvr.mqtt, err = NewMQTTEncoder(*mqttBroker, *mqttTopic); err != nil {
			return err
		}
	}

	return nil
}

func (rcvr *Receiver) Close() {
	rcvr.stop <- struct{}{}
	if rcvr.src != nil {
		rcvr.src.Close()
	}
	if rcvr.mqtt != nil {
		rcvr.mqtt.Close()
	}
}

// dumpLength is the number of sample bytes spanning the longest telegram of
// any enabled protocol.
func (rcvr *Receiver) dumpLength() int {
	var seconds float64
	for _, name := range rcvr.d.Cfg.Protocols {
		p, err := protocol.NewParser(name)
		if err != nil {
			continue
		}

		// Manchester is the widest encoding at 16 chips per byte.
		s := float64((wmbus.MaxFrameLength+8)*16) / p.Cfg().ChipRate
		if s > seconds {
			seconds = s
		}
	}

	n := int(seconds*float64(rcvr.d.SampleRate())) << 1
	return (n/BlockSize + 1) * BlockSize
}

func (rcvr *Receiver) Run() error {
	// Setup signal channel for interruption.
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Kill, os.Interrupt)

	// Setup time limit channel
	tLimit := make(<-chan time.Time, 1)
	if *timeLimit != 0 {
		tLimit = time.After(*timeLimit)
	}

	// Setup input stall watchdog, reset on each block.
	stall := make(<-chan time.Time, 1)
	var dog *time.Timer
	if *watchdog {
		dog = time.NewTimer(*watchdogTimeout)
		defer dog.Stop()
		stall = dog.C
	}

	sampleBuf := new(bytes.Buffer)
	dumpLength := rcvr.dumpLength()
	start := time.Now()

	// Allocate a channel of blocks.
	blockCh := make(chan []byte)
	readErr := make(chan error, 1)

	// Read and send sample blocks to the decoder.
	go func() {
		// Make two sample blocks, one for reading, and one for the receiver to
		// decode, these are exchanged each time we read a new block.
		blockA := make([]byte, BlockSize)
		blockB := make([]byte, BlockSize)

		// When exiting this goroutine, close the block channel.
		defer close(blockCh)

		for {
			select {
			// Exit if we've been told to stop.
			case <-rcvr.stop:
				return
			default:
				// Read new sample block.
				_, err := io.ReadFull(rcvr.src, blockA)

				// A clean EOF ends the run, a partial block is fatal.
				if err == io.EOF {
					log.Info("encountered eof")
					return
				}
				if err == io.ErrUnexpectedEOF {
					readErr <- errors.New("truncated sample block")
					return
				}

				// If we get a network operation error.
				if opErr, ok := err.(*net.OpError); ok {
					// If temporary, keep reading.
					if opErr.Temporary() {
						log.Warnf("operr: temporary: %+v", opErr)
						continue
					}

					readErr <- errors.Wrap(opErr, "read samples")
					return
				}

				if err != nil {
					readErr <- errors.Wrap(err, "read samples")
					return
				}

				// Send the sample block.
				blockCh <- blockA

				// Exchange blocks for next read.
				blockA, blockB = blockB, blockA
			}
		}
	}()

	for {
		// Exit on interrupt, time limit or stall, otherwise receive.
		select {
		case <-sigint:
			return nil
		case <-tLimit:
			log.Info("Time Limit Reached: ", time.Since(start))
			return nil
		case <-stall:
			rcvr.metrics.Stall()
			return errors.Errorf("no samples for %s", *watchdogTimeout)
		case block, ok := <-blockCh:
			// If blockCh is closed, exit.
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}

			if dog != nil {
				dog.Reset(*watchdogTimeout)
			}
			rcvr.metrics.Block(block)

			// If dumping samples, discard the oldest block from the buffer if
			// it's full and write the new block to it.
			if *sampleFilename != os.DevNull {
				if sampleBuf.Len() >= dumpLength {
					io.CopyN(io.Discard, sampleBuf, int64(len(block)))
				}
				sampleBuf.Write(block)
			}

			pktFound := false

			// For each message returned
			for msg := range rcvr.d.Decode(block) {
				algorithm := ""
				if t, ok := msg.(wmbus.Telegram); ok {
					algorithm = t.Algorithm
				}
				rcvr.metrics.Telegram(msg, algorithm)
				log.WithFields(log.Fields{
					"Mode":      msg.MsgType(),
					"Algorithm": algorithm,
					"CRC":       msg.ChecksumOK(),
				}).Debug("telegram")

				// If the filterchain rejects the message, skip it.
				if !rcvr.fc.Match(msg) {
					continue
				}

				// Make a new LogMessage
				var logMsg protocol.LogMessage
				logMsg.Offset, _ = sampleFile.Seek(0, io.SeekCurrent)
				logMsg.Length = sampleBuf.Len()
				logMsg.Message = msg

				// Encode the message
				if err := encoder.Encode(logMsg); err != nil {
					return errors.Wrap(err, "encode message")
				}

				if rcvr.mqtt != nil {
					if err := rcvr.mqtt.Encode(logMsg); err != nil {
						log.WithError(err).Warn("mqtt")
					}
				}

				pktFound = true
			}

			if pktFound && *sampleFilename != os.DevNull {
				if _, err := sampleFile.Write(sampleBuf.Bytes()); err != nil {
					return errors.Wrap(err, "write raw samples to file")
				}
				sampleBuf.Reset()
			}
		}
	}
}

var (
	buildTag   = "dev"     // v#.#.#
	buildDate  = "unknown" // date -u '+%Y-%m-%d'
	commitHash = "unknown" // git rev-parse HEAD
)

func main() {
	rcvr.RegisterFlags()
	RegisterFlags()
	EnvOverride()
	flag.Parse()

	if *version {
		fmt.Println("Build Tag: ", buildTag)
		fmt.Println("Build Date:", buildDate)
		fmt.Println("Commit:    ", commitHash)
		os.Exit(0)
	}

	if *configFilename != "" {
		if err := LoadConfig(*configFilename); err != nil {
			log.Fatal(err)
		}
	}

	if err := HandleFlags(); err != nil {
		log.Fatal(err)
	}

	if err := rcvr.NewReceiver(); err != nil {
		log.Fatal(err)
	}

	err := rcvr.Run()

	rcvr.Close()
	sampleFile.Close()

	if err != nil {
		log.Fatal(err)
	}
}
