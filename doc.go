/*
RTLWMBUS is an rtl-sdr receiver for Wireless M-Bus (EN 13757-4) meters
transmitting T1, C1 and S1 telegrams in the 868MHz SRD band.

Samples are read as interleaved unsigned 8-bit I/Q in blocks of 4096 bytes,
either from an rtl_tcp server or from a file.

Command-line Flags:

	-source=rtltcp

Reads samples from an rtl_tcp server. "-" reads from stdin, any other value
is a file name. Files ending in .zst are decompressed while reading. A file
ending part way through a block is an error.

	-decimation=2

Sets the decimation factor down to 800kHz, the sample rate requested from
rtl_tcp is 800kHz times the decimation factor. Defaults to 2.

	-lowpass=mavg

Selects the decimating low-pass filter: mavg, fir, ppf, firfp or ppffp. The
fir and polyphase filters are designed for a decimation of 2.

	-angle=exact

Selects the discriminator: exact, approx, approx2 or inaccurate. The
inaccurate discriminator only yields the sign of the frequency and can not
drive the time-2 synchronizer.

	-runlength=true
	-time2=true

Enable each bit synchronizer. Both may run at once, each reports the
telegrams it recovers.

	-t1c1=true
	-s1=false
	-dual=false

Select the modes to receive. T1/C1 is received at 868.95MHz, S1 at 868.3MHz.
Dual mode tunes between both and receives them at once.

	-format=plain

Sets the output format: plain, csv, json or xml. Plain output is semicolon
separated:

	T1;1;1;2021-03-04 05:06:07.891011;38;35;12345678;0x2c446532...

The fields are mode, crc ok, symbols ok, UTC time of the last byte, signal
strength at the preamble and at the end, serial, and the payload without
crc bytes. With -verbose each line is prefixed with the synchronizer that
found it, rla or t2a. With -samplefile the offset and length of the dumped
samples precede the mode.

	-filterid=12345678,87654321
	-crconly=false

Display only telegrams from the listed serials, or only those passing crc.

	-watchdog=false
	-watchdogtimeout=5s

Exit with an error when no block arrives within the timeout.

	-duration=0

Sets time to receive for, 0 for infinite.

	-config=

Reads flag values from a yaml file mapping flag names to values. Flags given
on the command line or in the environment take precedence.

	-metrics=
	-mqttbroker=
	-mqtttopic=rtlwmbus

Serve prometheus metrics on the given address, and publish each telegram as
json to <mqtttopic>/<mode>/<serial>.

Every flag may also be set with an environment variable named RTLWMBUS_
followed by the upper case flag name.
*/
package main
