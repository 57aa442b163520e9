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

package demod

import (
	"math"

	"github.com/pkg/errors"
)

// An AngleFunc returns the angle of x+jy divided by pi.
type AngleFunc func(x, y float64) float64

const (
	Exact      = "exact"
	Approx     = "approx"
	Approx2    = "approx2"
	Inaccurate = "inaccurate"
)

var AngleNames = []string{Exact, Approx, Approx2, Inaccurate}

// NewAngle looks up an angle strategy by name.
func NewAngle(name string) (AngleFunc, error) {
	switch name {
	case Exact:
		return ExactAngle, nil
	case Approx:
		return ApproxAngle, nil
	case Approx2:
		return Approx2Angle, nil
	case Inaccurate:
		return CrossTerm, nil
	}
	return nil, errors.Errorf("unknown angle strategy: %q", name)
}

// SignOnly reports whether the named strategy only preserves the sign of
// the angle. Such output cannot drive clock recovery.
func SignOnly(name string) bool {
	return name == Inaccurate
}

func ExactAngle(x, y float64) float64 {
	return math.Atan2(y, x) / math.Pi
}

// ApproxAngle is a rational approximation valid in all four quadrants,
// worst case error around 1e-3 radians.
func ApproxAngle(x, y float64) float64 {
	const (
		quarter      = math.Pi / 4
		threeQuarter = 3 * math.Pi / 4
	)

	// Avoids 0/0 at the origin.
	absY := math.Abs(y) + 1e-10

	var r, angle float64
	if x < 0 {
		r = (x + absY) / (absY - x)
		angle = threeQuarter
	} else {
		r = (x - absY) / (x + absY)
		angle = quarter
	}

	angle += (0.1963*r*r - 0.9817) * r

	// The polynomial overshoots 0 and pi by a few ulps near the real axis.
	angle = math.Max(0, math.Min(math.Pi, angle))

	if y < 0 {
		angle = -angle
	}

	return angle / math.Pi
}

// Approx2Angle evaluates atan(z) ~ z/(1+0.28086z^2) on the ratio with the
// smaller magnitude in the numerator and corrects for the quadrant.
func Approx2Angle(x, y float64) float64 {
	if x == 0 {
		switch {
		case y > 0:
			return 0.5
		case y < 0:
			return -0.5
		}
		return 0
	}

	z := y / x
	if math.Abs(z) < 1 {
		atan := z / (math.Pi + 0.28086*math.Pi*z*z)
		if x < 0 {
			if y < 0 {
				return atan - 1
			}
			return atan + 1
		}
		return atan
	}

	atan := 0.5 - z/(z*z+0.28086)/math.Pi
	if y < 0 {
		return atan - 1
	}
	return atan
}

// CrossTerm returns the imaginary part of s[n]*conj(s[n-1]) unscaled. Only
// its sign is meaningful.
func CrossTerm(x, y float64) float64 {
	return y
}
