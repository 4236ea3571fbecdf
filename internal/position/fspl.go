// Package position solves the relative physical layout of the fleet. It
// derives distances and coverage radii from a free-space path loss model
//
//	FSPL(dB) = 32.44 + 20*log10(F_GHz) + 20*log10(d_m)
//
// and places each AP by successive three-reference trilateration over the
// APs already placed.
package position

import (
	"math"

	"github.com/cachalot1984/acspmon/internal/model"
)

// fsplConstant is the fixed term of the free-space path loss formula for
// frequencies in GHz and distances in meters.
const fsplConstant = 32.44

// DistanceDots inverts the path loss formula: the distance in canvas dots
// at which a signal on the given frequency accumulates fspl dB of loss.
func DistanceDots(fspl, ghz, metersPerDot float64) int {
	if metersPerDot <= 0 || ghz <= 0 {
		return 0
	}
	meters := math.Pow(10, (fspl-fsplConstant-20*math.Log10(ghz))/20)
	return int(meters / metersPerDot)
}

// CoverageDots is the coverage radius of a radio in canvas dots: the
// distance at which its transmit power decays to the effective noise floor
// (fleet mean plus margin).
func CoverageDots(txpwr, chnl, avgNfloor, margin int, metersPerDot float64) int {
	effective := float64(avgNfloor + margin)
	ghz := model.IEEE2GHz(chnl)
	if metersPerDot <= 0 {
		return 0
	}
	meters := math.Pow(10, (float64(txpwr)-fsplConstant-20*math.Log10(ghz)-effective)/20)
	return int(meters / metersPerDot)
}
