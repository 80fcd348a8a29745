// seehuhn.de/go/cms - parse and apply ICC colour profiles
// Copyright (C) 2024  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package cms

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	fitMaxError       = 1.0 / 512.0
	fitStepTolerance  = 1.0 / 16384.0
	fitStaleSteps     = 3
	fitMaxGaussNewton = 64
)

// ApproximateCurve fits a seven-parameter TransferFunction to curve,
// returning the fitted function and the maximum absolute error between the
// fit and curve over its own sample points. It fails (returns a non-nil
// error) if curve has fewer than two samples, if its samples are not
// monotone, or if no fit meets the 1/512 quality threshold.
func ApproximateCurve(curve *Curve) (TransferFunction, float64, error) {
	x, t := sampleCurve(curve)
	return fitTransferFunction(x, t)
}

// sampleCurve extracts (x, t) pairs directly from curve's own table, or
// resamples a parametric curve onto a fixed grid so the same fitting code
// path can be exercised for both.
func sampleCurve(curve *Curve) (x, t []float64) {
	var n int
	switch {
	case curve.Table16 != nil:
		n = len(curve.Table16)
	case curve.Table8 != nil:
		n = len(curve.Table8)
	default:
		n = 1024
	}
	if n < 2 {
		n = 2
	}
	x = make([]float64, n)
	t = make([]float64, n)
	for i := range n {
		xi := float64(i) / float64(n-1)
		x[i] = xi
		t[i] = curve.Evaluate(xi)
	}
	return x, t
}

func isMonotone(t []float64) bool {
	for i := 1; i < len(t); i++ {
		if t[i] < t[i-1]-1e-9 {
			return false
		}
	}
	return true
}

// fitTransferFunction implements the algorithm of spec.md §4.3: search for
// the split point d that best separates a linear segment (near black) from
// a power segment, fit each with least squares, and report the combined
// result.
func fitTransferFunction(x, t []float64) (TransferFunction, float64, error) {
	n := len(x)
	if n < 2 {
		return TransferFunction{}, 0, arithmeticFailure("curve fit needs at least two samples")
	}
	if !isMonotone(t) {
		return TransferFunction{}, 0, arithmeticFailure("curve fit requires monotone samples")
	}

	bestK := -1
	bestErr := math.Inf(1)
	var bestLinear [2]float64   // c, f
	var bestPower [4]float64    // g, a, b, e
	var bestConverged bool

	// Candidate split indices: need at least 2 points on each side so both
	// the linear OLS and the power Gauss-Newton fit are well posed.
	for k := 2; k <= n-2; k++ {
		linear, linErr, ok := fitLinear(x[:k], t[:k])
		if !ok {
			continue
		}
		power, powErr, ok := fitPower(x[k:], t[k:])
		if !ok {
			continue
		}
		joint := linErr + powErr
		if joint < bestErr {
			bestErr = joint
			bestK = k
			bestLinear = linear
			bestPower = power
			bestConverged = true
		}
	}

	if !bestConverged {
		return TransferFunction{}, 0, arithmeticFailure("curve fit did not converge")
	}

	d := x[bestK]
	tf := TransferFunction{
		G: bestPower[0],
		A: bestPower[1],
		B: bestPower[2],
		C: bestLinear[0],
		D: d,
		E: bestPower[3],
		F: bestLinear[1],
	}

	maxErr := 0.0
	for i := range x {
		diff := tf.Eval(x[i]) - t[i]
		if diff < 0 {
			diff = -diff
		}
		maxErr = math.Max(maxErr, diff)
	}

	if maxErr >= fitMaxError {
		return TransferFunction{}, maxErr, arithmeticFailure("curve fit exceeds error threshold")
	}

	return tf, maxErr, nil
}

// fitLinear solves the ordinary-least-squares problem t ≈ c*x + f using a
// QR least-squares solve (gonum/mat chooses QR automatically for a tall,
// non-square design matrix).
func fitLinear(x, t []float64) (params [2]float64, sqErr float64, ok bool) {
	n := len(x)
	if n < 2 {
		return params, 0, false
	}

	design := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, x[i])
		design.Set(i, 1, 1)
	}
	obs := mat.NewDense(n, 1, t)

	var beta mat.Dense
	if err := beta.Solve(design, obs); err != nil {
		return params, 0, false
	}
	c, f := beta.At(0, 0), beta.At(1, 0)
	if math.IsNaN(c) || math.IsInf(c, 0) || math.IsNaN(f) || math.IsInf(f, 0) {
		return params, 0, false
	}

	residuals := make([]float64, n)
	for i := range residuals {
		residuals[i] = c*x[i] + f - t[i]
	}
	return [2]float64{c, f}, floats.Dot(residuals, residuals), true
}

// fitPower fits t ≈ (a*x+b)^g + e via Gauss-Newton, seeded from a log-log
// linear regression of log(t) against log(x) (equivalent to assuming
// b == 0, e == 0 for the initial guess, per spec.md §4.3).
func fitPower(x, t []float64) (params [4]float64, sqErr float64, ok bool) {
	n := len(x)
	if n < 2 {
		return params, 0, false
	}

	g0, a0 := logLogSeed(x, t)
	params = [4]float64{g0, a0, 0, 0}

	staleCount := 0
	prevErr := math.Inf(1)
	for iter := 0; iter < fitMaxGaussNewton; iter++ {
		jac := mat.NewDense(n, 4, nil)
		res := mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			g, a, b, e := params[0], params[1], params[2], params[3]
			v := a*x[i] + b
			if v < 1e-12 {
				v = 1e-12
			}
			pred := math.Pow(v, g) + e
			res.Set(i, 0, pred-t[i])

			lnv := math.Log(v)
			jac.Set(i, 0, math.Pow(v, g)*lnv)           // d/dg
			jac.Set(i, 1, g*math.Pow(v, g-1)*x[i])       // d/da
			jac.Set(i, 2, g*math.Pow(v, g-1))            // d/db
			jac.Set(i, 3, 1)                             // d/de
		}

		var delta mat.Dense
		if err := delta.Solve(jac, res); err != nil {
			return params, 0, false
		}

		stepNorm := 0.0
		next := params
		for i := 0; i < 4; i++ {
			d := delta.At(i, 0)
			if math.IsNaN(d) || math.IsInf(d, 0) {
				return params, 0, false
			}
			next[i] -= d
			stepNorm += d * d
		}
		stepNorm = math.Sqrt(stepNorm)

		for _, v := range next {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return params, 0, false
			}
		}
		params = next

		curErr := residualSqError(params, x, t)
		if curErr >= prevErr {
			staleCount++
		} else {
			staleCount = 0
		}
		prevErr = curErr

		if stepNorm < fitStepTolerance || staleCount >= fitStaleSteps {
			break
		}
	}

	return params, residualSqError(params, x, t), true
}

func residualSqError(params [4]float64, x, t []float64) float64 {
	g, a, b, e := params[0], params[1], params[2], params[3]
	sum := 0.0
	for i := range x {
		v := a*x[i] + b
		if v < 0 {
			v = 0
		}
		pred := math.Pow(v, g) + e
		diff := pred - t[i]
		sum += diff * diff
	}
	return sum
}

// logLogSeed computes an initial (g, a) guess by linearly regressing
// log(t) against log(x), which is exact when b == 0 and e == 0: then
// log(t) = g*log(a) + g*log(x), a line in log(x) with slope g and
// intercept g*log(a).
func logLogSeed(x, t []float64) (g, a float64) {
	var lx, lt []float64
	for i := range x {
		if x[i] <= 0 || t[i] <= 0 {
			continue
		}
		lx = append(lx, math.Log(x[i]))
		lt = append(lt, math.Log(t[i]))
	}
	if len(lx) < 2 {
		return 1, 1
	}

	n := len(lx)
	design := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, lx[i])
		design.Set(i, 1, 1)
	}
	obs := mat.NewDense(n, 1, lt)

	var beta mat.Dense
	if err := beta.Solve(design, obs); err != nil {
		return 1, 1
	}
	slope, intercept := beta.At(0, 0), beta.At(1, 0)
	if slope == 0 || math.IsNaN(slope) || math.IsNaN(intercept) {
		return 1, 1
	}
	g = slope
	a = math.Exp(intercept / slope)
	if math.IsNaN(a) || math.IsInf(a, 0) || a <= 0 {
		a = 1
	}
	return g, a
}
