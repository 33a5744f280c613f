// Package regression 计算两个交易对价格的线性关系，并剔除参考资产的影响。
package regression

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// machEps float64 机器精度
const machEps = 0x1p-52

var (
	ErrNoObservations = errors.New("regression: no observations")
	ErrLengthMismatch = errors.New("regression: x and y length mismatch")
)

// Fit 用最小二乘拟合 y = m*x + c，返回 (m, c)。
// 求解走 SVD 最小范数解：x 为常数等退化输入不会报错，
// 返回求解器给出的最小范数系数。
func Fit(x, y []float64) (slope, intercept float64, err error) {
	if len(x) != len(y) {
		return 0, 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(x), len(y))
	}
	n := len(x)
	if n == 0 {
		return 0, 0, ErrNoObservations
	}

	a := mat.NewDense(n, 2, nil)
	for i, v := range x {
		a.Set(i, 0, v)
		a.Set(i, 1, 1)
	}
	b := mat.NewDense(n, 1, append([]float64(nil), y...))

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return 0, 0, errors.New("regression: svd factorization failed")
	}
	// 与常见 lstsq 默认值一致：小于 eps*max(M,N)*s_max 的奇异值视为 0
	rank := svd.Rank(machEps * float64(max(n, 2)))
	if rank == 0 {
		return 0, 0, nil
	}

	var coef mat.Dense
	svd.SolveTo(&coef, b, rank)
	return coef.At(0, 0), coef.At(1, 0), nil
}

// Adjust 返回 dependent - slope*independent。
func Adjust(points []JoinedPoint, slope float64) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Dependent - slope*p.Independent
	}
	return out
}

// FitPoints 对对齐后的序列做回归，自变量为 Independent。
func FitPoints(points []JoinedPoint) (slope, intercept float64, err error) {
	x := make([]float64, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Independent
		y[i] = p.Dependent
	}
	return Fit(x, y)
}
