// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package genostat provides registered functions that compute
// summary statistics of genotype matrices. Genotypes are coded as
// the number of copies of the reference allele (0, 1 or 2); NaN
// denotes a missing call.
//
// The functions are registered at package initialization and may be
// used with any session:
//
//	summary, err := sess.ChunkedApply(ctx, m, matrix.Cols, genostat.Summary)
package genostat

import (
	"context"
	"math"

	"github.com/grailbio/bgdata"
	"github.com/grailbio/bgdata/matrix"
	"github.com/grailbio/bgdata/value"
	"gonum.org/v1/gonum/stat"
)

// SummaryNames names the elements of the vectors returned by Summary.
var SummaryNames = []string{"freq_na", "allele_freq", "sd"}

var (
	// Summary is a vector function that summarizes a marker: it
	// returns the frequency of missing calls, the allele frequency
	// and the standard deviation of the non-missing calls, named by
	// SummaryNames. Applied over the columns of a matrix, it yields a
	// 3 x p matrix.
	Summary = bgdata.Func(func(x value.Vector, _ ...interface{}) (value.Value, error) {
		naFreq, alleleFreq, sd := Summarize(x.Data)
		return value.Vector{
			Data:  []float64{naFreq, alleleFreq, sd},
			Names: SummaryNames,
		}, nil
	})

	// Sum is a vector function that returns the sum of the non-missing
	// values of its input.
	Sum = bgdata.Func(func(x value.Vector, _ ...interface{}) (value.Value, error) {
		return value.Scalar(sum(x.Data)), nil
	})

	// ColSums is a chunk function that returns the sums of the
	// non-missing values of each column of the chunk, named by the
	// chunk's column names.
	ColSums = bgdata.Func(func(_ context.Context, m *matrix.Dense, _ ...interface{}) (value.Value, error) {
		v := value.Vector{Data: make([]float64, m.NumCols), Names: m.ColNames}
		for j := range v.Data {
			v.Data[j] = sum(m.Col(j))
		}
		return v, nil
	})
)

// Summarize returns the frequency of NaNs in x, half the mean of the
// remaining values (the allele frequency when x holds genotype
// codes) and their sample standard deviation. Statistics that are
// undefined for the number of non-missing values are NaN.
func Summarize(x []float64) (naFreq, alleleFreq, sd float64) {
	obs := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			obs = append(obs, v)
		}
	}
	naFreq, alleleFreq, sd = math.NaN(), math.NaN(), math.NaN()
	if len(x) > 0 {
		naFreq = float64(len(x)-len(obs)) / float64(len(x))
	}
	switch len(obs) {
	case 0:
	case 1:
		alleleFreq = obs[0] / 2
	default:
		var mean float64
		mean, sd = stat.MeanStdDev(obs, nil)
		alleleFreq = mean / 2
	}
	return
}

func sum(x []float64) float64 {
	var s float64
	for _, v := range x {
		if !math.IsNaN(v) {
			s += v
		}
	}
	return s
}
