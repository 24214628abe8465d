// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ped imports genotypes from PED-like text files, such as
// those produced by "plink --recodeA", into file-backed matrices.
//
// Each line of the input describes one sample: six whitespace-separated
// sample fields (family ID, individual ID, paternal ID, maternal ID,
// sex and phenotype) followed by one genotype per marker. An optional
// header line names the columns. Inputs whose names end in ".gz" or
// ".zst" are decompressed.
package ped

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bgdata/fbm"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// NumSampleFields is the number of leading sample fields on each line.
const NumSampleFields = 6

const maxLine = 1 << 30

// Options control the import.
type Options struct {
	// Header indicates that the first line of the input names the
	// columns. Otherwise markers are named V1, V2, ...
	Header bool
	// NA is the token for a missing value. The default is "NA".
	NA string
	// Type is the element type of the output matrix. The default is
	// fbm.Int8.
	Type fbm.Type
	// Verbose turns on progress logging.
	Verbose bool
}

// Samples holds the sample fields of an imported file, one entry per
// matrix row.
type Samples struct {
	FID, IID, PAT, MAT []string
	// Sex is 1 for male, 2 for female, and 0 if unknown.
	Sex []int
	// Phenotype is NaN where missing.
	Phenotype []float64
}

// Len returns the number of samples.
func (s *Samples) Len() int { return len(s.IID) }

// Names returns the sample names, formed as FID_IID.
func (s *Samples) Names() []string {
	names := make([]string, s.Len())
	for i := range names {
		names[i] = s.FID[i] + "_" + s.IID[i]
	}
	return names
}

func (s *Samples) add(fields []string, na string) error {
	s.FID = append(s.FID, fields[0])
	s.IID = append(s.IID, fields[1])
	s.PAT = append(s.PAT, fields[2])
	s.MAT = append(s.MAT, fields[3])
	sex, err := strconv.Atoi(fields[4])
	if err != nil || sex < 0 || sex > 2 {
		sex = 0
	}
	s.Sex = append(s.Sex, sex)
	pheno, err := parse(fields[5], na)
	if err != nil {
		return errors.E(errors.Invalid, fmt.Sprintf("bad phenotype %q", fields[5]))
	}
	s.Phenotype = append(s.Phenotype, pheno)
	return nil
}

// Import reads the PED file at path in, which may name any file
// supported by github.com/grailbio/base/file, and writes its
// genotypes to a new fbm matrix at the local path out. The matrix
// has one row per sample, named FID_IID, and one column per marker.
// If Import fails, no matrix is written to out.
// Import reads the input twice: once to size the matrix, and once to
// fill it.
func Import(ctx context.Context, in, out string, opts Options) (*Samples, error) {
	if opts.NA == "" {
		opts.NA = "NA"
	}
	if opts.Type == 0 {
		opts.Type = fbm.Int8
	}
	var (
		samples  = new(Samples)
		colNames []string
		nmarker  = -1
	)
	err := scan(ctx, in, func(lineno int, fields []string) error {
		if len(fields) < NumSampleFields {
			return errors.E(errors.Invalid, fmt.Sprintf("expected at least %d fields, got %d", NumSampleFields, len(fields)))
		}
		if nmarker < 0 {
			nmarker = len(fields) - NumSampleFields
			if opts.Header {
				colNames = append([]string(nil), fields[NumSampleFields:]...)
				return nil
			}
		}
		if got, want := len(fields)-NumSampleFields, nmarker; got != want {
			return errors.E(errors.Invalid, fmt.Sprintf("expected %d markers, got %d", want, got))
		}
		return samples.add(fields, opts.NA)
	})
	if err != nil {
		return nil, err
	}
	if nmarker < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("ped: %s: no samples", in))
	}
	if colNames == nil {
		colNames = make([]string, nmarker)
		for j := range colNames {
			colNames[j] = "V" + strconv.Itoa(j+1)
		}
	}
	w, err := fbm.Create(out, fbm.Header{
		Dims:     []int{samples.Len(), nmarker},
		Type:     opts.Type,
		RowNames: samples.Names(),
		ColNames: colNames,
	})
	if err != nil {
		return nil, err
	}
	var (
		row    = make([]float64, nmarker)
		i      int
		header = opts.Header
	)
	err = scan(ctx, in, func(lineno int, fields []string) error {
		if header {
			header = false
			return nil
		}
		for j, field := range fields[NumSampleFields:] {
			var err error
			row[j], err = parse(field, opts.NA)
			if err != nil {
				return errors.E(errors.Invalid, fmt.Sprintf("marker %s: bad genotype %q", colNames[j], field))
			}
		}
		if err := w.SetRow(i, row); err != nil {
			return err
		}
		i++
		if opts.Verbose && i%1000 == 0 {
			log.Printf("ped: %s: imported %d of %d samples", in, i, samples.Len())
		}
		return nil
	})
	if err != nil {
		w.Discard()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if opts.Verbose {
		log.Printf("ped: %s: imported %d samples and %d markers into %s", in, samples.Len(), nmarker, out)
	}
	return samples, nil
}

func parse(field, na string) (float64, error) {
	if field == na {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(field, 64)
}

// Scan calls fn with the 1-based line number and the fields of each
// non-blank line of the file at path. Errors returned by fn are
// annotated with the path and line number.
func scan(ctx context.Context, path string, fn func(lineno int, fields []string) error) (err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(ctx); err == nil {
			err = closeErr
		}
	}()
	r, done, err := decompress(path, f.Reader(ctx))
	if err != nil {
		return err
	}
	defer done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxLine)
	var lineno int
	for scanner.Scan() {
		lineno++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if err := fn(lineno, fields); err != nil {
			return errors.E(err, fmt.Sprintf("ped: %s:%d", path, lineno))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.E(err, fmt.Sprintf("ped: read %s", path))
	}
	return nil
}

func decompress(path string, r io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, errors.E(errors.Invalid, fmt.Sprintf("ped: %s", path), err)
		}
		return gz, func() { gz.Close() }, nil
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, errors.E(errors.Invalid, fmt.Sprintf("ped: %s", path), err)
		}
		return dec, dec.Close, nil
	default:
		return r, func() {}, nil
	}
}
