// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ped

import (
	"bytes"
	"context"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bgdata/fbm"
	"github.com/grailbio/bgdata/matrix"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const raw = `FID IID PAT MAT SEX PHENOTYPE snp1_A snp2_G snp3_T snp4_C
f1 i1 0 0 1 -1.5 0 1 2 NA
f1 i2 0 0 2 NA 1 1 NA 0

f2 i3 i1 i2 0 2 2 2 2 2
`

func write(t *testing.T, path string, data []byte) {
	t.Helper()
	assert.NoError(t, ioutil.WriteFile(path, data, 0644))
}

func importAll(t *testing.T, dir, name string, data []byte, opts Options) (*Samples, *matrix.Dense) {
	t.Helper()
	in := filepath.Join(dir, name)
	write(t, in, data)
	out := filepath.Join(dir, name+".fbm")
	samples, err := Import(context.Background(), in, out, opts)
	assert.NoError(t, err)
	m, err := fbm.Open(out)
	assert.NoError(t, err)
	defer m.Close()
	rows, cols := m.Dim()
	d, err := m.Subset(rangeOf(rows), rangeOf(cols))
	assert.NoError(t, err)
	return samples, d
}

func rangeOf(n int) []int {
	ix := make([]int, n)
	for i := range ix {
		ix[i] = i
	}
	return ix
}

func TestImport(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "ped")
	defer cleanup()
	nan := math.NaN()
	want := matrix.FromRows([][]float64{
		{0, 1, 2, nan},
		{1, 1, nan, 0},
		{2, 2, 2, 2},
	})
	want.RowNames = []string{"f1_i1", "f1_i2", "f2_i3"}
	want.ColNames = []string{"snp1_A", "snp2_G", "snp3_T", "snp4_C"}

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write([]byte(raw))
	assert.NoError(t, err)
	assert.NoError(t, gw.Close())

	var zst bytes.Buffer
	zw, err := zstd.NewWriter(&zst)
	assert.NoError(t, err)
	_, err = zw.Write([]byte(raw))
	assert.NoError(t, err)
	assert.NoError(t, zw.Close())

	for name, data := range map[string][]byte{
		"x.raw":     []byte(raw),
		"x.raw.gz":  gz.Bytes(),
		"x.raw.zst": zst.Bytes(),
	} {
		samples, got := importAll(t, dir, name, data, Options{Header: true})
		if !got.Equal(want) {
			t.Errorf("%s: got %v, want %v", name, got.Data, want.Data)
		}
		expect.EQ(t, samples.Names(), want.RowNames)
		expect.EQ(t, samples.Sex, []int{1, 2, 0})
		expect.EQ(t, samples.PAT, []string{"0", "0", "i1"})
		if p := samples.Phenotype; p[0] != -1.5 || !math.IsNaN(p[1]) || p[2] != 2 {
			t.Errorf("%s: bad phenotypes %v", name, p)
		}
	}
}

func TestImportNoHeader(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "ped")
	defer cleanup()
	data := strings.Join(strings.Split(raw, "\n")[1:], "\n")
	data = strings.Replace(data, "NA", "-", -1)
	_, got := importAll(t, dir, "x.ped", []byte(data), Options{NA: "-", Type: fbm.Float64})
	expect.EQ(t, got.ColNames, []string{"V1", "V2", "V3", "V4"})
	if r, c := got.Dim(); r != 3 || c != 4 {
		t.Errorf("got %dx%d, want 3x4", r, c)
	}
	if !math.IsNaN(got.At(0, 3)) {
		t.Errorf("got %v, want NaN", got.At(0, 3))
	}
}

func TestImportBadGenotypeReplacesNothing(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "ped")
	defer cleanup()
	in := filepath.Join(dir, "in.raw")
	out := filepath.Join(dir, "out.fbm")
	write(t, in, []byte("FID IID PAT MAT SEX PHENOTYPE a b\nf1 i1 0 0 1 1 0 1\nf2 i2 0 0 1 1 2 x\n"))
	_, err := Import(context.Background(), in, out, Options{Header: true})
	if !errors.Is(errors.Invalid, err) {
		t.Fatalf("expected invalid error, got %v", err)
	}
	if _, err := fbm.Open(out); err == nil {
		t.Error("failed import left a readable matrix")
	}

	// A failed import does not clobber an earlier good one.
	good := matrix.FromRows([][]float64{{1}})
	assert.NoError(t, fbm.WriteDense(out, fbm.Int8, good))
	_, err = Import(context.Background(), in, out, Options{Header: true})
	if !errors.Is(errors.Invalid, err) {
		t.Fatalf("expected invalid error, got %v", err)
	}
	m, err := fbm.Open(out)
	assert.NoError(t, err)
	defer m.Close()
	got, err := m.Subset([]int{0}, []int{0})
	assert.NoError(t, err)
	if !got.Equal(good) {
		t.Errorf("got %v, want %v", got, good)
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestImportErrors(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "ped")
	defer cleanup()
	for _, c := range []struct {
		data string
		msgs []string
	}{
		{"f1 i1 0 0 1 1 0 1\nf1 i2 0 0 1 1 0\n", []string{"x.ped:2", "expected 2 markers, got 1"}},
		{"f1 i1 0 0 1\n", []string{"x.ped:1", "expected at least 6 fields"}},
		{"f1 i1 0 0 1 1 0 1\n\nf1 i2 0 0 1 1 0 x\n", []string{"x.ped:3", "marker V2: bad genotype"}},
		{"f1 i1 0 0 1 1 0 1\nf1 i2 0 0 1 1 0 3.5\n", []string{"x.ped:2"}},
		{"f1 i1 0 0 1 sick 0 1\n", []string{"x.ped:1", "bad phenotype"}},
		{"\n\n", []string{"no samples"}},
	} {
		in := filepath.Join(dir, "x.ped")
		write(t, in, []byte(c.data))
		out := filepath.Join(dir, "x.fbm")
		_, err := Import(context.Background(), in, out, Options{})
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("%q: expected invalid error, got %v", c.data, err)
			continue
		}
		if _, err := fbm.Open(out); err == nil {
			t.Errorf("%q: failed import left a readable matrix", c.data)
		}
		for _, msg := range c.msgs {
			if !strings.Contains(err.Error(), msg) {
				t.Errorf("%q: error %q does not contain %q", c.data, err, msg)
			}
		}
	}
}
