package tensor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignature_Rendering(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		make func() *Tensor
		want string
	}{
		{
			name: "scalar",
			make: func() *Tensor { return Scalar(1.5) },
			want: "f64[]@cpu",
		},
		{
			name: "int scalar",
			make: func() *Tensor { return IntScalar(3) },
			want: "i64[]@cpu",
		},
		{
			name: "bool scalar",
			make: func() *Tensor { return BoolScalar(true) },
			want: "bool[]@cpu",
		},
		{
			name: "matrix",
			make: func() *Tensor { return Zeros(Float64, 3, 2) },
			want: "f64[3,2]@cpu",
		},
		{
			name: "batched vector",
			make: func() *Tensor {
				lanes := []*Tensor{MustFromSlice([]float64{1, 2, 3}, 3), MustFromSlice([]float64{4, 5, 6}, 3)}
				stacked, err := Stack(1, lanes...)
				require.NoError(t, err)
				return stacked
			},
			want: "f64[lanes:2][3]@cpu",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, tc.make().Signature())
		})
	}
}

func TestDataSignature_IgnoresLaneDimension(t *testing.T) {
	t.Parallel()

	stacked, err := Stack(1, Full(1, 3), Full(2, 3))
	require.NoError(t, err)

	require.Equal(t, "f64[3]@cpu", stacked.DataSignature())
	require.Equal(t, 1, stacked.BatchLevel())
	require.Equal(t, 2, stacked.Lanes())
	require.Equal(t, []int{3}, stacked.DataShape())
}

func TestClone_SharesNoStorage(t *testing.T) {
	t.Parallel()

	orig := MustFromSlice([]float64{1, 2, 3}, 3)
	cloned := orig.Clone()
	require.True(t, Equal(orig, cloned))

	// Mutating the clone through an op on the original must not leak back.
	shifted, err := Add(cloned, Scalar(10))
	require.NoError(t, err)
	require.Equal(t, 1.0, orig.At(0))
	require.Equal(t, 11.0, shifted.At(0))
}

func TestFromSlice_RejectsWrongElementCount(t *testing.T) {
	t.Parallel()

	_, err := FromSlice([]float64{1, 2}, 3)
	require.Error(t, err)
}

func TestFullOf_FillsWithDType(t *testing.T) {
	t.Parallel()

	got := FullOf(Int64, 7, 2)
	require.Equal(t, Int64, got.DType())
	require.Equal(t, 7.0, got.At(0))
	require.Equal(t, 7.0, got.At(1))
}

func TestParseDType(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]DType{
		"f64":     Float64,
		"float64": Float64,
		"i64":     Int64,
		"int64":   Int64,
		"bool":    Bool,
	} {
		got, err := ParseDType(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}

	_, err := ParseDType("complex128")
	require.Error(t, err)
}

func TestString_RendersValuesByDType(t *testing.T) {
	t.Parallel()

	require.Equal(t, "f64[2]@cpu {1.5, 2}", MustFromSlice([]float64{1.5, 2}, 2).String())
	require.Equal(t, "i64[]@cpu {3}", IntScalar(3).String())
	require.Equal(t, "bool[]@cpu {true}", BoolScalar(true).String())
}

func TestEqual_RequiresIdenticalMetadata(t *testing.T) {
	t.Parallel()

	a := Full(1, 2)
	b := Full(1, 2)
	require.True(t, Equal(a, b))

	stacked, err := Stack(1, Scalar(1), Scalar(1))
	require.NoError(t, err)
	// Same values, but one carries a lane tag.
	require.False(t, Equal(stacked, Full(1, 2)))
}
