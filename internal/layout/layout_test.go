package layout

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestArrangeProducesOneRectPerWindow(t *testing.T) {
	bounds := Rect{X: 0, Y: 30, Width: 1920, Height: 1050}
	for _, kind := range Kinds {
		for count := 0; count <= 13; count++ {
			rects := Arrange(kind, count, bounds, 5)
			require.Len(t, rects, count, "%s with %d windows", kind, count)
			for _, r := range rects {
				require.GreaterOrEqual(t, r.Width, 0, "%s: %v", kind, r)
				require.GreaterOrEqual(t, r.Height, 0, "%s: %v", kind, r)
			}
		}
	}
}

func TestArrangeNoOverlapWithinBounds(t *testing.T) {
	bounds := Rect{X: 100, Y: 30, Width: 1600, Height: 900}
	for _, kind := range []Kind{Tiling, Grid, Dwindle} {
		for count := 1; count <= 10; count++ {
			rects := Arrange(kind, count, bounds, 4)
			for i, a := range rects {
				require.True(t, a.Within(bounds), "%s n=%d rect %d %v outside %v", kind, count, i, a, bounds)
				for j := i + 1; j < len(rects); j++ {
					require.False(t, a.Overlaps(rects[j]), "%s n=%d: %v overlaps %v", kind, count, a, rects[j])
				}
			}
		}
	}
}

func TestArrangeClampsTinyBounds(t *testing.T) {
	bounds := Rect{X: 40, Y: 20, Width: 6, Height: 3}
	for _, kind := range Kinds {
		for _, r := range Arrange(kind, 5, bounds, 10) {
			require.GreaterOrEqual(t, r.Width, 0)
			require.GreaterOrEqual(t, r.Height, 0)
			require.True(t, r.Within(bounds), "%s: %v outside %v", kind, r, bounds)
		}
	}
}

func TestInsetStaysInside(t *testing.T) {
	r := Rect{X: 10, Y: 10, Width: 8, Height: 8}
	got := r.Inset(20)
	require.True(t, got.Within(r), "%v outside %v", got, r)
	require.True(t, got.Empty())
}

func TestTilingColumn(t *testing.T) {
	got := Arrange(Tiling, 3, Rect{Width: 1000, Height: 620}, 10)
	want := []Rect{
		{X: 10, Y: 10, Width: 980, Height: 193},
		{X: 10, Y: 213, Width: 980, Height: 193},
		{X: 10, Y: 416, Width: 980, Height: 193},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tiling mismatch (-want +got):\n%s", diff)
	}
}

func TestMonocleGivesEveryWindowTheUsableRect(t *testing.T) {
	bounds := Rect{X: 0, Y: 0, Width: 800, Height: 600}
	for _, r := range Arrange(Monocle, 4, bounds, 5) {
		require.Equal(t, bounds.Inset(5), r)
	}
}

func TestGridShape(t *testing.T) {
	// five windows: 3 columns, 2 rows
	got := Arrange(Grid, 5, Rect{Width: 640, Height: 410}, 10)
	require.Len(t, got, 5)
	require.Equal(t, Rect{X: 10, Y: 10, Width: 200, Height: 190}, got[0])
	require.Equal(t, Rect{X: 220, Y: 10, Width: 200, Height: 190}, got[1])
	require.Equal(t, Rect{X: 10, Y: 210, Width: 200, Height: 190}, got[3])
}

func TestFibonacciSingleWindowIsInsetBounds(t *testing.T) {
	bounds := Rect{X: 0, Y: 30, Width: 1920, Height: 1050}
	got := Arrange(Fibonacci, 1, bounds, 5)
	require.Equal(t, []Rect{{X: 5, Y: 35, Width: 1910, Height: 1040}}, got)
}

func TestFibonacciGoldenSlice(t *testing.T) {
	got := Arrange(Fibonacci, 2, Rect{Width: 1000, Height: 500}, 0)
	require.Equal(t, Rect{X: 0, Y: 0, Width: 618, Height: 500}, got[0])
	require.Equal(t, Rect{X: 618, Y: 0, Width: 382, Height: 500}, got[1])
}

func TestDwindleFourWindowsQuadrants(t *testing.T) {
	got := Arrange(Dwindle, 4, Rect{Width: 1000, Height: 800}, 0)
	want := []Rect{
		{X: 0, Y: 0, Width: 500, Height: 400},
		{X: 0, Y: 400, Width: 500, Height: 400},
		{X: 500, Y: 0, Width: 500, Height: 400},
		{X: 500, Y: 400, Width: 500, Height: 400},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dwindle mismatch (-want +got):\n%s", diff)
	}
	area := want[0].Width * want[0].Height
	for _, r := range got {
		require.Equal(t, area, r.Width*r.Height)
	}
}

func TestDwindleIsDeterministic(t *testing.T) {
	bounds := Rect{Width: 1280, Height: 720}
	first := Arrange(Dwindle, 3, bounds, 2)
	second := Arrange(Dwindle, 3, bounds, 2)
	require.Equal(t, first, second)
}

func TestKindCycleAndParse(t *testing.T) {
	k := Tiling
	seen := map[Kind]bool{}
	for range Kinds {
		seen[k] = true
		k = k.Next()
	}
	require.Equal(t, Tiling, k)
	require.Len(t, seen, len(Kinds))

	for _, kind := range Kinds {
		parsed, err := ParseKind(kind.String())
		require.NoError(t, err)
		require.Equal(t, kind, parsed)
	}
	parsed, err := ParseKind("  Grid ")
	require.NoError(t, err)
	require.Equal(t, Grid, parsed)

	_, err = ParseKind("spiral")
	require.ErrorIs(t, err, ErrUnknownKind)
}
