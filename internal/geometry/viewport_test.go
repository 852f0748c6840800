package geometry

import "testing"

func TestOrthographicViewport_RoundTrip(t *testing.T) {
	vp := OrthographicViewport{Target: Point{X: 100, Y: 50}, Zoom: 1.5, ScreenWidth: 800, ScreenHeight: 600}
	p := Point{X: 123.5, Y: -7}
	back := vp.Unproject(vp.Project(p))
	if !approx(back.X, p.X) || !approx(back.Y, p.Y) {
		t.Fatalf("round trip = %+v, want %+v", back, p)
	}
	centre := vp.Project(vp.Target)
	if centre.X != 400 || centre.Y != 300 {
		t.Fatalf("target projects to %+v, want screen centre", centre)
	}
}

func TestViewportBounds(t *testing.T) {
	vp := OrthographicViewport{Target: Point{X: 50, Y: 50}, Zoom: 0, ScreenWidth: 100, ScreenHeight: 100}

	t.Run("noModel", func(t *testing.T) {
		got := ViewportBounds(vp, nil)
		want := Bounds{Left: 0, Top: 0, Right: 100, Bottom: 100}
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	})

	t.Run("scaledModel", func(t *testing.T) {
		m := Scale(2, 2)
		got := ViewportBounds(vp, &m)
		want := Bounds{Left: 0, Top: 0, Right: 50, Bottom: 50}
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	})

	t.Run("singularModelFallsBack", func(t *testing.T) {
		m := Scale(0, 0)
		got := ViewportBounds(vp, &m)
		want := Bounds{Left: 0, Top: 0, Right: 100, Bottom: 100}
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	})
}

func TestProjectedSize(t *testing.T) {
	vp := OrthographicViewport{Zoom: -1, ScreenWidth: 500, ScreenHeight: 500}
	w, h := ProjectedSize(vp, nil, Bounds{Right: 1000, Bottom: 400})
	if w != 500 || h != 200 {
		t.Fatalf("ProjectedSize = %v x %v, want 500 x 200", w, h)
	}

	m := Scale(2, 1)
	w, h = ProjectedSize(vp, &m, Bounds{Right: 1000, Bottom: 400})
	if w != 1000 || h != 200 {
		t.Fatalf("ProjectedSize with model = %v x %v, want 1000 x 200", w, h)
	}
}

func TestFitBounds(t *testing.T) {
	b := Bounds{Right: 400, Bottom: 200}
	vp := FitBounds(b, 200, 200)
	got := ViewportBounds(vp, nil)
	if got.Left > 0 || got.Right < 400 {
		t.Fatalf("fitted viewport %+v does not cover %+v horizontally", got, b)
	}
}
