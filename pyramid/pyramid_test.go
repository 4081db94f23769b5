package pyramid

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
	"github.com/7blacky7/imp/kernels"
)

func deviceImage(t *testing.T, w, h int) *core.Image32fC1 {
	t.Helper()
	m, err := core.NewDeviceImage[float32](w, h)
	if err != nil {
		t.Fatal(err)
	}
	for y := range h {
		row := m.Row(y)
		for x := range row {
			row[x] = float32((x*7+y*3)%17) / 17
		}
	}
	return m
}

func levelSizes(t *testing.T, p *Pyramid) []core.Size {
	t.Helper()
	sizes := make([]core.Size, p.NumLevels())
	for i := range sizes {
		s, err := p.Size(i)
		if err != nil {
			t.Fatal(err)
		}
		sizes[i] = s
	}
	return sizes
}

func TestInitLevelCount(t *testing.T) {
	tests := []struct {
		name      string
		maxLevels int
		base      core.Size
		sf        float32
		bound     int
		want      int
	}{
		// trunc(log(40/480)/log(0.5))+1 = 4, siehe DESIGN.md "Open Question decisions"
		{"640x480 bound 40", 100, core.NewSize(640, 480), 0.5, 40, 4},
		{"max levels caps", 3, core.NewSize(640, 480), 0.5, 40, 3},
		{"exact power", 100, core.NewSize(64, 64), 0.5, 8, 4},
		{"already below bound", 10, core.NewSize(20, 30), 0.5, 40, 1},
		{"max levels clamped", 0, core.NewSize(640, 480), 0.5, 40, 1},
		{"size bound clamped", 100, core.NewSize(16, 16), 0.5, 0, 5},
		{"factor 0.8", 100, core.NewSize(320, 240), 0.8, 8, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			n, err := p.Init(tt.maxLevels, tt.base, tt.sf, tt.bound)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want || p.NumLevels() != tt.want {
				t.Errorf("erwartet %d Stufen, bekommen %d", tt.want, n)
			}
		})
	}
}

// TestInitShorterSideProperty prueft dass die groebste Stufe die kleinste
// erreichbare Seitenlaenge >= size_bound hat.
func TestInitShorterSideProperty(t *testing.T) {
	for _, sf := range []float32{0.3, 0.5, 0.66, 0.8, 0.9} {
		for _, bound := range []int{1, 8, 16, 40} {
			base := core.NewSize(640, 480)
			p := New()
			n, err := p.Init(1000, base, sf, bound)
			if err != nil {
				t.Fatal(err)
			}
			last := float64(base.Shorter()) * math.Pow(float64(sf), float64(n-1))
			next := last * float64(sf)
			if last < float64(bound)-1e-3 || next >= float64(bound)-1e-3 {
				t.Errorf("sf=%v bound=%d: n=%d, letzte Seite %.3f, naechste %.3f", sf, bound, n, last, next)
			}
		}
	}
}

func TestInitInvalidScaleFactorKeepsState(t *testing.T) {
	p := New()
	if _, err := p.Init(5, core.NewSize(128, 96), 0.5, 8); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SetImage(deviceImage(t, 128, 96), core.InterpolateLinear, nil); err != nil {
		t.Fatal(err)
	}
	before := levelSizes(t, p)
	lvl0, _ := p.Level(0)

	for _, sf := range []float32{1.2, 1, 0, -0.5} {
		_, err := p.Init(3, core.NewSize(64, 64), sf, 16)
		if !errors.Is(err, core.ErrConfig) {
			t.Fatalf("sf=%v: erwartet ErrConfig, bekommen %v", sf, err)
		}
	}
	if diff := cmp.Diff(before, levelSizes(t, p)); diff != "" {
		t.Errorf("Zustand veraendert (-want +got):\n%s", diff)
	}
	if got, _ := p.Level(0); got != lvl0 {
		t.Error("Stufe 0 wurde nach fehlgeschlagenem Init ersetzt")
	}
	if sf, _ := p.ScaleFactor(1); sf != 0.5 {
		t.Errorf("ScaleFactor(1): erwartet 0.5, bekommen %v", sf)
	}
}

func TestInitAdaptive(t *testing.T) {
	p := New()
	n, err := p.InitAdaptive(3, []float32{1, 0.75, 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("erwartet 3 Stufen, bekommen %d", n)
	}
	if _, err := p.SetImage(deviceImage(t, 256, 256), core.InterpolateLinear, nil); err != nil {
		t.Fatal(err)
	}
	want := []core.Size{core.NewSize(256, 256), core.NewSize(192, 192), core.NewSize(128, 128)}
	if diff := cmp.Diff(want, levelSizes(t, p)); diff != "" {
		t.Errorf("Stufengroessen (-want +got):\n%s", diff)
	}
}

func TestInitAdaptiveErrors(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		scales []float32
	}{
		{"zero levels", 0, nil},
		{"length mismatch", 3, []float32{1, 0.5}},
		{"scale above one", 2, []float32{1, 1.5}},
		{"scale zero", 2, []float32{1, 0}},
		{"increasing", 3, []float32{1, 0.5, 0.75}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			if _, err := p.Init(4, core.NewSize(64, 64), 0.5, 4); err != nil {
				t.Fatal(err)
			}
			_, err := p.InitAdaptive(tt.n, tt.scales)
			if !errors.Is(err, core.ErrConfig) {
				t.Fatalf("erwartet ErrConfig, bekommen %v", err)
			}
			if p.Schedule().Mode != ModeGeometric || p.NumLevels() != 4 {
				t.Errorf("vorheriger Plan veraendert: %v, %d Stufen", p.Schedule().Mode, p.NumLevels())
			}
		})
	}
}

func TestResetInitIdempotent(t *testing.T) {
	p := New()
	n1, _ := p.Init(6, core.NewSize(300, 200), 0.7, 10)
	s1 := p.Schedule()
	sizes1 := levelSizes(t, p)

	p.Reset()
	p.Reset()
	if p.NumLevels() != 0 || p.Schedule().Mode != ModeNone {
		t.Fatal("Reset sollte den Plan vergessen")
	}

	n2, _ := p.Init(6, core.NewSize(300, 200), 0.7, 10)
	if n1 != n2 {
		t.Errorf("Stufenzahl: %d != %d", n1, n2)
	}
	if !s1.Equal(p.Schedule()) {
		t.Error("Plan nach Reset+Init verschieden")
	}
	if diff := cmp.Diff(sizes1, levelSizes(t, p)); diff != "" {
		t.Errorf("Stufengroessen (-want +got):\n%s", diff)
	}
}

func TestSetImageMonotonicSizes(t *testing.T) {
	p := New()
	if _, err := p.Init(10, core.NewSize(97, 61), 0.6, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SetImage(deviceImage(t, 97, 61), core.InterpolateCubic, nil); err != nil {
		t.Fatal(err)
	}
	sizes := levelSizes(t, p)
	for i := 1; i < len(sizes); i++ {
		if sizes[i].Width > sizes[i-1].Width || sizes[i].Height > sizes[i-1].Height {
			t.Errorf("Stufe %d (%s) groesser als Stufe %d (%s)", i, sizes[i], i-1, sizes[i-1])
		}
	}
}

func TestSetImageBufferReuse(t *testing.T) {
	for _, reuse := range []ReuseStrategy{ReusePreallocated, ReuseOnTheFly} {
		t.Run(reuse.String(), func(t *testing.T) {
			s := device.NewStream("test")
			defer s.Close()

			p := New(WithReuse(reuse))
			if _, err := p.Init(5, core.NewSize(64, 48), 0.5, 4); err != nil {
				t.Fatal(err)
			}
			if _, err := p.SetImage(deviceImage(t, 64, 48), core.InterpolateLinear, s); err != nil {
				t.Fatal(err)
			}
			first := make([]*core.Image32fC1, p.NumLevels())
			for i := range first {
				first[i], _ = p.Level(i)
			}
			sizes := levelSizes(t, p)

			if _, err := p.SetImage(deviceImage(t, 64, 48), core.InterpolateLinear, s); err != nil {
				t.Fatal(err)
			}
			if err := s.Synchronize(); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(sizes, levelSizes(t, p)); diff != "" {
				t.Errorf("Stufengroessen (-want +got):\n%s", diff)
			}
			for i := range first {
				if got, _ := p.Level(i); got != first[i] {
					t.Errorf("Stufe %d neu angelegt", i)
				}
			}

			if _, err := p.SetImage(deviceImage(t, 32, 32), core.InterpolateLinear, s); err != nil {
				t.Fatal(err)
			}
			lvl0, _ := p.Level(0)
			if lvl0 == first[0] || lvl0.Size() != core.NewSize(32, 32) {
				t.Errorf("erwartet neue Stufe 0 mit 32x32, bekommen %s", lvl0.Size())
			}
			if p.NumLevels() != 4 {
				t.Errorf("erwartet 4 Stufen fuer 32x32, bekommen %d", p.NumLevels())
			}
		})
	}
}

func TestReuseStrategyMemory(t *testing.T) {
	img := deviceImage(t, 64, 64)
	pre := New(WithReuse(ReusePreallocated))
	lazy := New(WithReuse(ReuseOnTheFly))
	for _, p := range []*Pyramid{pre, lazy} {
		if _, err := p.Init(4, img.Size(), 0.5, 4); err != nil {
			t.Fatal(err)
		}
		if _, err := p.SetImage(img, core.InterpolateLinear, nil); err != nil {
			t.Fatal(err)
		}
	}
	if pre.Bytes() <= lazy.Bytes() {
		t.Errorf("preallocated (%d) sollte mehr Speicher belegen als on-the-fly (%d)", pre.Bytes(), lazy.Bytes())
	}
	if levels := lazy.Levels(); levels[0].Tmp != nil || levels[0].Filtered != nil {
		t.Error("on-the-fly sollte keine Zwischenpuffer halten")
	}
}

func TestSetImageContent(t *testing.T) {
	img := deviceImage(t, 40, 30)
	img.Fill(0.75)
	p := New()
	if _, err := p.Init(3, img.Size(), 0.5, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SetImage(img, core.InterpolateLinear, nil); err != nil {
		t.Fatal(err)
	}
	for i := range p.NumLevels() {
		lvl, _ := p.Level(i)
		lo, hi, err := kernels.MinMax(lvl, lvl.Size().Rect(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(float64(lo-0.75)) > 1e-5 || math.Abs(float64(hi-0.75)) > 1e-5 {
			t.Errorf("Stufe %d: erwartet 0.75, bekommen [%v, %v]", i, lo, hi)
		}
	}
}

func TestSetImageErrors(t *testing.T) {
	p := New()
	if _, err := p.SetImage(deviceImage(t, 8, 8), core.InterpolateLinear, nil); !errors.Is(err, core.ErrConfig) {
		t.Errorf("ohne Init: erwartet ErrConfig, bekommen %v", err)
	}
	if _, err := p.Init(3, core.NewSize(8, 8), 0.5, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SetImage(nil, core.InterpolateLinear, nil); !errors.Is(err, core.ErrConfig) {
		t.Errorf("nil: erwartet ErrConfig, bekommen %v", err)
	}
	var typedNil *core.Image32fC1
	if _, err := p.SetImage(typedNil, core.InterpolateLinear, nil); !errors.Is(err, core.ErrConfig) {
		t.Errorf("typisiertes nil: erwartet ErrConfig, bekommen %v", err)
	}
	host, _ := core.NewHostImage[float32](8, 8)
	if _, err := p.SetImage(host, core.InterpolateLinear, nil); !errors.Is(err, core.ErrConfig) {
		t.Errorf("Host-Bild: erwartet ErrConfig, bekommen %v", err)
	}
	gray8, _ := core.NewDeviceImage[uint8](8, 8)
	if _, err := p.SetImage(gray8, core.InterpolateLinear, nil); !errors.Is(err, core.ErrUnsupportedFormat) {
		t.Errorf("8uC1: erwartet ErrUnsupportedFormat, bekommen %v", err)
	}
	if _, err := p.Level(0); !errors.Is(err, core.ErrNotReady) {
		t.Errorf("Level ohne Bild: erwartet ErrNotReady, bekommen %v", err)
	}
}

func TestSetImageStreamErrorKeepsState(t *testing.T) {
	s := device.NewStream("test")
	defer s.Close()

	p := New()
	if _, err := p.Init(10, core.NewSize(64, 64), 0.5, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SetImage(deviceImage(t, 64, 64), core.InterpolateLinear, s); err != nil {
		t.Fatal(err)
	}
	if err := s.Synchronize(); err != nil {
		t.Fatal(err)
	}
	before := levelSizes(t, p)
	lvl0, _ := p.Level(0)
	mem := p.Bytes()

	boom := errors.New("boom")
	if err := s.Launch("boom", func() error { return boom }); err != nil {
		t.Fatal(err)
	}
	if err := s.Synchronize(); !errors.Is(err, boom) {
		t.Fatalf("erwartet boom, bekommen %v", err)
	}

	for _, size := range []core.Size{core.NewSize(32, 16), core.NewSize(64, 64)} {
		_, err := p.SetImage(deviceImage(t, size.Width, size.Height), core.InterpolateLinear, s)
		if !errors.Is(err, core.ErrDevice) || !errors.Is(err, boom) {
			t.Fatalf("%s: erwartet ErrDevice mit boom, bekommen %v", size, err)
		}
	}
	if diff := cmp.Diff(before, levelSizes(t, p)); diff != "" {
		t.Errorf("Geometrie nach fehlgeschlagenem SetImage veraendert (-want +got):\n%s", diff)
	}
	if got, _ := p.Level(0); got != lvl0 {
		t.Error("Stufe 0 wurde nach fehlgeschlagenem SetImage ersetzt")
	}
	if p.Bytes() != mem {
		t.Errorf("Speicher: erwartet %d, bekommen %d", mem, p.Bytes())
	}

	// nach ClearError wird die neue Geometrie uebernommen
	s.ClearError()
	n, err := p.SetImage(deviceImage(t, 32, 16), core.InterpolateLinear, s)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Synchronize(); err != nil {
		t.Fatal(err)
	}
	if n != p.NumLevels() || n != 3 {
		t.Errorf("erwartet 3 Stufen fuer 32x16, bekommen %d", n)
	}
}

func TestAccessorRange(t *testing.T) {
	p := New()
	if _, err := p.Init(3, core.NewSize(64, 64), 0.5, 2); err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{-1, 3, 100} {
		if _, err := p.Level(i); !errors.Is(err, core.ErrRange) {
			t.Errorf("Level(%d): erwartet ErrRange, bekommen %v", i, err)
		}
		if _, err := p.Size(i); !errors.Is(err, core.ErrRange) {
			t.Errorf("Size(%d): erwartet ErrRange, bekommen %v", i, err)
		}
		if _, err := p.ScaleFactor(i); !errors.Is(err, core.ErrRange) {
			t.Errorf("ScaleFactor(%d): erwartet ErrRange, bekommen %v", i, err)
		}
	}
	if p.MaxLevels() != 3 {
		t.Errorf("MaxLevels: erwartet 3, bekommen %d", p.MaxLevels())
	}
}

func TestInitIdenticalKeepsBuffers(t *testing.T) {
	p := New()
	if _, err := p.Init(3, core.NewSize(32, 32), 0.5, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SetImage(deviceImage(t, 32, 32), core.InterpolateLinear, nil); err != nil {
		t.Fatal(err)
	}
	lvl0, _ := p.Level(0)
	if _, err := p.Init(3, core.NewSize(32, 32), 0.5, 2); err != nil {
		t.Fatal(err)
	}
	if got, err := p.Level(0); err != nil || got != lvl0 {
		t.Errorf("identisches Init sollte Puffer behalten (%v)", err)
	}
}

func TestParseReuseStrategy(t *testing.T) {
	if r, err := ParseReuseStrategy("on-the-fly"); err != nil || r != ReuseOnTheFly {
		t.Errorf("erwartet on-the-fly, bekommen %s (%v)", r, err)
	}
	if _, err := ParseReuseStrategy("sometimes"); !errors.Is(err, core.ErrConfig) {
		t.Errorf("erwartet ErrConfig, bekommen %v", err)
	}
}
