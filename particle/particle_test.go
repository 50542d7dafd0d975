package particle

import (
	"math"
	"math/rand"
	"testing"
	"unsafe"
)

func TestParticleLayout(t *testing.T) {
	// The struct is uploaded to the GPU byte for byte, so its size must
	// match the std140 layout the shader declares.
	if size := unsafe.Sizeof(Particle{}); size != 32 {
		t.Errorf("expected a 32 byte particle, got %d bytes", size)
	}

	var p Particle
	if off := unsafe.Offsetof(p.Pos); off != 0 {
		t.Errorf("Pos offset is %d, want 0", off)
	}
	if off := unsafe.Offsetof(p.Vel); off != 8 {
		t.Errorf("Vel offset is %d, want 8", off)
	}
	if off := unsafe.Offsetof(p.Color); off != 16 {
		t.Errorf("Color offset is %d, want 16", off)
	}
}

func TestSeedPlacesParticlesOnDisc(t *testing.T) {
	const aspect = 768.0 / 1024.0

	rnd := rand.New(rand.NewSource(42))
	particles := Seed(1000, aspect, rnd)

	if len(particles) != 1000 {
		t.Fatalf("expected 1000 particles, got %d", len(particles))
	}

	for i, p := range particles {
		// Undo the aspect squeeze to check against the disc radius.
		x := float64(p.Pos[0] / aspect)
		y := float64(p.Pos[1])
		if r := math.Sqrt(x*x + y*y); r > 0.25+1e-6 {
			t.Fatalf("particle %d at radius %f, outside the 0.25 disc", i, r)
		}

		speed := math.Sqrt(float64(p.Vel[0]*p.Vel[0] + p.Vel[1]*p.Vel[1]))
		if math.Abs(speed-initialSpeed) > 1e-9 {
			t.Fatalf("particle %d moves at %g, want %g", i, speed, initialSpeed)
		}

		if p.Color[3] != 1 {
			t.Fatalf("particle %d has alpha %f, want 1", i, p.Color[3])
		}
	}
}

func TestSeedVelocityPointsOutward(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	particles := Seed(200, 1, rnd)

	for i, p := range particles {
		dot := p.Pos[0]*p.Vel[0] + p.Pos[1]*p.Vel[1]
		if dot < 0 {
			t.Fatalf("particle %d moves inward: pos %v vel %v", i, p.Pos, p.Vel)
		}
	}
}

func TestScaleToSpeedZeroVector(t *testing.T) {
	v := scaleToSpeed(0, 0, 0.5)
	if v[0] != 0.5 || v[1] != 0 {
		t.Errorf("zero vector scaled to %v, want {0.5, 0}", v)
	}
}

func TestGroupCount(t *testing.T) {
	cases := []struct {
		particles int
		workgroup int
		want      int
	}{
		{8192, 256, 32},
		{8193, 256, 33},
		{1, 256, 1},
		{256, 256, 1},
		{255, 256, 1},
		{257, 256, 2},
		{0, 256, 0},
		{-5, 256, 0},
	}

	for _, c := range cases {
		if got := GroupCount(c.particles, c.workgroup); got != c.want {
			t.Errorf("GroupCount(%d, %d) = %d, want %d",
				c.particles, c.workgroup, got, c.want)
		}
	}
}

func TestGroupCountPanicsOnBadWorkgroup(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic for workgroup size 0")
		}
	}()

	GroupCount(100, 0)
}
