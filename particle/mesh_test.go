package particle

import (
	"math"
	"math/rand"
	"strings"
	"testing"
)

const triangleOBJ = `
v 0.5 0.0 0.0
v -0.5 0.5 0.0
v -0.5 -0.5 0.0
f 1 2 3
`

func TestSeedFromMesh(t *testing.T) {
	rnd := rand.New(rand.NewSource(13))

	particles, err := SeedFromMesh(strings.NewReader(triangleOBJ), 100, 1, rnd)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(particles) != 100 {
		t.Fatalf("expected 100 particles, got %d", len(particles))
	}

	vertices := map[[2]float32]bool{
		{0.5, 0}:     true,
		{-0.5, 0.5}:  true,
		{-0.5, -0.5}: true,
	}

	for i, p := range particles {
		if !vertices[[2]float32{p.Pos[0], p.Pos[1]}] {
			t.Fatalf("particle %d at %v, not on a model vertex", i, p.Pos)
		}

		speed := math.Sqrt(float64(p.Vel[0]*p.Vel[0] + p.Vel[1]*p.Vel[1]))
		if math.Abs(speed-initialSpeed) > 1e-9 {
			t.Fatalf("particle %d moves at %g, want %g", i, speed, initialSpeed)
		}
	}
}

func TestSeedFromMeshAppliesAspect(t *testing.T) {
	rnd := rand.New(rand.NewSource(13))

	particles, err := SeedFromMesh(strings.NewReader(triangleOBJ), 50, 0.75, rnd)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	for i, p := range particles {
		x := float64(p.Pos[0])
		if math.Abs(x) > 0.5*0.75+1e-6 {
			t.Fatalf("particle %d x=%f exceeds the squeezed extent", i, x)
		}
	}
}

func TestSeedFromMeshEmptyModel(t *testing.T) {
	rnd := rand.New(rand.NewSource(13))

	_, err := SeedFromMesh(strings.NewReader("# nothing here\n"), 10, 1, rnd)
	if err == nil {
		t.Error("expected an error for a model without vertices")
	}
}
