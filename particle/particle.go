// Package particle defines the per-entity simulation record and the host
// side bookkeeping around it: initial state seeding and dispatch sizing. The
// actual per-particle update runs in the compute shader.
package particle

import (
	"math"
	"math/rand"

	"github.com/xlab/linmath"
)

// Particle is one simulated entity. The layout matches the std140 struct the
// compute shader reads and writes and the vertex input the graphics pipeline
// consumes, so the slice can be uploaded to the storage buffers byte for
// byte.
type Particle struct {
	Pos   linmath.Vec2
	Vel   linmath.Vec2
	Color linmath.Vec4
}

const initialSpeed = 0.00025

// Seed returns count particles placed uniformly on a disc of radius 0.25
// around the origin, each moving outward, with a random color. The aspect
// ratio (height over width) squeezes the disc so it appears circular on
// screen.
func Seed(count int, aspect float32, rnd *rand.Rand) []Particle {
	particles := make([]Particle, count)
	for i := range particles {
		r := 0.25 * float32(math.Sqrt(rnd.Float64()))
		theta := rnd.Float64() * 2 * math.Pi
		x := r * float32(math.Cos(theta)) * aspect
		y := r * float32(math.Sin(theta))

		particles[i] = Particle{
			Pos:   linmath.Vec2{x, y},
			Vel:   scaleToSpeed(x, y, initialSpeed),
			Color: randomColor(rnd),
		}
	}

	return particles
}

func randomColor(rnd *rand.Rand) linmath.Vec4 {
	return linmath.Vec4{
		rnd.Float32(),
		rnd.Float32(),
		rnd.Float32(),
		1,
	}
}

// scaleToSpeed returns a vector pointing along (x, y) with the given length.
// A zero input vector gets an arbitrary fixed direction so no particle is
// left stationary forever.
func scaleToSpeed(x, y, speed float32) linmath.Vec2 {
	norm := float32(math.Sqrt(float64(x*x + y*y)))
	if norm == 0 {
		return linmath.Vec2{speed, 0}
	}
	return linmath.Vec2{x / norm * speed, y / norm * speed}
}
