package particle

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/mokiat/go-data-front/decoder/obj"
	"github.com/xlab/linmath"
)

// SeedFromMesh returns count particles whose initial positions are drawn
// from the vertices of a Wavefront OBJ model. Only the X and Y coordinates
// are used; the emitter models are authored flat in the XY plane. Velocities
// point outward from the origin as with Seed.
func SeedFromMesh(r io.Reader, count int, aspect float32, rnd *rand.Rand) ([]Particle, error) {
	decoder := obj.NewDecoder(obj.DefaultLimits())
	model, err := decoder.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding OBJ model: %w", err)
	}

	if len(model.Vertices) == 0 {
		return nil, fmt.Errorf("OBJ model has no vertices")
	}

	particles := make([]Particle, count)
	for i := range particles {
		vertex := model.Vertices[rnd.Intn(len(model.Vertices))]
		x := float32(vertex.X) * aspect
		y := float32(vertex.Y)

		particles[i] = Particle{
			Pos:   linmath.Vec2{x, y},
			Vel:   scaleToSpeed(x, y, initialSpeed),
			Color: randomColor(rnd),
		}
	}

	return particles, nil
}
