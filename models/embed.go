package models

import "embed"

// FS contains the emitter models particles can be seeded from. Embedding
// them makes it possible to generate a binary and just copy it to another
// machine.
//
//go:embed emitter.obj
var FS embed.FS
