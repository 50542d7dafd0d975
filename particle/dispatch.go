package particle

// GroupCount returns how many compute workgroups are needed so that every
// particle is covered. The count rounds up; when the workgroup size does not
// evenly divide the particle count the last group runs partially out of
// range and the compute shader discards the excess invocations against the
// particle count in its uniform block.
func GroupCount(particles, workgroupSize int) int {
	if particles <= 0 {
		return 0
	}
	if workgroupSize <= 0 {
		panic("particle: non-positive workgroup size")
	}
	return (particles + workgroupSize - 1) / workgroupSize
}
