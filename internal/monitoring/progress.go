package monitoring

// Progress reports how far a fixed-length loop has advanced. It logs at most
// once per tenth of the total and always on the final step.
type Progress struct {
	Label string
	Total int

	lastDecile int
}

// NewProgress returns a reporter for a loop of total steps.
func NewProgress(label string, total int) *Progress {
	return &Progress{Label: label, Total: total, lastDecile: -1}
}

// Step records that step (1-based) finished at simulation time t.
func (p *Progress) Step(step, t int) {
	if p.Total <= 0 {
		return
	}
	decile := step * 10 / p.Total
	if step == p.Total || decile > p.lastDecile {
		p.lastDecile = decile
		Logf("%s: step %d/%d at t=%d (%d%%)", p.Label, step, p.Total, t, step*100/p.Total)
	}
}
