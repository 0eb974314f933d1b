package report

// Artifacts are the three outputs of a run.
type Artifacts struct {
	Markdown  string
	Watchlist []string
	Audit     AuditBundle
}

// Assemble renders every artifact from one Input.
func Assemble(in Input) Artifacts {
	return Artifacts{
		Markdown:  RenderBrief(in),
		Watchlist: BuildWatchlist(in),
		Audit:     BuildAudit(in),
	}
}
