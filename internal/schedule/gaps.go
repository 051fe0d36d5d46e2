package schedule

import "trialdesk/internal/domain"

type GapCase int

const (
	GapLNBlank GapCase = iota
	GapCLBBlank
	GapLNStartBlank
	GapLNFinishBlank
	GapCLBStartBlank
	GapCLBFinishBlank
)

// GapCases lists the six cases in report order.
var GapCases = []GapCase{GapLNBlank, GapCLBBlank, GapLNStartBlank, GapLNFinishBlank, GapCLBStartBlank, GapCLBFinishBlank}

func (g GapCase) Label() string {
	switch g {
	case GapLNBlank:
		return "LN Blank, CLB Not Blank"
	case GapCLBBlank:
		return "CLB Blank, LN Not Blank"
	case GapLNStartBlank:
		return "LN Start Blank, CLB Start Not Blank"
	case GapLNFinishBlank:
		return "LN Finish Blank, CLB Finish Not Blank"
	case GapCLBStartBlank:
		return "CLB Start Blank, LN Start Not Blank"
	default:
		return "CLB Finish Blank, LN Finish Not Blank"
	}
}

// FileName is the CSV export name for the case.
func (g GapCase) FileName() string {
	switch g {
	case GapLNBlank:
		return "ln_blank_clb_not_blank.csv"
	case GapCLBBlank:
		return "clb_blank_ln_not_blank.csv"
	case GapLNStartBlank:
		return "ln_start_blank_clb_start_not_blank.csv"
	case GapLNFinishBlank:
		return "ln_finish_blank_clb_finish_not_blank.csv"
	case GapCLBStartBlank:
		return "clb_start_blank_ln_start_not_blank.csv"
	default:
		return "clb_finish_blank_ln_finish_not_blank.csv"
	}
}

// Matches reports whether r falls in the case. The single-date cases
// (LN start, LN finish, CLB start, CLB finish) require that exactly that one
// date is blank on its side; both blank on one side belongs to the first two
// cases. Rows may fall in more than one case.
func (g GapCase) Matches(r domain.ComparisonRow) bool {
	lnS, lnF := r.LNBaselineStartDate.Valid, r.LNBaselineFinishDate.Valid
	clbS, clbF := r.CLBStartDate.Valid, r.CLBFinishDate.Valid
	switch g {
	case GapLNBlank:
		return !lnS && !lnF && clbS && clbF
	case GapCLBBlank:
		return !clbS && !clbF && lnS && lnF
	case GapLNStartBlank:
		return !lnS && lnF && clbS
	case GapLNFinishBlank:
		return lnS && !lnF && clbF
	case GapCLBStartBlank:
		return !clbS && clbF && lnS
	case GapCLBFinishBlank:
		return clbS && !clbF && lnF
	}
	return false
}

// Gaps splits rows into the six cases, keeping row order in each.
func Gaps(rows []domain.ComparisonRow) map[GapCase][]domain.ComparisonRow {
	out := make(map[GapCase][]domain.ComparisonRow, len(GapCases))
	for _, g := range GapCases {
		out[g] = []domain.ComparisonRow{}
	}
	for _, r := range rows {
		for _, g := range GapCases {
			if g.Matches(r) {
				out[g] = append(out[g], r)
			}
		}
	}
	return out
}
