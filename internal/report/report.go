// Package report implements the read-only aggregate reports over the loaded
// star schema: top entries by metric for a year, top parent entities by
// distinct entries, and a full chart snapshot for one date and region.
//
// The reporter refuses to run unless the dataset's most recent validation
// passed; results are both rendered as text tables and written as CSV.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chartetl/internal/config"
	"chartetl/internal/etlerr"
	"chartetl/internal/storage"
	"chartetl/internal/validate"
)

// DefaultTopN bounds the ranked reports when report.top_n is unset.
const DefaultTopN = 10

// roles maps the configured dimensions onto the three positions the reports
// need: the snowflake child (tracks), its parent (artists), and the
// standalone context dimension (region). Inference is structural: the child
// is the dimension declaring a parent, the parent is its target, the context
// dimension is whichever remains.
type roles struct {
	child  config.Dimension
	parent config.Dimension
	flat   config.Dimension
}

func inferRoles(dims []config.Dimension) (roles, error) {
	var r roles
	isParent := map[string]bool{}
	for _, d := range dims {
		if d.Parent != "" {
			isParent[d.Parent] = true
		}
	}

	var haveChild, haveFlat bool
	for _, d := range dims {
		switch {
		case d.Parent != "":
			if haveChild {
				return r, fmt.Errorf("report: more than one snowflaked dimension")
			}
			r.child = d
			haveChild = true
		case isParent[d.Table]:
			r.parent = d
		default:
			if haveFlat {
				return r, fmt.Errorf("report: more than one standalone dimension")
			}
			r.flat = d
			haveFlat = true
		}
	}
	if !haveChild || r.parent.Table == "" || !haveFlat {
		return r, fmt.Errorf("report: dimensions must form child, parent and standalone roles")
	}
	return r, nil
}

// Reporter runs aggregate queries against a validated dataset.
type Reporter struct {
	p     config.Pipeline
	repo  storage.Repository
	roles roles
}

// New constructs a Reporter after checking the persisted validation status.
// A dataset that was never validated, or whose latest validation failed, is
// rejected: the second case surfaces as *etlerr.ValidationFailure.
func New(p config.Pipeline, repo storage.Repository) (*Reporter, error) {
	status, err := validate.LoadStatus(p.Normalize.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("report: dataset has no validation status (run validate first): %w", err)
	}
	if !status.Passed {
		return nil, &etlerr.ValidationFailure{Failed: status.Failed()}
	}

	r, err := inferRoles(p.Normalize.Dimensions)
	if err != nil {
		return nil, err
	}
	return &Reporter{p: p, repo: repo, roles: r}, nil
}

// metric returns the primary metric column.
func (r *Reporter) metric() (string, error) {
	if len(r.p.Normalize.Fact.MetricColumns) == 0 {
		return "", fmt.Errorf("report: no metric columns configured")
	}
	return r.p.Normalize.Fact.MetricColumns[0], nil
}

func (r *Reporter) dateLayout() string {
	if r.p.Normalize.DateLayout != "" {
		return r.p.Normalize.DateLayout
	}
	return "2006-01-02"
}

// TopEntries ranks the child dimension by summed metric within one calendar
// year.
func (r *Reporter) TopEntries(ctx context.Context, year, topN int) (*Table, error) {
	if year <= 0 {
		return nil, &etlerr.ParameterError{Name: "year", Value: year, Reason: "must be a positive calendar year"}
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	metric, err := r.metric()
	if err != nil {
		return nil, err
	}

	n := r.p.Normalize
	childKey := r.roles.child.KeyColumns[0]
	parentKey := r.roles.parent.KeyColumns[0]

	q := fmt.Sprintf(`
		SELECT c.%s, p.%s, CAST(SUM(f.%s) AS TEXT) AS total
		FROM %s f
		JOIN %s c ON c.%s = f.%s
		JOIN %s p ON p.%s = f.%s
		WHERE f.%s >= ? AND f.%s < ?
		GROUP BY c.%s, c.%s, p.%s
		ORDER BY SUM(f.%s) DESC, c.%s
		LIMIT ?`,
		childKey, parentKey, metric,
		r.repo.Qualify(n.Fact.Table),
		r.repo.Qualify(r.roles.child.Table), r.roles.child.IDColumn, r.roles.child.IDColumn,
		r.repo.Qualify(r.roles.parent.Table), r.roles.parent.IDColumn, r.roles.parent.IDColumn,
		n.DateColumn, n.DateColumn,
		r.roles.child.IDColumn, childKey, parentKey,
		metric, childKey,
	)
	rows, err := r.repo.Query(ctx, q,
		fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-01-01", year+1), topN)
	if err != nil {
		return nil, fmt.Errorf("report: top %s: %w", r.roles.child.Table, err)
	}

	t := &Table{
		Title:   fmt.Sprintf("Top %s by %s, %d", r.roles.child.Table, metric, year),
		Columns: []string{"rank", childKey, parentKey, "total_" + metric},
	}
	for i, row := range rows {
		t.Rows = append(t.Rows, []string{
			fmt.Sprint(i + 1), asText(row[0]), asText(row[1]), asText(row[2]),
		})
	}
	return t, nil
}

// TopParents ranks the parent dimension by the number of distinct child
// entries it placed on the charts.
func (r *Reporter) TopParents(ctx context.Context, topN int) (*Table, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}

	n := r.p.Normalize
	parentKey := r.roles.parent.KeyColumns[0]
	childID := r.roles.child.IDColumn

	q := fmt.Sprintf(`
		SELECT p.%s, CAST(COUNT(DISTINCT f.%s) AS TEXT) AS entries
		FROM %s f
		JOIN %s p ON p.%s = f.%s
		GROUP BY p.%s, p.%s
		ORDER BY COUNT(DISTINCT f.%s) DESC, p.%s
		LIMIT ?`,
		parentKey, childID,
		r.repo.Qualify(n.Fact.Table),
		r.repo.Qualify(r.roles.parent.Table), r.roles.parent.IDColumn, r.roles.parent.IDColumn,
		r.roles.parent.IDColumn, parentKey,
		childID, parentKey,
	)
	rows, err := r.repo.Query(ctx, q, topN)
	if err != nil {
		return nil, fmt.Errorf("report: top %s: %w", r.roles.parent.Table, err)
	}

	t := &Table{
		Title:   fmt.Sprintf("Top %s by distinct %s", r.roles.parent.Table, r.roles.child.Table),
		Columns: []string{"rank", parentKey, "distinct_" + r.roles.child.Table},
	}
	for i, row := range rows {
		t.Rows = append(t.Rows, []string{fmt.Sprint(i + 1), asText(row[0]), asText(row[1])})
	}
	return t, nil
}

// Snapshot returns the full chart for one date and region, ordered by
// position. Both parameters are validated before the snapshot query runs;
// an unknown region id fails with *etlerr.ParameterError.
func (r *Reporter) Snapshot(ctx context.Context, date string, regionID int) (*Table, error) {
	if _, err := time.Parse(r.dateLayout(), date); err != nil {
		return nil, &etlerr.ParameterError{Name: "chart_date", Value: date, Reason: "not a valid date: " + err.Error()}
	}

	flat := r.roles.flat
	exists, err := r.repo.Query(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", r.repo.Qualify(flat.Table), flat.IDColumn), regionID)
	if err != nil {
		return nil, fmt.Errorf("report: check %s: %w", flat.Table, err)
	}
	if len(exists) == 0 {
		return nil, &etlerr.ParameterError{
			Name: flat.IDColumn, Value: regionID,
			Reason: fmt.Sprintf("no such row in %s", flat.Table),
		}
	}

	metric, err := r.metric()
	if err != nil {
		return nil, err
	}
	n := r.p.Normalize
	childKey := r.roles.child.KeyColumns[0]
	parentKey := r.roles.parent.KeyColumns[0]

	order := n.Fact.RankColumn
	cols := []string{}
	if order != "" {
		cols = append(cols, "CAST(f."+order+" AS TEXT)")
	}
	cols = append(cols, "c."+childKey, "p."+parentKey, "CAST(f."+metric+" AS TEXT)")
	if order == "" {
		order = metric
	}

	q := fmt.Sprintf(`
		SELECT %s
		FROM %s f
		JOIN %s c ON c.%s = f.%s
		JOIN %s p ON p.%s = f.%s
		WHERE f.%s = ? AND f.%s = ?
		ORDER BY f.%s`,
		strings.Join(cols, ", "),
		r.repo.Qualify(n.Fact.Table),
		r.repo.Qualify(r.roles.child.Table), r.roles.child.IDColumn, r.roles.child.IDColumn,
		r.repo.Qualify(r.roles.parent.Table), r.roles.parent.IDColumn, r.roles.parent.IDColumn,
		n.DateColumn, flat.IDColumn,
		order,
	)
	rows, err := r.repo.Query(ctx, q, date, regionID)
	if err != nil {
		return nil, fmt.Errorf("report: snapshot: %w", err)
	}

	t := &Table{Title: fmt.Sprintf("Chart %s, %s=%d", date, flat.IDColumn, regionID)}
	if n.Fact.RankColumn != "" {
		t.Columns = append(t.Columns, n.Fact.RankColumn)
	}
	t.Columns = append(t.Columns, childKey, parentKey, metric)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, vv := range row {
			cells[i] = asText(vv)
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, nil
}

func asText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
