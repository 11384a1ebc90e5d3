package model

// RenderChange carries the before/after pair for one updated record so that
// transition-sensitive consumers (notifications) can compare statuses.
type RenderChange struct {
	Before *Render
	After  *Render
}

// Diff is the result of comparing two successive snapshots of a user's
// render list. Records absent from the new snapshot are dropped silently.
type Diff struct {
	Inserted []*Render
	Updated  []RenderChange
}

func (d Diff) Empty() bool { return len(d.Inserted) == 0 && len(d.Updated) == 0 }

func indexByID(rows []*Render) map[string]*Render {
	m := make(map[string]*Render, len(rows))
	for _, r := range rows {
		m[r.ID] = r
	}
	return m
}

// DiffRenders matches records by local ID. A record only in next is an
// insertion; a record in both with a changed status, image URL, or prompt is
// an update.
func DiffRenders(prev, next []*Render) Diff {
	old := indexByID(prev)
	var d Diff
	for _, row := range next {
		before, ok := old[row.ID]
		if !ok {
			d.Inserted = append(d.Inserted, row)
			continue
		}
		if before.Status != row.Status || !sameImageURL(before.ImageURL, row.ImageURL) || before.Prompt != row.Prompt {
			d.Updated = append(d.Updated, RenderChange{Before: before, After: row})
		}
	}
	return d
}

// HasActiveRenders reports whether any row is still in a non-terminal status.
func HasActiveRenders(rows []*Render) bool {
	for _, r := range rows {
		if !r.Status.IsTerminal() {
			return true
		}
	}
	return false
}

func sameImageURL(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
