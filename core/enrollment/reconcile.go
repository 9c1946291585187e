package enrollment

// percentage returns round(100*done/total), halves rounded up, clamped to [0,100]. It is 0 when total is 0.
func percentage(done, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	pct := (200*done + total) / (2 * total)
	if pct > 100 {
		return 100
	}
	return pct
}

// Reconcile drops the completed lessons that are not in valid and recomputes the progress against valid.
// The returned record keeps the order of the kept lessons and holds no duplicate.
// changed reports whether the completed lessons or the progress differ from rec.
func Reconcile(rec Record, valid LessonSet) (Record, bool) {
	kept := make([]string, 0, len(rec.CompletedLessons))
	seen := make(map[string]struct{}, len(rec.CompletedLessons))
	for _, id := range rec.CompletedLessons {
		if _, dup := seen[id]; dup || !valid.Has(id) {
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, id)
	}

	out := rec.clone()
	out.CompletedLessons = kept
	out.Progress = percentage(len(kept), valid.Len())

	changed := len(kept) != len(rec.CompletedLessons) || out.Progress != rec.Progress
	return out, changed
}

// MarkComplete adds lessonID to the completed lessons, if absent, and recomputes the progress against totalLessons.
// A totalLessons below 1 counts as 1. The lesson is not checked against any catalog.
func MarkComplete(rec Record, lessonID string, totalLessons int) Record {
	out := rec.clone()
	found := false
	for _, id := range out.CompletedLessons {
		if id == lessonID {
			found = true
			break
		}
	}
	if !found {
		out.CompletedLessons = append(out.CompletedLessons, lessonID)
	}

	if totalLessons < 1 {
		totalLessons = 1
	}
	out.Progress = percentage(len(out.CompletedLessons), totalLessons)
	return out
}
