package chat

// ActiveWindow is how many non-widget turns may separate an older search
// widget from the newest one before the older widget goes inactive.
const ActiveWindow = 10

// ActiveSet holds the ids of the widgets currently accepting selections.
type ActiveSet map[string]struct{}

func (s ActiveSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// ResolveActive computes which case-search widgets in history (oldest first)
// accept selections. The newest widget is always active; an older one stays
// active while fewer than ActiveWindow non-widget messages separate it from
// the newest. It never modifies history.
func ResolveActive(history []Message) ActiveSet {
	active := make(ActiveSet)
	newest := -1
	between := 0
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if !m.IsWidget() {
			if newest >= 0 {
				between++
				if between >= ActiveWindow {
					break
				}
			}
			continue
		}
		if newest < 0 {
			newest = i
		}
		active[m.ID] = struct{}{}
	}
	return active
}
