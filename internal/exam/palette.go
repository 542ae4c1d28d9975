package exam

type StatusCounts struct {
	Answered           int `json:"answered"`
	Bookmarked         int `json:"bookmarked"`
	Mandatory          int `json:"mandatory"`
	RemainingMandatory int `json:"remainingMandatory"`
}

func IsAnswered(questionID int64, selections []Selection) bool {
	i := FindSelection(selections, questionID)
	return i >= 0 && !selections[i].Response.Empty()
}

func IsBookmarked(questionID int64, selections []Selection) bool {
	i := FindSelection(selections, questionID)
	return i >= 0 && selections[i].Bookmarked
}

// CountStatuses summarises the question palette.
func CountStatuses(questions []Question, selections []Selection) StatusCounts {
	var c StatusCounts
	answeredMandatory := 0
	for _, q := range questions {
		answered := IsAnswered(q.ID, selections)
		if answered {
			c.Answered++
		}
		if IsBookmarked(q.ID, selections) {
			c.Bookmarked++
		}
		if q.IsMandatory {
			c.Mandatory++
			if answered {
				answeredMandatory++
			}
		}
	}
	c.RemainingMandatory = c.Mandatory - answeredMandatory
	return c
}

// PaletteEntry is the per-question status row used by the palette and OMR sheet.
type PaletteEntry struct {
	Number     int        `json:"number"`
	Question   Question   `json:"question"`
	Selection  *Selection `json:"selection,omitempty"`
	Answered   bool       `json:"answered"`
	Bookmarked bool       `json:"bookmarked"`
	Page       int        `json:"page"`
}

func Palette(questions []Question, selections []Selection, pageSize int) []PaletteEntry {
	out := make([]PaletteEntry, 0, len(questions))
	for i, q := range questions {
		e := PaletteEntry{
			Number:     i + 1,
			Question:   q,
			Answered:   IsAnswered(q.ID, selections),
			Bookmarked: IsBookmarked(q.ID, selections),
			Page:       1,
		}
		if pageSize > 0 {
			e.Page = i/pageSize + 1
		}
		if j := FindSelection(selections, q.ID); j >= 0 {
			s := selections[j].Clone()
			e.Selection = &s
		}
		out = append(out, e)
	}
	return out
}
