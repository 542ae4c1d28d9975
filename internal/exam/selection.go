package exam

// FindSelection returns the index of the selection for questionID, or -1.
func FindSelection(list []Selection, questionID int64) int {
	for i := range list {
		if list[i].QuestionRevisionID == questionID {
			return i
		}
	}
	return -1
}

// ensure returns list with a selection for questionID present and its index.
func ensure(list []Selection, questionID int64) ([]Selection, int) {
	if i := FindSelection(list, questionID); i >= 0 {
		return list, i
	}
	list = append(list, Selection{QuestionRevisionID: questionID, Visited: true})
	return list, len(list) - 1
}

// ApplyOption records an option click. Single-choice replaces the response,
// every other choice type toggles the option in or out.
func ApplyOption(list []Selection, q Question, optionID int64) []Selection {
	list, i := ensure(list, q.ID)
	sel := &list[i]
	sel.Visited = true
	if !q.QuestionType.Toggles() {
		sel.Response = ChoiceResponse(optionID)
		return list
	}
	cur := sel.Response
	if cur.Kind != KindChoice {
		cur = ChoiceResponse()
	}
	if cur.Contains(optionID) {
		kept := make([]int64, 0, len(cur.OptionIDs))
		for _, id := range cur.OptionIDs {
			if id != optionID {
				kept = append(kept, id)
			}
		}
		sel.Response = ChoiceResponse(kept...)
		return list
	}
	sel.Response = ChoiceResponse(append(cur.Clone().OptionIDs, optionID)...)
	return list
}

// ApplyText stores subjective free text, cut to the question's character limit.
func ApplyText(list []Selection, q Question, text string) []Selection {
	if q.SubjectiveAnswerLimit > 0 {
		if r := []rune(text); len(r) > q.SubjectiveAnswerLimit {
			text = string(r[:q.SubjectiveAnswerLimit])
		}
	}
	list, i := ensure(list, q.ID)
	list[i].Visited = true
	list[i].Response = TextResponse(text)
	return list
}

// SetResponse overwrites the response wholesale; used when restoring a snapshot.
func SetResponse(list []Selection, questionID int64, r Response) []Selection {
	list, i := ensure(list, questionID)
	list[i].Response = r.Clone()
	return list
}

func SetBookmark(list []Selection, questionID int64, on bool) []Selection {
	list, i := ensure(list, questionID)
	list[i].Bookmarked = on
	return list
}

func MarkReviewed(list []Selection, questionID int64) []Selection {
	list, i := ensure(list, questionID)
	list[i].IsReviewed = true
	return list
}

// Visit marks the question seen and accumulates time on it. Visiting is an
// analytics signal only; it never counts towards completion.
func Visit(list []Selection, questionID int64, spentSeconds int) []Selection {
	list, i := ensure(list, questionID)
	list[i].Visited = true
	if spentSeconds > 0 {
		list[i].TimeSpent += spentSeconds
	}
	return list
}

// Replace puts sel in place of the selection with the same question id.
func Replace(list []Selection, sel Selection) []Selection {
	list, i := ensure(list, sel.QuestionRevisionID)
	list[i] = sel.Clone()
	return list
}

func cloneSelections(list []Selection) []Selection {
	out := make([]Selection, len(list))
	for i := range list {
		out[i] = list[i].Clone()
	}
	return out
}
