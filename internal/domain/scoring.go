package domain

// PassPercent is the minimum quiz percentage that passes.
const PassPercent = 70

// Score evaluates an attempt against an activity. It has no side effects and
// does not know about prior completions; callers decide whether to award.
func Score(a Activity, attempt Attempt) (Outcome, error) {
	switch v := a.(type) {
	case Lesson:
		return Outcome{Passed: true, XPAward: v.Reward()}, nil
	case Game:
		return Outcome{Passed: true, XPAward: v.Reward()}, nil
	case Quiz:
		return scoreQuiz(v, attempt)
	}
	return Outcome{}, ErrUnknownActivity
}

func scoreQuiz(q Quiz, attempt Attempt) (Outcome, error) {
	out := Outcome{Total: len(q.Questions)}
	for i, question := range q.Questions {
		if i >= len(attempt.Answers) {
			break
		}
		selected := attempt.Answers[i]
		if selected < 0 {
			continue
		}
		if selected >= len(question.Options) {
			return Outcome{}, ErrInvalidAnswer
		}
		if selected == question.Correct {
			out.Score++
		}
	}
	out.Passed = Passes(out.Score, out.Total)
	if out.Passed {
		out.XPAward = q.Reward()
	}
	return out, nil
}

// Passes reports whether score/total reaches PassPercent. An empty quiz passes.
func Passes(score, total int) bool {
	if total == 0 {
		return true
	}
	return score*100 >= PassPercent*total
}

// ScoreChallengeAnswer reports whether selected is the correct option. A nil
// selection (timeout) is always wrong.
func ScoreChallengeAnswer(q Question, selected *int) (bool, error) {
	if selected == nil {
		return false, nil
	}
	if *selected < 0 || *selected >= len(q.Options) {
		return false, ErrInvalidAnswer
	}
	return *selected == q.Correct, nil
}
