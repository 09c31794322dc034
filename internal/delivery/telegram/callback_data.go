package telegram

import (
	"errors"
	"strconv"
	"strings"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

// Callback action constants.
const (
	actionQuiz     = "quiz"
	actionProgress = "progress"
	actionNext     = "next"
	actionArea     = "area"
)

// Quiz sub-actions.
const (
	quizStart  = "s"
	quizAnswer = "a"
)

var errBadCallback = errors.New("malformed callback data")

// callbackData represents structured callback data.
type callbackData struct {
	Action string
	Params []string
	Raw    string
}

// encode creates callback string.
func (cd callbackData) encode() string {
	if len(cd.Params) == 0 {
		return cd.Action
	}
	return cd.Action + ":" + strings.Join(cd.Params, ":")
}

// decodeCallback parses callback data string.
func decodeCallback(data string) callbackData {
	parts := strings.Split(data, ":")
	return callbackData{
		Action: parts[0],
		Params: parts[1:],
		Raw:    data,
	}
}

// quizCallback is a decoded quiz action.
type quizCallback struct {
	Sub           string
	Competence    string
	Level         entities.Level
	QuestionIndex int
	AnswerIndex   int
}

func parseQuizCallback(cd callbackData) (quizCallback, error) {
	if cd.Action != actionQuiz || len(cd.Params) < 3 {
		return quizCallback{}, errBadCallback
	}

	qc := quizCallback{
		Sub:        cd.Params[0],
		Competence: cd.Params[1],
		Level:      entities.LevelFromCode(cd.Params[2]),
	}
	if !qc.Level.Valid() || qc.Competence == "" {
		return quizCallback{}, errBadCallback
	}

	switch qc.Sub {
	case quizStart:
		if len(cd.Params) != 3 {
			return quizCallback{}, errBadCallback
		}
	case quizAnswer:
		if len(cd.Params) != 5 {
			return quizCallback{}, errBadCallback
		}
		q, err1 := strconv.Atoi(cd.Params[3])
		a, err2 := strconv.Atoi(cd.Params[4])
		if err1 != nil || err2 != nil || q < 0 || a < 0 {
			return quizCallback{}, errBadCallback
		}
		qc.QuestionIndex = q
		qc.AnswerIndex = a
	default:
		return quizCallback{}, errBadCallback
	}

	return qc, nil
}

// buildQuizStartCallback builds callback data for opening a competence quiz.
func buildQuizStartCallback(competence string, level entities.Level) string {
	return callbackData{
		Action: actionQuiz,
		Params: []string{quizStart, competence, level.Code()},
	}.encode()
}

// buildQuizAnswerCallback builds callback data for answering a quiz question.
func buildQuizAnswerCallback(competence string, level entities.Level, questionIndex, answerIndex int) string {
	return callbackData{
		Action: actionQuiz,
		Params: []string{
			quizAnswer,
			competence,
			level.Code(),
			strconv.Itoa(questionIndex),
			strconv.Itoa(answerIndex),
		},
	}.encode()
}

// buildAreaCallback builds callback data for the competence list of a dimension.
func buildAreaCallback(dimensionID string) string {
	return callbackData{
		Action: actionArea,
		Params: []string{dimensionID},
	}.encode()
}

func buildProgressCallback() string {
	return actionProgress
}

func buildNextCallback() string {
	return actionNext
}
